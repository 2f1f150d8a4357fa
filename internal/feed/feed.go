// Package feed manages the lifecycle of video feed workers. Each feed owns
// exactly one worker goroutine that pulls frames from its source, runs the
// detection pipeline, and publishes a result snapshot. The registry only
// ever holds its lock for map bookkeeping, never while a frame is processed.
package feed

import (
	"sync"
	"time"

	"github.com/trackv/trackv/internal/congestion"
	"github.com/trackv/trackv/internal/video"
)

// State is the feed lifecycle state.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Snapshot is the latest analysis result for a feed. It reflects the most
// recently analysed frame, not a running aggregate.
type Snapshot struct {
	FeedID          string           `json:"feed_id"`
	JunctionID      string           `json:"junction_id"`
	FrameCount      uint64           `json:"frame_count"`
	VehicleCount    int              `json:"vehicle_count"`
	VehicleTypes    map[string]int   `json:"vehicle_types"`
	AvgConfidence   float64          `json:"avg_confidence"`
	CongestionScore float64          `json:"congestion_score"`
	CongestionLevel congestion.Level `json:"congestion_level"`
	StableVehicles  int              `json:"stable_vehicles"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Feed is one registered video feed and its worker handle.
type Feed struct {
	ID         string
	JunctionID string
	Source     video.Descriptor
	StartedAt  time.Time

	mu         sync.Mutex
	state      State
	err        error
	snapshot   Snapshot
	hasSnap    bool
	finishedAt time.Time

	cancel func()
	doneCh chan struct{}
}

// State returns the current lifecycle state and, for failed feeds, the
// terminal error.
func (f *Feed) State() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.err
}

// Snapshot returns the latest result snapshot. The second return is false
// until the worker has analysed at least one frame.
func (f *Feed) Snapshot() (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.hasSnap
}

func (f *Feed) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// setTerminal records the final state. A feed already marked failed keeps
// its failure even if the worker later unwinds through a stop path.
func (f *Feed) setTerminal(s State, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateFailed {
		return
	}
	f.state = s
	f.err = err
	f.finishedAt = time.Now()
}

// finished reports whether the feed reached a terminal state and when.
func (f *Feed) finished() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finishedAt, f.state == StateStopped || f.state == StateFailed
}

func (f *Feed) setSnapshot(s Snapshot) {
	f.mu.Lock()
	f.snapshot = s
	f.hasSnap = true
	f.mu.Unlock()
}

// Info is the list projection of a feed.
type Info struct {
	ID         string    `json:"id"`
	JunctionID string    `json:"junction_id"`
	Source     string    `json:"source"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
}
