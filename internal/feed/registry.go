package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trackv/trackv/internal/alert"
	"github.com/trackv/trackv/internal/detect"
	"github.com/trackv/trackv/internal/metrics"
	"github.com/trackv/trackv/internal/monitoring"
	"github.com/trackv/trackv/internal/store"
	"github.com/trackv/trackv/internal/tracker"
	"github.com/trackv/trackv/internal/video"
)

// ErrNotFound is returned by Get for unknown feed IDs. Stop and Result
// treat unknown ids as a successful no-op instead.
var ErrNotFound = errors.New("feed not found")

// Config holds per-feed pipeline settings.
type Config struct {
	// SampleInterval analyses every Nth frame; frames in between are
	// counted but skipped.
	SampleInterval int
	// TargetWidth and TargetHeight bound the analysis resolution. Frames
	// are downscaled before detection; smaller frames pass through as is.
	TargetWidth  int
	TargetHeight int
	// ReadTimeout bounds a single source read.
	ReadTimeout time.Duration
	// MaxReadRetries consecutive read errors fail the feed.
	MaxReadRetries int
	// MaxDetectorFailures consecutive inference errors fail the feed.
	MaxDetectorFailures int
	// StopGrace bounds how long Stop waits for the worker to drain.
	StopGrace time.Duration
	// TerminalRetention bounds how long a self-terminated feed stays
	// queryable before the registry sweeps it out.
	TerminalRetention time.Duration

	Tracker tracker.Config
}

// DefaultConfig returns production pipeline settings.
func DefaultConfig() Config {
	return Config{
		SampleInterval:      30,
		TargetWidth:         640,
		TargetHeight:        480,
		ReadTimeout:         10 * time.Second,
		MaxReadRetries:      3,
		MaxDetectorFailures: 5,
		StopGrace:           5 * time.Second,
		TerminalRetention:   time.Hour,
		Tracker:             tracker.DefaultConfig(),
	}
}

// DetectionStore persists per-interval detection records. Failures are
// logged and dropped by the worker; they never stall the pipeline.
type DetectionStore interface {
	InsertDetection(ctx context.Context, rec store.DetectionRecord) error
}

// Registry tracks all feeds and owns their worker lifecycles.
type Registry struct {
	cfg      Config
	detector detect.Detector
	store    DetectionStore
	alerts   *alert.Generator
	metrics  *metrics.Metrics

	mu    sync.RWMutex
	feeds map[string]*Feed
}

// NewRegistry builds a feed registry. All dependencies are required.
// Zero-valued pipeline settings are clamped to safe defaults.
func NewRegistry(cfg Config, detector detect.Detector, st DetectionStore, alerts *alert.Generator, m *metrics.Metrics) *Registry {
	if cfg.SampleInterval < 1 {
		cfg.SampleInterval = 1
	}
	if cfg.TerminalRetention <= 0 {
		cfg.TerminalRetention = time.Hour
	}
	return &Registry{
		cfg:      cfg,
		detector: detector,
		store:    st,
		alerts:   alerts,
		metrics:  m,
		feeds:    make(map[string]*Feed),
	}
}

// Create opens the video source and starts a worker for it. The source is
// opened synchronously so a feed that cannot start never appears in the
// registry.
func (r *Registry) Create(ctx context.Context, junctionID string, desc video.Descriptor) (*Feed, error) {
	if junctionID == "" {
		return nil, errors.New("feed: junction id is required")
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}

	src, err := video.Open(ctx, desc, video.Options{ReadTimeout: r.cfg.ReadTimeout})
	if err != nil {
		return nil, fmt.Errorf("feed: open source: %w", err)
	}

	// The worker outlives the request context; only Stop cancels it.
	wctx, cancel := context.WithCancel(context.Background())
	f := &Feed{
		ID:         uuid.New().String(),
		JunctionID: junctionID,
		Source:     desc,
		StartedAt:  time.Now(),
		state:      StateStarting,
		cancel:     cancel,
		doneCh:     make(chan struct{}),
	}

	r.mu.Lock()
	r.pruneLocked(time.Now())
	r.feeds[f.ID] = f
	r.mu.Unlock()

	r.metrics.ActiveFeeds.Add(1)
	monitoring.Logf("feed %s created: junction=%s source=%s", f.ID, junctionID, desc)

	w := &worker{
		feed:     f,
		cfg:      r.cfg,
		src:      src,
		detector: r.detector,
		store:    r.store,
		alerts:   r.alerts,
		metrics:  r.metrics,
		trk:      tracker.New(r.cfg.Tracker),
	}
	go w.run(wctx)

	return f, nil
}

// Stop cancels a feed's worker, waits for it to drain, and removes the
// registry entry. Stopping an unknown, already-stopped, or failed feed
// reports success with no effect.
func (r *Registry) Stop(id string) error {
	r.mu.RLock()
	f := r.feeds[id]
	r.mu.RUnlock()
	if f == nil {
		return nil
	}

	f.mu.Lock()
	switch f.state {
	case StateStopped, StateFailed:
		f.mu.Unlock()
		r.remove(id)
		return nil
	case StateStopping:
		// Another caller is already stopping; just join below.
	default:
		f.state = StateStopping
	}
	f.mu.Unlock()

	f.cancel()
	select {
	case <-f.doneCh:
		r.remove(id)
		return nil
	case <-time.After(r.cfg.StopGrace):
		// The entry stays so the stop can be retried.
		return fmt.Errorf("feed %s did not stop within %s", id, r.cfg.StopGrace)
	}
}

// Result returns the latest snapshot for a feed. The bool is false when the
// worker has not analysed a frame yet or the feed is unknown.
func (r *Registry) Result(id string) (Snapshot, bool) {
	r.mu.RLock()
	f := r.feeds[id]
	r.mu.RUnlock()
	if f == nil {
		return Snapshot{}, false
	}
	return f.Snapshot()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.feeds, id)
	r.mu.Unlock()
}

// pruneLocked sweeps feeds that reached a terminal state longer than
// TerminalRetention ago. Self-terminated feeds stay queryable until an
// explicit stop removes them or this sweep catches them. Caller holds the
// write lock.
func (r *Registry) pruneLocked(now time.Time) {
	for id, f := range r.feeds {
		if at, done := f.finished(); done && now.Sub(at) > r.cfg.TerminalRetention {
			delete(r.feeds, id)
		}
	}
}

// Get returns a feed by ID.
func (r *Registry) Get(id string) (*Feed, error) {
	r.mu.RLock()
	f := r.feeds[id]
	r.mu.RUnlock()
	if f == nil {
		return nil, ErrNotFound
	}
	return f, nil
}

// List returns all feeds ordered by start time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.feeds))
	for _, f := range r.feeds {
		state, _ := f.State()
		infos = append(infos, Info{
			ID:         f.ID,
			JunctionID: f.JunctionID,
			Source:     f.Source.String(),
			State:      state,
			StartedAt:  f.StartedAt,
		})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// StopAll stops every feed. Used during daemon shutdown.
func (r *Registry) StopAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.feeds))
	for id := range r.feeds {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.Stop(id); err != nil {
			monitoring.Logf("feed %s shutdown: %v", id, err)
		}
	}
}
