// Package tracker maintains per-feed vehicle stability state across noisy
// detection samples. A vehicle whose tracked position stays within a small
// pixel epsilon accumulates dwell time; past the stable threshold it is
// reported as a stable candidate. State is exclusively owned by one feed's
// worker and is never shared.
package tracker

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/trackv/trackv/internal/detect"
)

// Severity grades a stable candidate by dwell time.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Config holds tracker thresholds.
type Config struct {
	// MovementEpsilonPx is the displacement below which a vehicle counts
	// as not having moved. Also the spatial quantisation cell size.
	MovementEpsilonPx float64
	// StableThreshold is the dwell time after which an entry is reported
	// as a stable candidate.
	StableThreshold time.Duration
	// HighSeverityThreshold is the dwell time past which a stable
	// candidate escalates from medium to high severity.
	HighSeverityThreshold time.Duration
	// StaleAfter prunes entries not re-detected for this long.
	StaleAfter time.Duration
	// HysteresisMargin: an entry that was stable and whose dwell falls
	// back below StableThreshold-HysteresisMargin is pruned rather than
	// left to flap.
	HysteresisMargin time.Duration
	// MaxEntries bounds per-feed memory. At the cap, the stalest entry is
	// evicted to admit a new one.
	MaxEntries int
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		MovementEpsilonPx:     10,
		StableThreshold:       10 * time.Minute,
		HighSeverityThreshold: 20 * time.Minute,
		StaleAfter:            5 * time.Minute,
		HysteresisMargin:      5 * time.Minute,
		MaxEntries:            512,
	}
}

// entry is the tracked state for one spatial key.
type entry struct {
	firstSeen time.Time
	lastSeen  time.Time
	x, y      float64 // anchor position (bbox origin at first sighting)
	box       detect.Box
	wasStable bool
}

// StableVehicle is one stable candidate reported by Update.
type StableVehicle struct {
	Key      string
	Duration time.Duration
	Box      detect.Box
	Severity Severity
}

// Tracker is the per-feed stability state machine. It is not safe for
// concurrent use; each feed worker owns exactly one instance.
type Tracker struct {
	cfg     Config
	entries map[string]*entry
}

// New creates a tracker with the given configuration.
func New(cfg Config) *Tracker {
	if cfg.MovementEpsilonPx <= 0 {
		cfg.MovementEpsilonPx = 10
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 512
	}
	return &Tracker{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// Len returns the number of live track entries.
func (t *Tracker) Len() int {
	return len(t.entries)
}

// Update folds one frame's detections into the tracker state and returns the
// currently-stable candidates, recomputed from scratch. The tracker is a
// continuously-updated aggregate, not an event log: the same candidate is
// reported on every call while it remains stable.
func (t *Tracker) Update(dets []detect.Detection, now time.Time) []StableVehicle {
	for _, d := range dets {
		t.observe(d, now)
	}
	t.prune(now)
	return t.stable(now)
}

// observe applies the per-key state machine for a single detection.
func (t *Tracker) observe(d detect.Detection, now time.Time) {
	x, y := d.Box.Origin()
	key := t.key(x, y)

	e, ok := t.entries[key]
	if !ok {
		if len(t.entries) >= t.cfg.MaxEntries {
			t.evictStalest()
		}
		t.entries[key] = &entry{
			firstSeen: now,
			lastSeen:  now,
			x:         x,
			y:         y,
			box:       d.Box,
		}
		return
	}

	dx := x - e.x
	dy := y - e.y
	if math.Hypot(dx, dy) < t.cfg.MovementEpsilonPx {
		// Vehicle has not moved: dwell keeps accruing from firstSeen.
		e.lastSeen = now
		e.box = d.Box
		return
	}

	// Moved or replaced by another vehicle: dwell restarts. wasStable is
	// deliberately left set so the hysteresis prune can retire the entry
	// instead of letting a formerly-stable key flap.
	e.firstSeen = now
	e.lastSeen = now
	e.x = x
	e.y = y
	e.box = d.Box
}

// prune removes stale entries and hysteresis drop-outs. Removal is the only
// destructor of an entry.
func (t *Tracker) prune(now time.Time) {
	for key, e := range t.entries {
		if t.cfg.StaleAfter > 0 && now.Sub(e.lastSeen) > t.cfg.StaleAfter {
			delete(t.entries, key)
			continue
		}
		if e.wasStable && now.Sub(e.firstSeen) < t.cfg.StableThreshold-t.cfg.HysteresisMargin {
			delete(t.entries, key)
		}
	}
}

// stable collects entries past the dwell threshold, ordered by key for
// deterministic output.
func (t *Tracker) stable(now time.Time) []StableVehicle {
	var out []StableVehicle
	for key, e := range t.entries {
		duration := now.Sub(e.firstSeen)
		if duration <= t.cfg.StableThreshold {
			continue
		}
		e.wasStable = true
		severity := SeverityMedium
		if duration > t.cfg.HighSeverityThreshold {
			severity = SeverityHigh
		}
		out = append(out, StableVehicle{
			Key:      key,
			Duration: duration,
			Box:      e.box,
			Severity: severity,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// key quantises a bbox origin to its spatial cell.
func (t *Tracker) key(x, y float64) string {
	cell := t.cfg.MovementEpsilonPx
	return fmt.Sprintf("%d_%d", int(math.Floor(x/cell)), int(math.Floor(y/cell)))
}

// evictStalest drops the entry with the oldest lastSeen to stay within the
// memory bound.
func (t *Tracker) evictStalest() {
	var stalest string
	var oldest time.Time
	first := true
	for key, e := range t.entries {
		if first || e.lastSeen.Before(oldest) {
			stalest = key
			oldest = e.lastSeen
			first = false
		}
	}
	if stalest != "" {
		delete(t.entries, stalest)
	}
}
