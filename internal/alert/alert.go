// Package alert turns analysis observations into deduplicated alerts. At
// most one active alert of a given (junction, type) pair may exist; the
// generator serialises its check-then-insert per pair so concurrent feeds
// watching the same junction cannot race a duplicate into the store.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trackv/trackv/internal/monitoring"
	"github.com/trackv/trackv/internal/tracker"
)

// Type identifies the alert condition.
type Type string

const (
	TypeHighCongestion Type = "high_congestion"
	TypeStableVehicle  Type = "stable_vehicle"
	TypeBottleneck     Type = "bottleneck"
)

// Severity grades an alert.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the alert lifecycle state. Resolution is owned by the operator
// workflow outside this core; the generator only ever creates active alerts.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// Alert is the core-visible alert projection.
type Alert struct {
	ID              string    `json:"id"`
	JunctionID      string    `json:"junction_id"`
	FeedID          string    `json:"feed_id"`
	Type            Type      `json:"type"`
	Severity        Severity  `json:"severity"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store is the persistence boundary the generator consumes. QueryActive
// returns nil when no active alert of the pair exists.
type Store interface {
	QueryActiveAlert(ctx context.Context, junctionID string, typ Type) (*Alert, error)
	InsertAlert(ctx context.Context, a Alert) error
}

// Notifier delivers a created alert. Delivery is fire-and-forget: failures
// are logged by the dispatcher and never propagate back.
type Notifier interface {
	Notify(alert Alert)
}

// Outcome distinguishes a created alert from deliberate dedup suppression.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeSuppressed Outcome = "suppressed"
)

// Result is the decision for one triggered condition.
type Result struct {
	Outcome Outcome
	Alert   Alert
}

// Observation is one reporting interval's evidence for a feed.
type Observation struct {
	JunctionID     string
	FeedID         string
	VehicleCount   int
	StableVehicles []tracker.StableVehicle
	Now            time.Time
}

// Config holds trigger thresholds.
type Config struct {
	// CongestionVehicleThreshold triggers high_congestion when the
	// instantaneous count exceeds it.
	CongestionVehicleThreshold int
	// BottleneckVehicleThreshold and BottleneckStableThreshold together
	// trigger the bottleneck variant.
	BottleneckVehicleThreshold int
	BottleneckStableThreshold  int
	// BottleneckCriticalStable escalates a bottleneck to critical.
	BottleneckCriticalStable int
}

// DefaultConfig returns default trigger thresholds.
func DefaultConfig() Config {
	return Config{
		CongestionVehicleThreshold: 30,
		BottleneckVehicleThreshold: 100,
		BottleneckStableThreshold:  5,
		BottleneckCriticalStable:   10,
	}
}

// Generator evaluates observations and creates deduplicated alerts.
type Generator struct {
	cfg      Config
	store    Store
	notifier Notifier

	// pairLocks serialises check-then-insert per (junction, type).
	mu        sync.Mutex
	pairLocks map[string]*sync.Mutex
}

// NewGenerator builds a generator. notifier may be nil for silent operation.
func NewGenerator(cfg Config, store Store, notifier Notifier) *Generator {
	return &Generator{
		cfg:       cfg,
		store:     store,
		notifier:  notifier,
		pairLocks: make(map[string]*sync.Mutex),
	}
}

// Evaluate checks all trigger conditions for one observation and returns a
// Result per triggered condition. Persistence failures surface as errors but
// leave other conditions unaffected.
func (g *Generator) Evaluate(ctx context.Context, obs Observation) ([]Result, error) {
	var results []Result
	var firstErr error

	record := func(r Result, err error) {
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		results = append(results, r)
	}

	if obs.VehicleCount > g.cfg.CongestionVehicleThreshold {
		record(g.raise(ctx, obs, TypeHighCongestion, SeverityHigh, 0))
	}

	if len(obs.StableVehicles) > 0 {
		severity, duration := stableSeverity(obs.StableVehicles)
		record(g.raise(ctx, obs, TypeStableVehicle, severity, duration))
	}

	if obs.VehicleCount > g.cfg.BottleneckVehicleThreshold &&
		len(obs.StableVehicles) > g.cfg.BottleneckStableThreshold {
		severity := SeverityHigh
		if len(obs.StableVehicles) > g.cfg.BottleneckCriticalStable {
			severity = SeverityCritical
		}
		_, duration := stableSeverity(obs.StableVehicles)
		record(g.raise(ctx, obs, TypeBottleneck, severity, duration))
	}

	return results, firstErr
}

// raise performs the serialised check-then-insert for one (junction, type)
// pair and dispatches the notification on a clean miss.
func (g *Generator) raise(ctx context.Context, obs Observation, typ Type, severity Severity, durationMin int) (Result, error) {
	lock := g.pairLock(obs.JunctionID, typ)
	lock.Lock()
	defer lock.Unlock()

	existing, err := g.store.QueryActiveAlert(ctx, obs.JunctionID, typ)
	if err != nil {
		return Result{}, fmt.Errorf("alert: dedup query %s/%s: %w", obs.JunctionID, typ, err)
	}
	if existing != nil {
		monitoring.Logf("alert suppressed: junction=%s type=%s already active (%s)",
			obs.JunctionID, typ, existing.ID)
		return Result{Outcome: OutcomeSuppressed, Alert: *existing}, nil
	}

	a := Alert{
		ID:              uuid.New().String(),
		JunctionID:      obs.JunctionID,
		FeedID:          obs.FeedID,
		Type:            typ,
		Severity:        severity,
		DurationMinutes: durationMin,
		Status:          StatusActive,
		CreatedAt:       obs.Now,
	}
	if err := g.store.InsertAlert(ctx, a); err != nil {
		return Result{}, fmt.Errorf("alert: insert %s/%s: %w", obs.JunctionID, typ, err)
	}

	monitoring.Logf("alert created: junction=%s type=%s severity=%s duration=%dm",
		obs.JunctionID, typ, severity, durationMin)
	if g.notifier != nil {
		g.notifier.Notify(a)
	}
	return Result{Outcome: OutcomeCreated, Alert: a}, nil
}

// pairLock returns the mutex serialising one (junction, type) pair.
func (g *Generator) pairLock(junctionID string, typ Type) *sync.Mutex {
	key := junctionID + "|" + string(typ)
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.pairLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.pairLocks[key] = lock
	}
	return lock
}

// stableSeverity derives the alert severity and headline duration from the
// stable candidate set: the longest dwell wins.
func stableSeverity(stable []tracker.StableVehicle) (Severity, int) {
	severity := SeverityMedium
	var longest time.Duration
	for _, s := range stable {
		if s.Duration > longest {
			longest = s.Duration
		}
		if s.Severity == tracker.SeverityHigh {
			severity = SeverityHigh
		}
	}
	return severity, int(longest.Minutes())
}
