package alert

import (
	"context"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trackv/trackv/internal/tracker"
)

// memStore is an in-memory alert store tracking inserts.
type memStore struct {
	mu        sync.Mutex
	active    map[string]*Alert // junction|type -> alert
	inserts   []Alert
	queryErr  error
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{active: make(map[string]*Alert)}
}

func (s *memStore) QueryActiveAlert(_ context.Context, junctionID string, typ Type) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if a, ok := s.active[junctionID+"|"+string(typ)]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) InsertAlert(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	stored := a
	s.active[a.JunctionID+"|"+string(a.Type)] = &stored
	s.inserts = append(s.inserts, a)
	return nil
}

func (s *memStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserts)
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (n *captureNotifier) Notify(a Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func stableCandidate(d time.Duration, sev tracker.Severity) tracker.StableVehicle {
	return tracker.StableVehicle{Key: "10_10", Duration: d, Severity: sev}
}

func TestHighCongestionCreatedOnceThenSuppressed(t *testing.T) {
	store := newMemStore()
	notifier := &captureNotifier{}
	gen := NewGenerator(DefaultConfig(), store, notifier)
	ctx := context.Background()

	// Counts [35, 40, 32] at consecutive intervals: exactly one alert at
	// the first sample, suppression after.
	counts := []int{35, 40, 32}
	var outcomes []Outcome
	for _, c := range counts {
		results, err := gen.Evaluate(ctx, Observation{
			JunctionID: "j1", FeedID: "f1", VehicleCount: c, Now: time.Now(),
		})
		if err != nil {
			t.Fatalf("Evaluate(%d): %v", c, err)
		}
		if len(results) != 1 {
			t.Fatalf("Evaluate(%d): expected 1 result, got %d", c, len(results))
		}
		outcomes = append(outcomes, results[0].Outcome)
	}

	if outcomes[0] != OutcomeCreated {
		t.Errorf("first sample: expected created, got %s", outcomes[0])
	}
	if outcomes[1] != OutcomeSuppressed || outcomes[2] != OutcomeSuppressed {
		t.Errorf("later samples must be suppressed, got %v", outcomes[1:])
	}
	if store.insertCount() != 1 {
		t.Errorf("expected exactly 1 insert, got %d", store.insertCount())
	}
	if notifier.count() != 1 {
		t.Errorf("expected exactly 1 notification, got %d", notifier.count())
	}
}

func TestCongestionThresholdNotInclusive(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator(DefaultConfig(), store, nil)

	results, err := gen.Evaluate(context.Background(), Observation{
		JunctionID: "j1", VehicleCount: 30, Now: time.Now(),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("count == threshold must not trigger, got %d results", len(results))
	}
}

func TestStableVehicleAlert(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator(DefaultConfig(), store, nil)

	obs := Observation{
		JunctionID: "j1", FeedID: "f1", VehicleCount: 3, Now: time.Now(),
		StableVehicles: []tracker.StableVehicle{
			stableCandidate(12*time.Minute, tracker.SeverityMedium),
		},
	}

	results, err := gen.Evaluate(context.Background(), obs)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	a := results[0].Alert
	if a.Type != TypeStableVehicle {
		t.Errorf("expected stable_vehicle alert, got %s", a.Type)
	}
	if a.Severity != SeverityMedium {
		t.Errorf("expected medium severity, got %s", a.Severity)
	}
	if a.DurationMinutes != 12 {
		t.Errorf("expected 12 minute duration, got %d", a.DurationMinutes)
	}

	// Repeated qualifying samples while the alert stays active create
	// nothing new.
	for i := 0; i < 5; i++ {
		results, err = gen.Evaluate(context.Background(), obs)
		if err != nil {
			t.Fatalf("Evaluate repeat %d: %v", i, err)
		}
		if results[0].Outcome != OutcomeSuppressed {
			t.Fatalf("repeat %d: expected suppression, got %s", i, results[0].Outcome)
		}
	}
	if store.insertCount() != 1 {
		t.Errorf("expected 1 insert total, got %d", store.insertCount())
	}
}

func TestStableSeverityEscalation(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator(DefaultConfig(), store, nil)

	results, err := gen.Evaluate(context.Background(), Observation{
		JunctionID: "j2", Now: time.Now(),
		StableVehicles: []tracker.StableVehicle{
			stableCandidate(11*time.Minute, tracker.SeverityMedium),
			stableCandidate(25*time.Minute, tracker.SeverityHigh),
		},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	a := results[0].Alert
	if a.Severity != SeverityHigh {
		t.Errorf("expected high severity, got %s", a.Severity)
	}
	if a.DurationMinutes != 25 {
		t.Errorf("expected longest dwell (25m), got %d", a.DurationMinutes)
	}
}

func TestBottleneckTrigger(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator(DefaultConfig(), store, nil)

	stable := make([]tracker.StableVehicle, 6)
	for i := range stable {
		stable[i] = stableCandidate(11*time.Minute, tracker.SeverityMedium)
	}

	results, err := gen.Evaluate(context.Background(), Observation{
		JunctionID: "j3", VehicleCount: 120, Now: time.Now(),
		StableVehicles: stable,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Both stable_vehicle and bottleneck fire; high_congestion too (120 > 30).
	types := map[Type]Severity{}
	for _, r := range results {
		types[r.Alert.Type] = r.Alert.Severity
	}
	if _, ok := types[TypeBottleneck]; !ok {
		t.Fatalf("expected bottleneck alert, got %v", types)
	}
	if types[TypeBottleneck] != SeverityHigh {
		t.Errorf("expected high bottleneck severity with 6 stable, got %s", types[TypeBottleneck])
	}
	if _, ok := types[TypeHighCongestion]; !ok {
		t.Errorf("expected high_congestion alert as well")
	}
}

func TestBottleneckCriticalSeverity(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator(DefaultConfig(), store, nil)

	stable := make([]tracker.StableVehicle, 11)
	for i := range stable {
		stable[i] = stableCandidate(15*time.Minute, tracker.SeverityMedium)
	}

	results, err := gen.Evaluate(context.Background(), Observation{
		JunctionID: "j4", VehicleCount: 150, Now: time.Now(),
		StableVehicles: stable,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, r := range results {
		if r.Alert.Type == TypeBottleneck && r.Alert.Severity != SeverityCritical {
			t.Errorf("expected critical bottleneck with 11 stable, got %s", r.Alert.Severity)
		}
	}
}

func TestConcurrentEvaluateSameJunctionCreatesOne(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator(DefaultConfig(), store, nil)

	// Many feeds watching the same junction report simultaneously; the
	// per-pair serialisation must admit exactly one insert.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gen.Evaluate(context.Background(), Observation{
				JunctionID: "shared", FeedID: "f", VehicleCount: 50, Now: time.Now(),
			})
		}()
	}
	wg.Wait()

	if store.insertCount() != 1 {
		t.Errorf("expected exactly 1 insert under concurrency, got %d", store.insertCount())
	}
}

func TestDifferentJunctionsIndependent(t *testing.T) {
	store := newMemStore()
	gen := NewGenerator(DefaultConfig(), store, nil)

	for _, j := range []string{"j1", "j2"} {
		if _, err := gen.Evaluate(context.Background(), Observation{
			JunctionID: j, VehicleCount: 40, Now: time.Now(),
		}); err != nil {
			t.Fatalf("Evaluate(%s): %v", j, err)
		}
	}
	if store.insertCount() != 2 {
		t.Errorf("expected one alert per junction, got %d", store.insertCount())
	}
}

func TestStoreErrorsSurface(t *testing.T) {
	store := newMemStore()
	store.queryErr = context.DeadlineExceeded
	gen := NewGenerator(DefaultConfig(), store, nil)

	_, err := gen.Evaluate(context.Background(), Observation{
		JunctionID: "j1", VehicleCount: 99, Now: time.Now(),
	})
	if err == nil {
		t.Error("expected error when dedup query fails")
	}
}

func TestSMTPNotifierMessage(t *testing.T) {
	sent := make(chan []byte, 1)
	n := NewSMTPNotifier(SMTPConfig{
		Host: "smtp.example.com", Port: 587,
		From:       "alerts@trackv.dev",
		Recipients: []string{"ops@example.com"},
	})
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "smtp.example.com:587" {
			t.Errorf("unexpected addr %q", addr)
		}
		if from != "alerts@trackv.dev" || len(to) != 1 {
			t.Errorf("unexpected envelope: from=%q to=%v", from, to)
		}
		sent <- msg
		return nil
	}

	n.Notify(Alert{
		ID: "a1", JunctionID: "j1", Type: TypeStableVehicle,
		Severity: SeverityHigh, DurationMinutes: 22, CreatedAt: time.Now(),
	})

	select {
	case msg := <-sent:
		body := string(msg)
		if !strings.Contains(body, "Subject: Track-V Alert: stable_vehicle at junction j1") {
			t.Errorf("missing subject line in message:\n%s", body)
		}
		if !strings.Contains(body, "multipart/alternative") {
			t.Error("expected multipart/alternative message")
		}
		if !strings.Contains(body, "22 minutes") {
			t.Error("expected duration in body")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never dispatched")
	}
}

func TestSMTPNotifierSkipsWhenUnconfigured(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{})
	called := false
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}
	n.Notify(Alert{ID: "a1"})
	time.Sleep(50 * time.Millisecond)
	if called {
		t.Error("unconfigured notifier must not attempt delivery")
	}
}

func TestSMSNotifierMessage(t *testing.T) {
	sent := make(chan string, 2)
	n := NewSMSNotifier([]string{"+15550100", "+15550101"})
	n.send = func(to, body string) error {
		sent <- to + "|" + body
		return nil
	}

	n.Notify(Alert{
		ID: "a1", JunctionID: "j3", Type: TypeBottleneck,
		Severity: SeverityCritical, DurationMinutes: 14,
	})

	for i := 0; i < 2; i++ {
		select {
		case msg := <-sent:
			if !strings.Contains(msg, "bottleneck") || !strings.Contains(msg, "junction j3") {
				t.Errorf("unexpected sms %q", msg)
			}
			if !strings.Contains(msg, "critical") {
				t.Errorf("missing severity in %q", msg)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("sms %d never dispatched", i)
		}
	}
}

func TestSMSNotifierSkipsWhenUnconfigured(t *testing.T) {
	n := NewSMSNotifier(nil)
	called := false
	n.send = func(string, string) error {
		called = true
		return nil
	}
	n.Notify(Alert{ID: "a1"})
	time.Sleep(50 * time.Millisecond)
	if called {
		t.Error("notifier without recipients must not attempt delivery")
	}
}

// recordingNotifier counts synchronous Notify calls.
type recordingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingNotifier) Notify(Alert) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func TestMultiNotifierFansOut(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{}
	MultiNotifier{a, b}.Notify(Alert{ID: "a1"})
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("fan-out reached (%d, %d) channels, want (1, 1)", a.calls, b.calls)
	}
}
