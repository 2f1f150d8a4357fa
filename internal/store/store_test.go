package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackv/trackv/internal/alert"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trackv-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateUp())
	return s
}

func TestMigrateUpIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.MigrateUp(), "second MigrateUp should be a no-op")

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty, "database left dirty after migration")
	assert.NotZero(t, version)
}

func TestInsertAndQueryDetections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i, count := range []int{10, 25, 40, 15} {
		rec := DetectionRecord{
			JunctionID:    "junction-7",
			FeedID:        "feed-1",
			VehicleCount:  count,
			VehicleTypes:  map[string]int{"car": count - 2, "bus": 2},
			AvgConfidence: 0.8,
			Congested:     count > 30,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.InsertDetection(ctx, rec), "insert %d", i)
	}

	times, counts, err := s.JunctionSeries(ctx, "junction-7", base)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 25, 40, 15}, counts)
	require.Len(t, times, 4)
	assert.True(t, times[0].Before(times[3]), "series should be oldest first")

	// A since cutoff mid-window drops earlier records.
	counts, err = s.JunctionCounts(ctx, "junction-7", base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 15}, counts)

	counts, err = s.JunctionCounts(ctx, "other-junction", base)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestAlertLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.QueryActiveAlert(ctx, "j1", alert.TypeHighCongestion)
	require.NoError(t, err)
	assert.Nil(t, got, "no alert inserted yet")

	a := alert.Alert{
		ID:         uuid.NewString(),
		JunctionID: "j1",
		FeedID:     "feed-1",
		Type:       alert.TypeHighCongestion,
		Severity:   alert.SeverityHigh,
		Status:     alert.StatusActive,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.InsertAlert(ctx, a))

	got, err = s.QueryActiveAlert(ctx, "j1", alert.TypeHighCongestion)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, alert.SeverityHigh, got.Severity)

	// Another type on the same junction is independent.
	got, err = s.QueryActiveAlert(ctx, "j1", alert.TypeBottleneck)
	require.NoError(t, err)
	assert.Nil(t, got, "bottleneck query should not match a high_congestion alert")

	require.NoError(t, s.ResolveAlert(ctx, a.ID))
	got, err = s.QueryActiveAlert(ctx, "j1", alert.TypeHighCongestion)
	require.NoError(t, err)
	assert.Nil(t, got, "resolved alert still reported active")

	assert.Error(t, s.ResolveAlert(ctx, a.ID), "resolving twice should fail")
}

func TestAlertsForJunction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		a := alert.Alert{
			ID:         uuid.NewString(),
			JunctionID: "j1",
			FeedID:     "feed-1",
			Type:       alert.TypeStableVehicle,
			Severity:   alert.SeverityMedium,
			Status:     alert.StatusActive,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, s.InsertAlert(ctx, a))
	}

	alerts, err := s.AlertsForJunction(ctx, "j1", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.True(t, alerts[0].CreatedAt.After(alerts[2].CreatedAt), "newest first")

	alerts, err = s.AlertsForJunction(ctx, "j1", 2)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)

	n, err := s.AlertCount(ctx, "j1", base)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.AlertCount(ctx, "j1", base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "cutoff drops earlier alerts")
}

func TestInsertReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := ReportRow{
		JunctionID:      "j1",
		ReportType:      "daily",
		TotalVehicles:   480,
		AverageVehicles: 24.5,
		PeakVehicles:    61,
		AlertsGenerated: 2,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, s.InsertReport(ctx, r))

	var total int
	var avg float64
	err := s.QueryRowContext(ctx,
		`SELECT total_vehicles, average_vehicles FROM reports WHERE junction_id = ? AND report_type = ?`,
		"j1", "daily",
	).Scan(&total, &avg)
	require.NoError(t, err)
	assert.Equal(t, 480, total)
	assert.Equal(t, 24.5, avg)
}
