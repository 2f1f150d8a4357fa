// Package store persists detection records, alerts, and reports to sqlite.
// Writes from the frame pipeline are best-effort: callers log and drop
// persistence failures rather than stalling feed processing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trackv/trackv/internal/alert"
)

type Store struct {
	*sql.DB
}

// Open opens (or creates) the sqlite database at path. Use ":memory:" for
// tests. Migrations are not applied here; call MigrateUp after opening.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// One writer at a time keeps sqlite happy under concurrent feeds; reads
	// still interleave via WAL.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set pragmas: %w", err)
	}

	return &Store{db}, nil
}

// DetectionRecord is one reporting interval's detection summary for a feed.
type DetectionRecord struct {
	JunctionID    string
	FeedID        string
	VehicleCount  int
	VehicleTypes  map[string]int
	AvgConfidence float64
	Congested     bool
	CreatedAt     time.Time
}

// InsertDetection persists one detection record.
func (s *Store) InsertDetection(ctx context.Context, rec DetectionRecord) error {
	types, err := json.Marshal(rec.VehicleTypes)
	if err != nil {
		return fmt.Errorf("store: marshal vehicle types: %w", err)
	}
	_, err = s.ExecContext(ctx,
		`INSERT INTO detections (junction_id, feed_id, vehicle_count, vehicle_types, avg_confidence, congested, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.JunctionID, rec.FeedID, rec.VehicleCount, string(types),
		rec.AvgConfidence, rec.Congested, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: insert detection: %w", err)
	}
	return nil
}

// QueryActiveAlert returns the active alert for a (junction, type) pair, or
// nil when none exists. Implements alert.Store.
func (s *Store) QueryActiveAlert(ctx context.Context, junctionID string, typ alert.Type) (*alert.Alert, error) {
	row := s.QueryRowContext(ctx,
		`SELECT id, junction_id, feed_id, alert_type, severity, duration_minutes, status, created_at
		 FROM alerts
		 WHERE junction_id = ? AND alert_type = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		junctionID, string(typ), string(alert.StatusActive),
	)

	var a alert.Alert
	err := row.Scan(&a.ID, &a.JunctionID, &a.FeedID, &a.Type, &a.Severity,
		&a.DurationMinutes, &a.Status, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query active alert: %w", err)
	}
	return &a, nil
}

// InsertAlert persists a new alert row. Implements alert.Store.
func (s *Store) InsertAlert(ctx context.Context, a alert.Alert) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO alerts (id, junction_id, feed_id, alert_type, severity, duration_minutes, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.JunctionID, a.FeedID, string(a.Type), string(a.Severity),
		a.DurationMinutes, string(a.Status), a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: insert alert: %w", err)
	}
	return nil
}

// ResolveAlert closes an active alert. The resolution lifecycle belongs to
// the operator workflow; this is its entry point into the store.
func (s *Store) ResolveAlert(ctx context.Context, id string) error {
	res, err := s.ExecContext(ctx,
		`UPDATE alerts SET status = ? WHERE id = ? AND status = ?`,
		string(alert.StatusResolved), id, string(alert.StatusActive),
	)
	if err != nil {
		return fmt.Errorf("store: resolve alert %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: alert %s not found or not active", id)
	}
	return nil
}

// JunctionSeries returns the detection time series for a junction since the
// given time, oldest first. Used for report statistics and charts.
func (s *Store) JunctionSeries(ctx context.Context, junctionID string, since time.Time) ([]time.Time, []float64, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT created_at, vehicle_count FROM detections
		 WHERE junction_id = ? AND created_at >= ?
		 ORDER BY created_at ASC`,
		junctionID, since.UTC(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("store: query junction series: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	var counts []float64
	for rows.Next() {
		var ts time.Time
		var c float64
		if err := rows.Scan(&ts, &c); err != nil {
			return nil, nil, fmt.Errorf("store: scan series row: %w", err)
		}
		times = append(times, ts)
		counts = append(counts, c)
	}
	return times, counts, rows.Err()
}

// JunctionCounts returns just the per-record vehicle counts for a junction
// since the given time, oldest first.
func (s *Store) JunctionCounts(ctx context.Context, junctionID string, since time.Time) ([]float64, error) {
	_, counts, err := s.JunctionSeries(ctx, junctionID, since)
	return counts, err
}

// AlertsForJunction returns a junction's alerts, newest first.
func (s *Store) AlertsForJunction(ctx context.Context, junctionID string, limit int) ([]alert.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.QueryContext(ctx,
		`SELECT id, junction_id, feed_id, alert_type, severity, duration_minutes, status, created_at
		 FROM alerts WHERE junction_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		junctionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		var a alert.Alert
		if err := rows.Scan(&a.ID, &a.JunctionID, &a.FeedID, &a.Type, &a.Severity,
			&a.DurationMinutes, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AlertCount returns how many alerts a junction generated since the given time.
func (s *Store) AlertCount(ctx context.Context, junctionID string, since time.Time) (int, error) {
	var n int
	err := s.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE junction_id = ? AND created_at >= ?`,
		junctionID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count alerts: %w", err)
	}
	return n, nil
}

// ReportRow is a persisted traffic report.
type ReportRow struct {
	JunctionID      string
	ReportType      string
	TotalVehicles   int
	AverageVehicles float64
	PeakVehicles    int
	AlertsGenerated int
	CreatedAt       time.Time
}

// InsertReport persists a generated report.
func (s *Store) InsertReport(ctx context.Context, r ReportRow) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO reports (junction_id, report_type, total_vehicles, average_vehicles, peak_vehicles, alerts_generated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.JunctionID, r.ReportType, r.TotalVehicles, r.AverageVehicles,
		r.PeakVehicles, r.AlertsGenerated, r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: insert report: %w", err)
	}
	return nil
}
