// Package report builds traffic summaries from persisted detection history.
package report

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/trackv/trackv/internal/monitoring"
	"github.com/trackv/trackv/internal/store"
)

// Period selects the report window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod validates a period string from the API.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return Period(s), nil
	}
	return "", fmt.Errorf("report: unknown period %q (want daily, weekly, or monthly)", s)
}

// Window returns the duration covered by the period. Months are a fixed
// 30-day window rather than a calendar month.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodDaily:
		return 24 * time.Hour
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Report is one generated traffic summary for a junction.
type Report struct {
	JunctionID      string    `json:"junction_id"`
	Period          Period    `json:"period"`
	WindowStart     time.Time `json:"window_start"`
	GeneratedAt     time.Time `json:"generated_at"`
	Samples         int       `json:"samples"`
	TotalVehicles   int       `json:"total_vehicles"`
	AverageVehicles float64   `json:"average_vehicles"`
	PeakVehicles    int       `json:"peak_vehicles"`
	StdDevVehicles  float64   `json:"stddev_vehicles"`
	AlertsGenerated int       `json:"alerts_generated"`
}

// Storage is the slice of the store the generator consumes.
type Storage interface {
	JunctionSeries(ctx context.Context, junctionID string, since time.Time) ([]time.Time, []float64, error)
	AlertCount(ctx context.Context, junctionID string, since time.Time) (int, error)
	InsertReport(ctx context.Context, r store.ReportRow) error
}

// Generator builds and persists reports.
type Generator struct {
	store Storage
	now   func() time.Time
}

// NewGenerator builds a report generator.
func NewGenerator(st Storage) *Generator {
	return &Generator{store: st, now: time.Now}
}

// Generate summarises a junction's detection history over the period window
// and persists the result. A junction with no history yields a zeroed report
// rather than an error.
func (g *Generator) Generate(ctx context.Context, junctionID string, period Period) (Report, error) {
	now := g.now().UTC()
	since := now.Add(-period.Window())

	_, counts, err := g.store.JunctionSeries(ctx, junctionID, since)
	if err != nil {
		return Report{}, fmt.Errorf("report: load history: %w", err)
	}
	alerts, err := g.store.AlertCount(ctx, junctionID, since)
	if err != nil {
		return Report{}, fmt.Errorf("report: count alerts: %w", err)
	}

	r := Report{
		JunctionID:      junctionID,
		Period:          period,
		WindowStart:     since,
		GeneratedAt:     now,
		Samples:         len(counts),
		AlertsGenerated: alerts,
	}
	if len(counts) > 0 {
		r.TotalVehicles = int(floats.Sum(counts))
		r.AverageVehicles = stat.Mean(counts, nil)
		r.PeakVehicles = int(floats.Max(counts))
	}
	if len(counts) > 1 {
		r.StdDevVehicles = stat.StdDev(counts, nil)
	}

	if err := g.store.InsertReport(ctx, store.ReportRow{
		JunctionID:      r.JunctionID,
		ReportType:      string(r.Period),
		TotalVehicles:   r.TotalVehicles,
		AverageVehicles: r.AverageVehicles,
		PeakVehicles:    r.PeakVehicles,
		AlertsGenerated: r.AlertsGenerated,
		CreatedAt:       r.GeneratedAt,
	}); err != nil {
		return Report{}, fmt.Errorf("report: persist: %w", err)
	}

	monitoring.Logf("report generated: junction=%s period=%s samples=%d total=%d alerts=%d",
		junctionID, period, r.Samples, r.TotalVehicles, r.AlertsGenerated)
	return r, nil
}
