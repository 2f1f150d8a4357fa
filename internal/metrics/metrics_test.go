package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExportsCounters(t *testing.T) {
	m := New()
	m.FramesRead.Add(42)
	m.AlertsCreated.Add(3)
	m.ActiveFeeds.Add(2)
	m.ActiveFeeds.Add(-1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"trackv_frames_read_total 42",
		"trackv_alerts_created_total 3",
		"trackv_active_feeds 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestScrapeReflectsLaterUpdates(t *testing.T) {
	m := New()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "trackv_detector_calls_total 0") {
		t.Error("expected zero detector calls before any work")
	}

	m.DetectorCalls.Add(7)
	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "trackv_detector_calls_total 7") {
		t.Error("scrape did not reflect updated counter")
	}
}
