// Package api exposes the HTTP surface: feed lifecycle, results, reports,
// alerts, charts, and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/trackv/trackv/internal/feed"
	"github.com/trackv/trackv/internal/metrics"
	"github.com/trackv/trackv/internal/report"
	"github.com/trackv/trackv/internal/store"
	"github.com/trackv/trackv/internal/version"
	"github.com/trackv/trackv/internal/video"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	registry *feed.Registry
	reports  *report.Generator
	store    *store.Store
	metrics  *metrics.Metrics
}

func NewServer(registry *feed.Registry, reports *report.Generator, st *store.Store, m *metrics.Metrics) *Server {
	return &Server{
		registry: registry,
		reports:  reports,
		store:    st,
		metrics:  m,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/feeds", s.createFeed)
	mux.HandleFunc("GET /api/feeds", s.listFeeds)
	mux.HandleFunc("GET /api/feeds/{id}", s.showFeed)
	mux.HandleFunc("DELETE /api/feeds/{id}", s.stopFeed)
	mux.HandleFunc("GET /api/feeds/{id}/result", s.feedResult)
	mux.HandleFunc("GET /api/junctions/{id}/report", s.junctionReport)
	mux.HandleFunc("GET /api/junctions/{id}/alerts", s.junctionAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/resolve", s.resolveAlert)
	mux.Handle("GET /charts/junction", report.ChartHandler(s.store))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", s.health)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type createFeedRequest struct {
	JunctionID string           `json:"junction_id"`
	Source     video.Descriptor `json:"source"`
}

func (s *Server) createFeed(w http.ResponseWriter, r *http.Request) {
	var req createFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.JunctionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "junction_id is required")
		return
	}
	if err := req.Source.Validate(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := s.registry.Create(r.Context(), req.JunctionID, req.Source)
	if err != nil {
		if errors.Is(err, video.ErrSourceUnavailable) {
			s.writeJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	state, _ := f.State()
	s.writeJSON(w, http.StatusCreated, feed.Info{
		ID:         f.ID,
		JunctionID: f.JunctionID,
		Source:     f.Source.String(),
		State:      state,
		StartedAt:  f.StartedAt,
	})
}

func (s *Server) listFeeds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"feeds": s.registry.List()})
}

func (s *Server) showFeed(w http.ResponseWriter, r *http.Request) {
	f, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, "feed not found")
		return
	}
	state, stateErr := f.State()
	resp := map[string]interface{}{
		"id":          f.ID,
		"junction_id": f.JunctionID,
		"source":      f.Source.String(),
		"state":       state,
		"started_at":  f.StartedAt,
	}
	if stateErr != nil {
		resp["error"] = stateErr.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// stopFeed is idempotent: stopping an unknown or already-stopped feed
// succeeds with no effect.
func (s *Server) stopFeed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Stop(id); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "stopped"})
}

// feedResult reports ready=false for unknown feeds and for feeds that have
// not analysed a frame yet; both look the same to a poller.
func (s *Server) feedResult(w http.ResponseWriter, r *http.Request) {
	snap, ready := s.registry.Result(r.PathValue("id"))
	resp := map[string]interface{}{"ready": ready}
	if ready {
		resp["result"] = snap
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) junctionReport(w http.ResponseWriter, r *http.Request) {
	period := report.PeriodDaily
	if p := r.URL.Query().Get("period"); p != "" {
		parsed, err := report.ParsePeriod(p)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		period = parsed
	}

	rep, err := s.reports.Generate(r.Context(), r.PathValue("id"), period)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) junctionAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 1000 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	alerts, err := s.store.AlertsForJunction(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Server) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.ResolveAlert(r.Context(), id); err != nil {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.String()})
}
