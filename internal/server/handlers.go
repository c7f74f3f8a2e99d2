package server

import (
	"net/http"
	"time"

	"github.com/mumumio1/wtarget/internal/fault"
	"github.com/mumumio1/wtarget/internal/log"
)

// timestampLayout matches the millisecond ISO-8601 form used in responses
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Status    string `json:"status"`
	AppMode   string `json:"appMode"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// SlowResponse is the body of GET /api/slow. DelayMs echoes the requested
// delay; values beyond the int64 range are reported as the nearest bound.
type SlowResponse struct {
	Status  string `json:"status"`
	DelayMs int64  `json:"delayMs"`
}

// ProbeResponse is the body of GET /ready
type ProbeResponse struct {
	Status string `json:"status"`
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, r, http.StatusOK, StatusResponse{
		Status:    "ok",
		AppMode:   s.cfg.App.Mode,
		Version:   Version,
		Timestamp: s.now().UTC().Format(timestampLayout),
	})
}

// handleItems handles GET /api/items. A repeated filter parameter is
// treated as no filter.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	var filter string
	if values := r.URL.Query()["filter"]; len(values) == 1 {
		filter = values[0]
	}

	s.respondJSON(w, r, http.StatusOK, s.catalog.Filter(filter))
}

// handleSlow handles GET /api/slow. The wait parks only this request's
// goroutine and is not cut short by client disconnects.
func (s *Server) handleSlow(w http.ResponseWriter, r *http.Request) {
	ms, wait := fault.Delay(r.URL.Query().Get("ms"), int64(s.cfg.Simulation.DefaultSlowMs))

	if s.metrics != nil {
		s.metrics.RecordSimulatedDelay(wait)
	}
	s.logger.WithContext(r.Context()).Debug("delaying response", log.Int64("delay_ms", ms))

	timer := time.NewTimer(wait)
	<-timer.C

	s.respondJSON(w, r, http.StatusOK, SlowResponse{
		Status:  "ok",
		DelayMs: ms,
	})
}

// handleError handles GET /api/error
func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	failed := s.injector.ShouldFail()
	if s.metrics != nil {
		s.metrics.RecordSimulatedError(failed)
	}

	if failed {
		s.respondJSON(w, r, http.StatusInternalServerError, MessageResponse{
			Status:  "error",
			Message: "Simulated error",
		})
		return
	}

	s.respondJSON(w, r, http.StatusOK, MessageResponse{
		Status:  "ok",
		Message: "No error",
	})
}

// handleHealth handles GET /healthz. Liveness ignores readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondText(w, http.StatusOK, "ok")
}

// handleReady handles GET /ready
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.gate.Ready() {
		s.respondJSON(w, r, http.StatusServiceUnavailable, ProbeResponse{Status: "not-ready"})
		return
	}

	s.respondJSON(w, r, http.StatusOK, ProbeResponse{Status: "ready"})
}
