// Package api exposes the journal engine over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quantumnexus/journal-engine/internal/engine"
	"github.com/quantumnexus/journal-engine/internal/hub"
	"github.com/quantumnexus/journal-engine/internal/loghub"
)

// Server holds handler dependencies.
type Server struct {
	engine *engine.Engine
	hub    *hub.Hub
	logs   *loghub.Ring
}

// NewServer creates the API server. logs may be nil to disable the log
// listing endpoint's buffer (it then returns an empty list).
func NewServer(e *engine.Engine, h *hub.Hub, logs *loghub.Ring) *Server {
	return &Server{engine: e, hub: h, logs: logs}
}

// Routes mounts all API endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/stats/{period}", s.handleStats)
	r.Get("/equity-curve", s.handleEquityCurve)
	r.Get("/calendar/{year}/{month}", s.handleCalendar)
	r.Get("/trades", s.handleTrades)
	r.Post("/sync", s.handleSync)
	r.Get("/sync/status", s.handleSyncStatus)
	r.Get("/logs", s.handleLogs)
	r.Get("/ws", s.hub.HandleWS)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleStats returns the analytics snapshot for a named period.
// GET /api/v1/stats/{period}
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	stats, err := s.engine.Stats(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleEquityCurve returns account snapshots over a trailing window.
// GET /api/v1/equity-curve?days=90
func (s *Server) handleEquityCurve(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 3650 {
			writeError(w, http.StatusBadRequest, "invalid days parameter")
			return
		}
		days = n
	}

	curve, err := s.engine.EquityCurve(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "equity curve unavailable")
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

// handleCalendar returns the per-day P&L grid for one month.
// GET /api/v1/calendar/{year}/{month}
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1970 || year > 2200 {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}

	cal, err := s.engine.Calendar(r.Context(), year, time.Month(month))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "calendar unavailable")
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

// handleTrades lists stored trades, newest first.
// GET /api/v1/trades?period=monthly&symbol=EURUSD&status=open
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := engine.TradeFilter{
		Period: q.Get("period"),
		Symbol: q.Get("symbol"),
		Status: q.Get("status"),
	}

	trades, err := s.engine.Trades(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": trades,
		"count":  len(trades),
	})
}

// handleSync triggers a synchronization cycle and waits for its result.
// Concurrent requests coalesce onto the in-flight cycle.
// POST /api/v1/sync
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	select {
	case res := <-s.engine.TriggerSync(engine.ReasonManual):
		if res.Err != nil {
			writeError(w, http.StatusBadGateway, res.Err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	case <-r.Context().Done():
		// Client gave up; the cycle still completes in the background.
	}
}

// handleSyncStatus reports the last cycle's outcome.
// GET /api/v1/sync/status
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleLogs returns the buffered log tail.
// GET /api/v1/logs?limit=50
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var entries []loghub.Entry
	if s.logs != nil {
		entries = s.logs.Entries()
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}

	if entries == nil {
		entries = []loghub.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  entries,
		"count": len(entries),
	})
}
