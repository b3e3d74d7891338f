package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/coop-bridge/internal/bridge"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/writebehind"
	"github.com/nerrad567/coop-bridge/internal/status"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get(s.wsCfg.Path, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/statuses", func(r chi.Router) {
			r.Get("/", s.handleListStatuses)
			r.Get("/{key}/history", s.handleStatusHistory)
		})
	})

	return r
}

// healthResponse is the body of GET /api/v1/health.
type healthResponse struct {
	Status  string             `json:"status"`
	Version string             `json:"version"`
	Bridge  bridge.Health      `json:"bridge"`
	Store   *writebehind.Stats `json:"store,omitempty"`
}

// handleHealth reports "ok" when the bus is connected and the store is
// healthy, "degraded" otherwise. It always answers 200 so probes can read
// the detail.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := s.bridge.Health()
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Bridge:  h,
	}
	if !h.BusConnected || h.StoreDegraded {
		resp.Status = "degraded"
	}
	if s.store != nil {
		stats := s.store.Stats()
		resp.Store = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListStatuses returns the status table ordered by key.
func (s *Server) handleListStatuses(w http.ResponseWriter, _ *http.Request) {
	statuses := s.bridge.Statuses()
	if statuses == nil {
		statuses = []status.Status{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statuses": statuses,
		"count":    len(statuses),
	})
}

// handleStatusHistory returns recorded changes for one key, newest first.
func (s *Server) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := s.bridge.Status(key); !ok {
		writeUnknownDevice(w, r, key)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeInvalidParam(w, r, "limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.bridge.History(r.Context(), key, limit)
	if err != nil {
		s.logger.Error("loading status history failed", "device", key, "error", err)
		writeInternalError(w, r, "failed to load history")
		return
	}
	if entries == nil {
		entries = []status.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":     key,
		"history": entries,
		"count":   len(entries),
	})
}
