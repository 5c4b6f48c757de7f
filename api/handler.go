// Package api exposes pool state and controls over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/SkogAI/agentpool/health"
	"github.com/SkogAI/agentpool/journal"
	"github.com/SkogAI/agentpool/manager"
	"github.com/SkogAI/agentpool/pool"
)

type RESTHandler struct {
	manager *manager.Manager
	journal *journal.Journal
}

// NewRESTHandler serves pool state from mgr. jnl may be nil when alert
// persistence is disabled.
func NewRESTHandler(mgr *manager.Manager, jnl *journal.Journal) *RESTHandler {
	return &RESTHandler{
		manager: mgr,
		journal: jnl,
	}
}

func (h *RESTHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/pools", func(r chi.Router) {
		r.Get("/", h.ListPools)
		r.Get("/{name}", h.GetPool)
		r.Get("/{name}/health", h.GetPoolHealth)
		r.Post("/{name}/resize", h.ResizePool)
		r.Post("/{name}/drain", h.DrainPool)
	})
	r.Get("/api/alerts/recent", h.RecentAlerts)
}

type PoolListResponse struct {
	Pools []PoolEntry `json:"pools"`
	Count int         `json:"count"`
}

type PoolEntry struct {
	Name     string        `json:"name"`
	Snapshot pool.Snapshot `json:"snapshot"`
}

type HealthResponse struct {
	Level  string        `json:"level"`
	Sample health.Sample `json:"sample"`
}

type ResizeRequest struct {
	MinSize int `json:"min_size"`
	MaxSize int `json:"max_size"`
}

type ResizeResponse struct {
	MinSize int `json:"min_size"`
	MaxSize int `json:"max_size"`
}

type AlertsResponse struct {
	Alerts []health.Event `json:"alerts"`
	Count  int            `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *RESTHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	snaps := h.manager.Snapshots()

	entries := make([]PoolEntry, len(snaps))
	for i, s := range snaps {
		entries[i] = PoolEntry{Name: s.Target, Snapshot: s}
	}

	writeJSON(w, http.StatusOK, PoolListResponse{
		Pools: entries,
		Count: len(entries),
	})
}

func (h *RESTHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	snap, err := h.manager.Snapshot(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *RESTHandler) GetPoolHealth(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	sample, level, ok, err := h.manager.Health(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if !ok {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no sample taken yet for %q", name))
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Level:  level.String(),
		Sample: sample,
	})
}

func (h *RESTHandler) ResizePool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req ResizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := h.manager.Resize(name, req.MinSize, req.MaxSize); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := h.manager.Snapshot(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	writeJSON(w, http.StatusOK, ResizeResponse{
		MinSize: snap.MinSize,
		MaxSize: snap.MaxSize,
	})
}

func (h *RESTHandler) DrainPool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.manager.RemoveTarget(name); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"drained": name})
}

func (h *RESTHandler) RecentAlerts(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("alert journal is disabled"))
		return
	}

	limit := getIntQueryParam(r, "limit", 50)
	events, err := h.journal.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, AlertsResponse{
		Alerts: events,
		Count:  len(events),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}

func getIntQueryParam(r *http.Request, key string, defaultValue int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
