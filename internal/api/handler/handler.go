// Package handler implements the admin HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/guarzo/killfeed-indexer/internal/store"
	"github.com/guarzo/killfeed-indexer/internal/supervise"
	"github.com/guarzo/killfeed-indexer/internal/worker"
)

// ListenerStats reports the killstream connection state.
type ListenerStats interface {
	Stats() (connected bool, uptime time.Duration, messageCount, skipped uint64, lastMessage time.Time)
}

// Handler holds the dependencies for API handlers
type Handler struct {
	Store       *store.Store
	Worker      *worker.Worker
	Listener    ListenerStats
	Supervisors []*supervise.Supervisor
	Logger      *zap.Logger
	AdminToken  string
}

// NewHandler creates a new Handler instance
func NewHandler(s *store.Store, w *worker.Worker, l ListenerStats, sups []*supervise.Supervisor, logger *zap.Logger, adminToken string) *Handler {
	return &Handler{
		Store:       s,
		Worker:      w,
		Listener:    l,
		Supervisors: sups,
		Logger:      logger,
		AdminToken:  adminToken,
	}
}

// NewRouter creates and configures the HTTP router with all API routes
func (h *Handler) NewRouter() *mux.Router {
	r := mux.NewRouter()

	// Public endpoints
	r.HandleFunc("/api/health", h.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Protected introspection endpoints
	r.HandleFunc("/api/stats", h.RequireAuth(h.HandleStats)).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks", h.RequireAuth(h.HandleTasks)).Methods(http.MethodGet)
	r.HandleFunc("/api/kills/recent", h.RequireAuth(h.HandleRecentKills)).Methods(http.MethodGet)
	r.HandleFunc("/api/kills/{id}", h.RequireAuth(h.HandleKillDetail)).Methods(http.MethodGet)

	return r
}

// RequireAuth is a middleware that validates the bearer token
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		expected := "Bearer " + h.AdminToken

		if auth != expected {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		next(w, r)
	}
}

// HandleHealth returns a simple health check response
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// HandleStats returns queue, listener, and supervisor statistics.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out := map[string]any{}

	if h.Worker != nil {
		stats, err := h.Worker.QueueStats(ctx)
		if err != nil {
			h.Logger.Warn("queue stats failed", zap.Error(err))
		} else {
			out["queue"] = map[string]any{
				"stream_length": stats.StreamLength,
				"pending":       stats.Pending,
				"consumers":     stats.Consumers,
			}
		}
	}

	if h.Listener != nil {
		connected, uptime, msgs, skipped, last := h.Listener.Stats()
		out["listener"] = map[string]any{
			"connected":         connected,
			"uptime_seconds":    int64(uptime.Seconds()),
			"messages_received": msgs,
			"frames_skipped":    skipped,
			"last_message_at":   last,
		}
	}

	running := 0
	for _, s := range h.Supervisors {
		running += s.RunningCount()
	}
	out["tasks_running"] = running

	h.writeJSON(w, http.StatusOK, out)
}

// HandleTasks returns the running-task registry snapshot.
func (h *Handler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	type taskView struct {
		Handle    supervise.Handle  `json:"handle"`
		Tag       string            `json:"tag"`
		Metadata  map[string]string `json:"metadata,omitempty"`
		StartedAt time.Time         `json:"started_at"`
	}

	var tasks []taskView
	for _, s := range h.Supervisors {
		for _, e := range s.RunningTasks() {
			tasks = append(tasks, taskView{
				Handle:    e.Handle,
				Tag:       e.Tag,
				Metadata:  e.Metadata,
				StartedAt: e.StartedAt,
			})
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// HandleRecentKills returns the most recent enriched killmails.
func (h *Handler) HandleRecentKills(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	filter := store.RecentFilter{}
	limit := 100

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := q.Get("system_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.SystemID = n
		}
	}
	if v := q.Get("min_value"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinValue = f
		}
	}

	kills, err := h.Store.QueryRecent(ctx, filter, limit)
	if err != nil {
		h.Logger.Error("recent kills query failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"kills": kills})
}

// HandleKillDetail returns one enriched killmail by id.
func (h *Handler) HandleKillDetail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid killmail id"})
		return
	}

	kill, err := h.Store.GetByID(ctx, id)
	if err == store.ErrNotFound {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		h.Logger.Error("kill detail query failed", zap.Int64("killmail_id", id), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, kill)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Warn("response encode failed", zap.Error(err))
	}
}
