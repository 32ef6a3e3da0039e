package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poller is the part of the job poller the control surface drives.
type Poller interface {
	Running() bool
	PollOnce(ctx context.Context) error
}

// Router exposes the worker's health and trigger endpoints.
type Router struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	poller  Poller
	metrics *routerMetrics
}

// New creates and registers handlers.
func New(logger *slog.Logger, poller Poller) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:     http.NewServeMux(),
		logger:  logger,
		poller:  poller,
		metrics: newRouterMetrics(),
	}
	r.routes()
	return r
}

// ServeHTTP satisfies http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) routes() {
	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	r.mux.HandleFunc("/health", r.instrument("/health", r.handleHealth))
	r.mux.HandleFunc("/trigger", r.instrument("/trigger", r.handleTrigger))
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"polling": r.poller.Running(),
	})
}

// handleTrigger runs one poll cycle and answers once it has finished.
func (r *Router) handleTrigger(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.poller.PollOnce(req.Context()); err != nil {
		r.logger.Error("manual poll failed", "error", err)
		r.metrics.trigger("failure")
		r.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	r.metrics.trigger("success")
	r.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Job polling triggered",
	})
}

func (r *Router) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Error("failed to encode response", "error", err)
	}
}

func (r *Router) writeError(w http.ResponseWriter, status int, msg string) {
	r.writeJSON(w, status, map[string]string{"error": msg})
}
