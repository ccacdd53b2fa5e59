package http

import (
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"

	"armpose/internal/services"
)

// HubMetricsSource reports WebSocket hub counters
type HubMetricsSource interface {
	GetHubMetrics() map[string]interface{}
}

// MetricsHandler serves in-process counters as JSON. Prometheus metrics
// are served separately on /metrics.
type MetricsHandler struct {
	hub      HubMetricsSource
	sessions services.SessionCounter
}

// NewMetricsHandler creates a new metrics handler. Either source may be nil.
func NewMetricsHandler(hub HubMetricsSource, sessions services.SessionCounter) *MetricsHandler {
	return &MetricsHandler{hub: hub, sessions: sessions}
}

// Routes sets up the metrics routes
func (h *MetricsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetMetrics)
	return r
}

// GetMetrics handles GET /api/metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	out := map[string]interface{}{
		"runtime": map[string]interface{}{
			"goroutines":  runtime.NumGoroutine(),
			"heap_alloc":  mem.HeapAlloc,
			"num_gc":      mem.NumGC,
			"total_alloc": mem.TotalAlloc,
		},
	}
	if h.hub != nil {
		out["websocket"] = h.hub.GetHubMetrics()
	}
	if h.sessions != nil {
		out["sessions"] = h.sessions.Len()
	}
	success(w, r, out)
}
