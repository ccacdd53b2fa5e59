package websocket

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"armpose/internal/config"
	"armpose/internal/infrastructure"
)

// Handler upgrades HTTP requests to WebSocket connections attached to a hub
type Handler struct {
	hub            *Hub
	cfg            config.WebSocketConfig
	allowedOrigins []string
	logger         *slog.Logger
	upgrader       websocket.Upgrader
}

// NewHandler creates the /ws endpoint. An empty allowedOrigins list, or
// one containing "*", accepts any origin.
func NewHandler(hub *Hub, cfg config.WebSocketConfig, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	h := &Handler{
		hub:            hub,
		cfg:            cfg,
		allowedOrigins: allowedOrigins,
		logger:         logger.With(slog.String("component", "websocket.handler")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.logger.ErrorContext(r.Context(), "WebSocket upgrade error",
				slog.Int("status", status),
				slog.String("reason", reason.Error()),
				slog.String("origin", r.Header.Get("Origin")))
			http.Error(w, http.StatusText(status), status)
		},
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Allow if no origin (local file or same-origin request)
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}

	h.logger.WarnContext(r.Context(), "WebSocket origin check - origin not allowed",
		slog.String("origin", origin),
		slog.Any("allowed_origins", h.allowedOrigins))
	return false
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		return
	}

	traceID := infrastructure.TraceIDFromContext(r.Context())
	client := NewClient(h.hub, NewConnectionWrapper(conn), h.cfg, traceID, h.logger)
	h.hub.Register(client)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines
	go client.WritePump()
	go client.ReadPump()
}
