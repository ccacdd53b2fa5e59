package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apperrors "armpose/internal/errors"
	"armpose/internal/middleware"
)

// ClientLogHandler forwards browser log entries into the server log
type ClientLogHandler struct {
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
	validator    *middleware.ValidationMiddleware
}

// NewClientLogHandler creates a new client log handler
func NewClientLogHandler(logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *ClientLogHandler {
	return &ClientLogHandler{
		logger:       logger.With(slog.String("handler", "client_log")),
		errorHandler: errorHandler,
		validator:    middleware.NewValidationMiddleware(logger, errorHandler),
	}
}

// LogRequest represents a client log entry
type LogRequest struct {
	Level     string                 `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Message   string                 `json:"message" validate:"required,max=2000"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Source    string                 `json:"source,omitempty" validate:"max=200"`
	SessionID string                 `json:"session_id,omitempty" validate:"omitempty,uuid"`
}

var clientLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Handle handles POST /api/logs
func (h *ClientLogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	level, ok := clientLevels[req.Level]
	if !ok {
		level = slog.LevelInfo
	}

	attrs := []slog.Attr{
		slog.String("client_source", req.Source),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	}
	if req.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", req.SessionID))
	}
	if req.Data != nil {
		attrs = append(attrs, slog.Any("data", req.Data))
	}
	h.logger.LogAttrs(r.Context(), level, req.Message, attrs...)

	render.JSON(w, r, map[string]interface{}{"success": true})
}
