package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "armpose/internal/errors"
	"armpose/internal/infrastructure"
	"armpose/internal/operations"
)

// OperationStatusSource exposes running operations and their snapshots
type OperationStatusSource interface {
	ActiveOperations() []string
	GetSnapshot(operationID string) (*operations.OperationSnapshot, bool)
	GetSessionSnapshots(sessionID string) []*operations.OperationSnapshot
}

type managerSource struct {
	*operations.StatusBroadcaster
	manager *operations.Manager
}

func (s managerSource) ActiveOperations() []string {
	return s.manager.ActiveOperations()
}

// ManagerStatusSource adapts an operations manager and its broadcaster
func ManagerStatusSource(m *operations.Manager) OperationStatusSource {
	return managerSource{StatusBroadcaster: m.GetBroadcaster(), manager: m}
}

// OperationsHandler serves pipeline operation snapshots for polling
// clients that do not hold a WebSocket
type OperationsHandler struct {
	source       OperationStatusSource
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewOperationsHandler creates a new operations handler
func NewOperationsHandler(source OperationStatusSource, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *OperationsHandler {
	if source == nil {
		panic("source cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OperationsHandler{
		source:       source,
		logger:       logger.With(slog.String("handler", "operations")),
		errorHandler: errorHandler,
	}
}

// Routes returns a chi router for operations endpoints
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.ListActive)
	r.Get("/{operationID}", h.GetOperation)
	r.Get("/session/{sessionID}", h.ListSession)
	return r
}

// ListActive handles GET /api/operations
func (h *OperationsHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	ids := h.source.ActiveOperations()
	out := make([]*operations.OperationSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := h.source.GetSnapshot(id); ok {
			out = append(out, snap)
		}
	}
	success(w, r, out)
}

// GetOperation handles GET /api/operations/{operationID}
func (h *OperationsHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")
	ctx, span := otel.Tracer("armpose.operations").Start(r.Context(), "operations_handler.get",
		trace.WithAttributes(attribute.String("operation.id", id)))
	defer span.End()

	snap, ok := h.source.GetSnapshot(id)
	if !ok {
		h.logger.DebugContext(ctx, "operation not found",
			slog.String("operation_id", id),
			slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)))
		h.errorHandler.HandleError(w, r, apperrors.NewNotFoundError("operation"))
		return
	}
	span.SetAttributes(attribute.String("operation.status", snap.Status))
	success(w, r, snap)
}

// ListSession handles GET /api/operations/session/{sessionID}
func (h *OperationsHandler) ListSession(w http.ResponseWriter, r *http.Request) {
	snaps := h.source.GetSessionSnapshots(chi.URLParam(r, "sessionID"))
	if snaps == nil {
		snaps = []*operations.OperationSnapshot{}
	}
	success(w, r, snaps)
}
