package http

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"armpose/internal/dataset"
	apperrors "armpose/internal/errors"
	"armpose/internal/exporter"
	"armpose/internal/middleware"
	"armpose/internal/regressor"
	"armpose/internal/services"
	"armpose/internal/session"
)

// defaultMultipartMemory is the part of an upload kept in memory before
// spilling to temp files
const defaultMultipartMemory = 8 << 20

// SessionsHandler serves the session lifecycle, uploads, training,
// predictions, export and playback
type SessionsHandler struct {
	service      PipelineServiceInterface
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
	validator    *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
	maxMemory    int64
}

// NewSessionsHandler creates the handler. maxMemory <= 0 uses 8 MiB.
func NewSessionsHandler(service PipelineServiceInterface, logger *slog.Logger, errorHandler *apperrors.ErrorHandler, maxMemory int64) *SessionsHandler {
	if maxMemory <= 0 {
		maxMemory = defaultMultipartMemory
	}
	return &SessionsHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "sessions_handler")),
		errorHandler: errorHandler,
		validator:    middleware.NewValidationMiddleware(logger, errorHandler),
		query:        middleware.NewQueryParamValidator(errorHandler),
		maxMemory:    maxMemory,
	}
}

// Routes returns the session routes
func (h *SessionsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.ListSessions)
	r.Post("/", h.CreateSession)

	r.Route("/{sessionID}", func(r chi.Router) {
		r.Use(h.SessionCtx)
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Post("/reset", h.ResetSession)

		r.Post("/calibration", h.Calibrate)
		r.Post("/training", h.AddTraining)
		r.With(h.validator.ValidateJSON).Post("/train", h.Train)
		r.Post("/test", h.Test)

		r.Get("/predictions", h.Predictions)
		r.Get("/standardized", h.Standardized)
		r.Get("/export", h.Export)

		r.Get("/playback", h.PlaybackState)
		r.Post("/playback/{action}", h.Playback)
	})

	return r
}

// SessionCtx rejects session IDs that cannot have been issued
func (h *SessionsHandler) SessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := uuid.Parse(chi.URLParam(r, "sessionID")); err != nil {
			h.errorHandler.HandleError(w, r, session.ErrSessionNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func success(w http.ResponseWriter, r *http.Request, data interface{}) {
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   data,
	})
}

// ListSessions handles GET /api/sessions
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	success(w, r, h.service.ListSessions())
}

// CreateSession handles POST /api/sessions
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sum := h.service.CreateSession(r.Context())
	render.Status(r, http.StatusCreated)
	success(w, r, sum)
}

// GetSession handles GET /api/sessions/{sessionID}
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.GetSession(sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	success(w, r, sum)
}

// DeleteSession handles DELETE /api/sessions/{sessionID}
func (h *SessionsHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(r.Context(), sessionID(r)); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetSession handles POST /api/sessions/{sessionID}/reset
func (h *SessionsHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.ResetSession(r.Context(), sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	success(w, r, sum)
}

// Calibrate handles POST /api/sessions/{sessionID}/calibration with a
// multipart "file" field
func (h *SessionsHandler) Calibrate(w http.ResponseWriter, r *http.Request) {
	uploads, cleanup, err := h.uploads(r, "file")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer cleanup()

	res, err := h.service.Calibrate(r.Context(), sessionID(r), uploads[0])
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	success(w, r, res)
}

// AddTraining handles POST /api/sessions/{sessionID}/training with one or
// more multipart "files" fields
func (h *SessionsHandler) AddTraining(w http.ResponseWriter, r *http.Request) {
	uploads, cleanup, err := h.uploads(r, "files")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer cleanup()

	res, err := h.service.AddTraining(r.Context(), sessionID(r), uploads)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	success(w, r, res)
}

// TrainRequest overrides model options. Omitted fields keep the
// configured defaults; seed 0 is a valid explicit seed.
type TrainRequest struct {
	Epochs       int     `json:"epochs,omitempty" validate:"omitempty,min=1,max=10000"`
	BatchSize    int     `json:"batch_size,omitempty" validate:"omitempty,min=1,max=4096"`
	Activation   string  `json:"activation,omitempty" validate:"omitempty,activation"`
	HiddenUnits1 int     `json:"hidden_units_1,omitempty" validate:"omitempty,min=1,max=4096"`
	HiddenUnits2 int     `json:"hidden_units_2,omitempty" validate:"omitempty,min=1,max=4096"`
	LearningRate float64 `json:"learning_rate,omitempty" validate:"omitempty,gt=0,lte=10"`
	Seed         *int64  `json:"seed,omitempty"`
}

// Options converts the request into regressor options
func (req TrainRequest) Options() *regressor.Options {
	return &regressor.Options{
		Epochs:       req.Epochs,
		BatchSize:    req.BatchSize,
		Activation:   req.Activation,
		HiddenUnits1: req.HiddenUnits1,
		HiddenUnits2: req.HiddenUnits2,
		LearningRate: req.LearningRate,
		Seed:         req.Seed,
	}
}

// Train handles POST /api/sessions/{sessionID}/train. The body is optional.
func (h *SessionsHandler) Train(w http.ResponseWriter, r *http.Request) {
	var opts *regressor.Options

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		var req TrainRequest
		if err := render.DecodeJSON(bytes.NewReader(body), &req); err != nil {
			h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		opts = req.Options()
	}

	resp, err := h.service.Train(r.Context(), sessionID(r), opts)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	success(w, r, resp)
}

// Test handles POST /api/sessions/{sessionID}/test with a multipart
// "file" field
func (h *SessionsHandler) Test(w http.ResponseWriter, r *http.Request) {
	uploads, cleanup, err := h.uploads(r, "file")
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer cleanup()

	res, err := h.service.Test(r.Context(), sessionID(r), uploads[0])
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	success(w, r, res)
}

// Predictions handles GET /api/sessions/{sessionID}/predictions?offset=&limit=
func (h *SessionsHandler) Predictions(w http.ResponseWriter, r *http.Request) {
	offset, ok := h.query.ValidateInt(w, r, "offset", 0, 1<<30, 0)
	if !ok {
		return
	}
	limit, ok := h.query.ValidateInt(w, r, "limit", 0, 10000, 0)
	if !ok {
		return
	}

	frames, total, err := h.service.Frames(sessionID(r), offset, limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	success(w, r, map[string]interface{}{
		"frames": frames,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// StandardizedSeries is the chart view of standardized test data
type StandardizedSeries struct {
	Timestamps []string             `json:"timestamps"`
	Channels   map[string][]float64 `json:"channels"`
}

// Standardized handles GET /api/sessions/{sessionID}/standardized
func (h *SessionsHandler) Standardized(w http.ResponseWriter, r *http.Request) {
	set, err := h.service.Standardized(sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	out := StandardizedSeries{
		Timestamps: make([]string, set.Len()),
		Channels:   make(map[string][]float64, dataset.ChannelCount),
	}
	for i, rec := range set.Records {
		out.Timestamps[i] = rec.Timestamp
	}
	for _, ch := range dataset.Channels() {
		out.Channels[ch] = set.Column(ch)
	}
	success(w, r, out)
}

// Export handles GET /api/sessions/{sessionID}/export?format=csv|xlsx
func (h *SessionsHandler) Export(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.query.ValidateEnum(w, r, "format", []string{string(exporter.FormatCSV), string(exporter.FormatXLSX)}, string(exporter.FormatCSV))
	if !ok {
		return
	}
	format := exporter.Format(raw)
	id := sessionID(r)

	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf, id, format); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+exporter.FileName(id, format)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "export write failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()))
	}
}

// PlaybackState handles GET /api/sessions/{sessionID}/playback
func (h *SessionsHandler) PlaybackState(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.PlaybackState(sessionID(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	success(w, r, st)
}

// Playback handles POST /api/sessions/{sessionID}/playback/{action}
func (h *SessionsHandler) Playback(w http.ResponseWriter, r *http.Request) {
	action := services.PlaybackAction(chi.URLParam(r, "action"))
	st, err := h.service.Playback(r.Context(), sessionID(r), action)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	success(w, r, st)
}

// uploadName is validated before a part is handed to the pipeline
type uploadName struct {
	Filename string `json:"filename" validate:"required,filename"`
}

// uploads opens every part of the multipart field. The returned cleanup
// closes the parts and removes spilled temp files.
func (h *SessionsHandler) uploads(r *http.Request, field string) ([]services.Upload, func(), error) {
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, apperrors.ErrPayloadTooLarge
		}
		return nil, nil, apperrors.InvalidRequestWithError(err)
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		_ = r.MultipartForm.RemoveAll()
		return nil, nil, apperrors.NewValidationErrors([]apperrors.ValidationError{
			{Field: field, Message: field + " is required"},
		})
	}

	files := make([]multipart.File, 0, len(headers))
	cleanup := func() {
		for _, f := range files {
			_ = f.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}

	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		if err := h.validator.ValidateStruct(uploadName{Filename: fh.Filename}); err != nil {
			cleanup()
			return nil, nil, err
		}
		f, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, nil, apperrors.InvalidRequestWithError(err)
		}
		files = append(files, f)
		uploads = append(uploads, services.Upload{Name: fh.Filename, Body: f})
	}

	h.logger.DebugContext(r.Context(), "uploads received",
		slog.String("session_id", sessionID(r)),
		slog.String("field", field),
		slog.Int("files", len(uploads)))
	return uploads, cleanup, nil
}
