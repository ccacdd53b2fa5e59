package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/render"
)

// Common error types following RFC 7807
const (
	TypeValidation      = "/errors/validation"
	TypeNotFound        = "/errors/not-found"
	TypeRateLimit       = "/errors/rate-limit"
	TypeInternal        = "/errors/internal"
	TypeServiceDown     = "/errors/service-unavailable"
	TypeTimeout         = "/errors/timeout"
	TypeConflict        = "/errors/conflict"
	TypePayloadTooLarge = "/errors/payload-too-large"
	TypeMethodNotAllow  = "/errors/method-not-allowed"
)

// Pipeline error types
const (
	TypeSchema        = "/errors/dataset/schema"
	TypeEmptyResult   = "/errors/dataset/empty"
	TypeParsing       = "/errors/dataset/parse"
	TypeConfiguration = "/errors/calibration/configuration"
	TypeTraining      = "/errors/model/training"
	TypePrediction    = "/errors/model/prediction"
	TypeStructure     = "/errors/model/output-structure"
)

type problemMapping struct {
	status int
	ptype  string
	title  string
}

var typeMappings = map[ErrorType]problemMapping{
	ErrTypeSchema:        {http.StatusUnprocessableEntity, TypeSchema, "Missing Required Columns"},
	ErrTypeEmptyResult:   {http.StatusUnprocessableEntity, TypeEmptyResult, "No Usable Data"},
	ErrTypeParsing:       {http.StatusBadRequest, TypeParsing, "Unreadable CSV"},
	ErrTypeConfiguration: {http.StatusConflict, TypeConfiguration, "Invalid Calibration"},
	ErrTypeTraining:      {http.StatusInternalServerError, TypeTraining, "Training Failed"},
	ErrTypePrediction:    {http.StatusInternalServerError, TypePrediction, "Prediction Failed"},
	ErrTypeStructure:     {http.StatusUnprocessableEntity, TypeStructure, "Malformed Model Output"},
	ErrTypeValidation:    {http.StatusBadRequest, TypeValidation, "Validation Failed"},
	ErrTypeNotFound:      {http.StatusNotFound, TypeNotFound, "Resource Not Found"},
	ErrTypeConflict:      {http.StatusConflict, TypeConflict, "Conflict"},
	ErrTypeStorage:       {http.StatusInternalServerError, TypeInternal, "Storage Error"},
	ErrTypeConfig:        {http.StatusInternalServerError, TypeInternal, "Configuration Error"},
}

// ProblemExtender is implemented by errors that contribute extension
// members (row numbers, frame index, missing columns) to a problem response.
type ProblemExtender interface {
	ProblemExtensions() map[string]interface{}
}

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
	traceID      func(context.Context) string
}

// NewErrorHandler creates a new error handler. traceID extracts the
// correlation ID placed on every problem; nil leaves it out.
func NewErrorHandler(logger *slog.Logger, includeStack bool, traceID func(context.Context) string) *ErrorHandler {
	if traceID == nil {
		traceID = func(context.Context) string { return "" }
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
		traceID:      traceID,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	problem := h.ErrorToProblem(err, r)
	if id := h.traceID(r.Context()); id != "" {
		problem.WithExtension("trace_id", id)
	}

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.String("error_type", string(TypeOf(err))),
		slog.Int("status", problem.Status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", getStackTrace())
	}

	_ = render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	var problem *ProblemDetails

	var apiErr *APIError
	var existing *ProblemDetails
	switch {
	case errors.As(err, &existing):
		return existing
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		problem = NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)
	case errors.As(err, &apiErr):
		problem = apiErrorToProblem(apiErr, r)
	default:
		if m, ok := typeMappings[TypeOf(err)]; ok {
			problem = NewProblemDetails(m.status, m.ptype, m.title, err.Error(), r.URL.Path)
			if TypeOf(err) == ErrTypeEmptyResult {
				problem.WithExtension("warning", true)
			}
		} else {
			problem = NewProblemDetails(
				http.StatusInternalServerError,
				TypeInternal,
				"Internal Server Error",
				"An unexpected error occurred while processing your request",
				r.URL.Path,
			)
		}
	}

	var ext ProblemExtender
	if errors.As(err, &ext) {
		for k, v := range ext.ProblemExtensions() {
			problem.WithExtension(k, v)
		}
	}

	return problem
}

func apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.StatusCode {
	case http.StatusBadRequest:
		problemType = TypeValidation
	case http.StatusNotFound:
		problemType = TypeNotFound
	case http.StatusConflict:
		problemType = TypeConflict
	case http.StatusRequestEntityTooLarge:
		problemType = TypePayloadTooLarge
	case http.StatusTooManyRequests:
		problemType = TypeRateLimit
	case http.StatusServiceUnavailable:
		problemType = TypeServiceDown
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}

	return problem
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	)
	if id := h.traceID(r.Context()); id != "" {
		problem.WithExtension("trace_id", id)
	}

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	_ = render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	)
	if id := h.traceID(r.Context()); id != "" {
		problem.WithExtension("trace_id", id)
	}
	_ = render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethodNotAllow,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	)
	if id := h.traceID(r.Context()); id != "" {
		problem.WithExtension("trace_id", id)
	}
	_ = render.Render(w, r, problem)
}

// getStackTrace returns the current stack trace
func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
