package http

import (
	"context"
	"io"

	"armpose/internal/dataset"
	"armpose/internal/exporter"
	"armpose/internal/operations"
	"armpose/internal/playback"
	"armpose/internal/regressor"
	"armpose/internal/services"
	"armpose/internal/session"
)

// PipelineServiceInterface is the part of services.PipelineService the
// session handlers depend on
type PipelineServiceInterface interface {
	CreateSession(ctx context.Context) session.Summary
	GetSession(id string) (session.Summary, error)
	ListSessions() []session.Summary
	DeleteSession(ctx context.Context, id string) error
	ResetSession(ctx context.Context, id string) (session.Summary, error)

	Calibrate(ctx context.Context, id string, u services.Upload) (*services.CalibrationResult, error)
	AddTraining(ctx context.Context, id string, uploads []services.Upload) (*services.TrainingResult, error)
	Train(ctx context.Context, id string, opts *regressor.Options) (*operations.OperationResponse, error)
	Test(ctx context.Context, id string, u services.Upload) (*services.TestResult, error)

	Frames(id string, offset, limit int) ([]playback.Frame, int, error)
	Standardized(id string) (*dataset.RecordSet, error)
	Export(ctx context.Context, w io.Writer, id string, format exporter.Format) error

	Playback(ctx context.Context, id string, action services.PlaybackAction) (playback.State, error)
	PlaybackState(id string) (playback.State, error)
}

var _ PipelineServiceInterface = (*services.PipelineService)(nil)
