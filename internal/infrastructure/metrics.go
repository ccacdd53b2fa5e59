package infrastructure

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics holds the HTTP, operation and pipeline instruments.
// A nil *BusinessMetrics is valid; every Record helper is a no-op on it.
type BusinessMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Operations metrics
	OperationStepsTotal   metric.Int64Counter
	OperationStepDuration metric.Float64Histogram
	OperationErrors       metric.Int64Counter

	// Pipeline metrics
	RowsAccepted       metric.Int64Counter
	RowsRejected       metric.Int64Counter
	TrainingEpochs     metric.Int64Counter
	EpochLoss          metric.Float64Histogram
	FramesPredicted    metric.Int64Counter
	PredictionDuration metric.Float64Histogram
	ActiveSessions     metric.Int64UpDownCounter
	FramesPublished    metric.Int64Counter
}

// CreateBusinessMetrics creates application-specific metrics
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	m := &BusinessMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.HTTPRequestsTotal, "http_requests_total", "Total number of HTTP requests", ""},
		{&m.OperationStepsTotal, "operation_steps_total", "Total number of pipeline stages executed", ""},
		{&m.OperationErrors, "operation_errors_total", "Total number of pipeline stage errors", ""},
		{&m.RowsAccepted, "dataset_rows_accepted_total", "CSV rows that passed validation", "{row}"},
		{&m.RowsRejected, "dataset_rows_rejected_total", "CSV rows dropped by validation", "{row}"},
		{&m.TrainingEpochs, "training_epochs_total", "Completed training epochs", "{epoch}"},
		{&m.FramesPredicted, "frames_predicted_total", "Test frames decoded into predictions", "{frame}"},
		{&m.FramesPublished, "frames_published_total", "Playback frames pushed to sinks", "{frame}"},
	}
	for _, c := range counters {
		opts := []metric.Int64CounterOption{metric.WithDescription(c.desc)}
		if c.unit != "" {
			opts = append(opts, metric.WithUnit(c.unit))
		}
		if *c.dst, err = meter.Int64Counter(c.name, opts...); err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
		unit string
	}{
		{&m.HTTPRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds", "s"},
		{&m.OperationStepDuration, "operation_step_duration_seconds", "Pipeline stage duration in seconds", "s"},
		{&m.EpochLoss, "training_epoch_loss", "Mean squared error reported per epoch", "1"},
		{&m.PredictionDuration, "prediction_batch_duration_seconds", "Wall time to predict a full test set", "s"},
	}
	for _, h := range histograms {
		if *h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit(h.unit)); err != nil {
			return nil, fmt.Errorf("create %s: %w", h.name, err)
		}
	}

	if m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.ActiveSessions, err = meter.Int64UpDownCounter(
		"pipeline_active_sessions",
		metric.WithDescription("Number of live pipeline sessions"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordValidation records the outcome of validating one CSV file
func RecordValidation(ctx context.Context, m *BusinessMetrics, role string, accepted, rejected int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("dataset.role", role))
	m.RowsAccepted.Add(ctx, int64(accepted), attrs)
	m.RowsRejected.Add(ctx, int64(rejected), attrs)
}

// RecordEpoch records one completed training epoch. A nil loss is counted
// but not observed.
func RecordEpoch(ctx context.Context, m *BusinessMetrics, loss *float64) {
	if m == nil {
		return
	}
	m.TrainingEpochs.Add(ctx, 1)
	if loss != nil {
		m.EpochLoss.Record(ctx, *loss)
	}
}

// RecordPredictions records a prediction batch
func RecordPredictions(ctx context.Context, m *BusinessMetrics, frames int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := attribute.String("status", "success")
	if err != nil {
		status = attribute.String("status", "failure")
	}
	m.PredictionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(status))
	if err == nil {
		m.FramesPredicted.Add(ctx, int64(frames))
	}
}

// RecordOperationStepMetrics records metrics for one pipeline stage execution
func RecordOperationStepMetrics(ctx context.Context, m *BusinessMetrics, stepID string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.String("step.id", stepID)}
	m.OperationStepsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	status := attribute.String("status", "success")
	if err != nil {
		status = attribute.String("status", "failure")
		m.OperationErrors.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))...))
	}
	m.OperationStepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(append(attrs, status)...))
}

// RecordActiveSessionChange adjusts the live session gauge
func RecordActiveSessionChange(ctx context.Context, m *BusinessMetrics, delta int64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}

// RecordFramePublished counts a playback frame pushed to a sink
func RecordFramePublished(ctx context.Context, m *BusinessMetrics, sink string) {
	if m == nil {
		return
	}
	m.FramesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}
