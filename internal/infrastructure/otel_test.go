package infrastructure

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"

	"armpose/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOTelConfig(w io.Writer) *OTelConfig {
	cfg := DefaultOTelConfig()
	cfg.TraceWriter = w
	return cfg
}

func TestOTelInitialization(t *testing.T) {
	providers, err := InitializeOTel(testOTelConfig(io.Discard), quietLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelConfigFromTelemetry(t *testing.T) {
	tel := config.Default().Telemetry
	tel.TracingEnabled = false
	tel.MetricsEnabled = false
	tel.ServiceName = ""

	cfg := OTelConfigFromTelemetry(tel)
	assert.Equal(t, ServiceName, cfg.ServiceName)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, "none", cfg.MetricExporter)

	providers, err := InitializeOTel(cfg, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.NotNil(t, providers.MeterOrGlobal())
}

func TestTraceCorrelation(t *testing.T) {
	var spans bytes.Buffer
	providers, err := InitializeOTel(testOTelConfig(&spans), quietLogger())
	require.NoError(t, err)

	ctx, span := otel.Tracer("test").Start(context.Background(), "calibrate")
	traceID := TraceIDFromContext(ctx)
	assert.NotEmpty(t, traceID)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)

	RecordError(ctx, assert.AnError)
	span.End()

	require.NoError(t, providers.Shutdown(context.Background()))
	assert.Contains(t, spans.String(), "calibrate")
}

func TestTraceIDFromContextFallsBackToRequestID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "req-1")
	assert.Equal(t, "req-1", TraceIDFromContext(ctx))
}

func TestBusinessMetrics(t *testing.T) {
	m, err := CreateBusinessMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.RowsAccepted)
	assert.NotNil(t, m.EpochLoss)
	assert.NotNil(t, m.ActiveSessions)

	ctx := context.Background()
	loss := 0.5
	assert.NotPanics(t, func() {
		RecordValidation(ctx, m, "calibration", 3, 1)
		RecordEpoch(ctx, m, &loss)
		RecordEpoch(ctx, m, nil)
		RecordPredictions(ctx, m, 2, time.Millisecond, nil)
		RecordOperationStepMetrics(ctx, m, "train", time.Second, assert.AnError)
		RecordActiveSessionChange(ctx, m, 1)
		RecordFramePublished(ctx, m, "websocket")
	})
}

func TestRecordHelpersAcceptNilMetrics(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordValidation(ctx, nil, "test", 1, 0)
		RecordEpoch(ctx, nil, nil)
		RecordPredictions(ctx, nil, 1, 0, nil)
		RecordOperationStepMetrics(ctx, nil, "x", 0, nil)
		RecordActiveSessionChange(ctx, nil, -1)
		RecordFramePublished(ctx, nil, "mqtt")
	})
}

func TestPrometheusEndpoint(t *testing.T) {
	providers, err := InitializeOTel(testOTelConfig(io.Discard), quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	m, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)
	RecordValidation(context.Background(), m, "training", 7, 2)

	server := httptest.NewServer(providers.PrometheusHTTP)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "dataset_rows_accepted")
}
