package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"armpose/internal/config"
	"armpose/internal/operations"
	sharedtest "armpose/internal/shared/testutil"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Server.Port = freePort(t)
	cfg.Paths = config.PathsConfig{
		DataDir:   filepath.Join(dir, "data"),
		UploadDir: filepath.Join(dir, "uploads"),
		ExportDir: filepath.Join(dir, "exports"),
		LogsDir:   filepath.Join(dir, "logs"),
	}
	cfg.Telemetry.TracingEnabled = false
	cfg.Telemetry.MetricsEnabled = false
	cfg.Security.RateLimit.Enabled = false
	cfg.Model.Epochs = 2
	cfg.Model.HiddenUnits1 = 8
	cfg.Model.HiddenUnits2 = 4
	cfg.Playback.Tick = time.Millisecond
	return cfg
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	logger, _ := sharedtest.NewTestLogger(t)
	app, err := New(testConfig(t), logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		app.cancelBase()
		app.Operations.Close()
		app.WebSocketHub.Stop()
	})
	return app
}

func TestNew(t *testing.T) {
	app := newTestApp(t)

	assert.NotNil(t, app.Router)
	assert.NotNil(t, app.Server)
	assert.NotNil(t, app.Pipeline)
	assert.NotNil(t, app.Health)
	assert.NotNil(t, app.Sessions)
	assert.Nil(t, app.OTelProviders.PrometheusHTTP)
	assert.DirExists(t, app.Paths.ExportDir)
	assert.Equal(t, fmt.Sprintf(":%d", app.Config.Server.Port), app.Server.Addr)
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	t.Setenv(config.EnvPrefix+"_SERVER_PORT", "-1")

	app, err := NewApplication()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.Nil(t, app)
}

func TestRouter_Endpoints(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		method, path string
		status       int
		contains     string
	}{
		{http.MethodGet, "/api/health/", http.StatusOK, `"sessions"`},
		{http.MethodGet, "/api/health/ready", http.StatusOK, `"ready"`},
		{http.MethodGet, "/api/version", http.StatusOK, `"version":"dev"`},
		{http.MethodGet, "/api/metrics/", http.StatusOK, `"websocket"`},
		{http.MethodGet, "/api/operations/", http.StatusOK, `"data":[]`},
		{http.MethodGet, "/api/sessions/", http.StatusOK, `"data":[]`},
		{http.MethodGet, "/api/nothing", http.StatusNotFound, `"type"`},
		{http.MethodPut, "/api/sessions/", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			app.Router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestRouter_SecurityHeadersAndRequestID(t *testing.T) {
	app := newTestApp(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	app.Router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_UploadLimit(t *testing.T) {
	app := newTestApp(t)
	app.Config.Server.MaxUploadBytes = 512
	app.setupRouter()

	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "calibration.csv")
	require.NoError(t, err)
	_, err = io.WriteString(part, strings.Repeat("x", 4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+created.Data.ID+"/calibration", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
}

func TestRouter_WebSocketReceivesSnapshots(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return app.WebSocketHub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	sum := app.Pipeline.CreateSession(context.Background())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "calibration.csv")
	require.NoError(t, err)
	_, err = io.WriteString(part, sharedtest.CalibrationCSV([][]float64{
		sharedtest.UniformRow(1, 1), sharedtest.UniformRow(2, 1),
	}))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/sessions/"+sum.ID+"/calibration", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		if strings.Contains(string(msg), operations.EventTypeOperationSnapshot) {
			assert.Contains(t, string(msg), sum.ID)
			return
		}
	}
}

func TestApplication_StartStop(t *testing.T) {
	logger, _ := sharedtest.NewTestLogger(t)
	app, err := New(testConfig(t), logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx, cancel))

	url := fmt.Sprintf("http://127.0.0.1:%d/api/health/live", app.Config.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	assert.NoError(t, app.Stop(stopCtx))
	assert.NoError(t, ctx.Err(), "a clean shutdown must not report a server error")
}

func TestApplication_Sweep(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	app.Pipeline.CreateSession(ctx)
	app.Pipeline.CreateSession(ctx)

	app.sweep(ctx, time.Hour)
	assert.Equal(t, 2, app.Sessions.Len())

	app.sweep(ctx, -time.Second)
	assert.Equal(t, 0, app.Sessions.Len())
}
