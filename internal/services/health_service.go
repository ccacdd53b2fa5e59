package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// SessionCounter reports live sessions
type SessionCounter interface {
	Len() int
}

// OperationLister reports running operations
type OperationLister interface {
	ActiveOperations() []string
}

// ClientCounter reports connected WebSocket clients
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides health check functionality
type HealthService struct {
	version    string
	buildTime  string
	sessions   SessionCounter
	operations OperationLister
	clients    ClientCounter
	mqtt       bool
	startTime  time.Time
	logger     *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Count   int    `json:"count"`
}

// HealthDeps are the components the health check reports on. Any may be nil.
type HealthDeps struct {
	Sessions    SessionCounter
	Operations  OperationLister
	Clients     ClientCounter
	MQTTEnabled bool
}

// NewHealthService creates a new health service
func NewHealthService(version, buildTime string, deps HealthDeps, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:    version,
		buildTime:  buildTime,
		sessions:   deps.Sessions,
		operations: deps.Operations,
		clients:    deps.Clients,
		mqtt:       deps.MQTTEnabled,
		startTime:  time.Now(),
		logger:     logger.With(slog.String("service", "health")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(hs.startTime).Seconds(),
			"goroutines":     runtime.NumGoroutine(),
			"go_version":     runtime.Version(),
			"os":             runtime.GOOS,
			"arch":           runtime.GOARCH,
		},
		Services: make(map[string]interface{}),
	}
	if hs.buildTime != "" {
		status.Runtime["build_time"] = hs.buildTime
	}

	if hs.sessions != nil {
		status.Services["sessions"] = ServiceHealth{Status: "ok", Count: hs.sessions.Len()}
	}
	if hs.operations != nil {
		status.Services["operations"] = ServiceHealth{Status: "ok", Count: len(hs.operations.ActiveOperations())}
	}
	if hs.clients != nil {
		status.Services["websocket"] = ServiceHealth{Status: "ok", Count: hs.clients.ClientCount()}
	}
	mqtt := ServiceHealth{Status: "disabled"}
	if hs.mqtt {
		mqtt = ServiceHealth{Status: "ok", Message: "publishing playback frames"}
	}
	status.Services["mqtt"] = mqtt

	hs.logger.DebugContext(ctx, "health check completed", slog.String("status", status.Status))
	return status
}

// ReadinessCheck reports whether the service can accept pipeline requests
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: "ready", Timestamp: time.Now(), Version: hs.version}
	if hs.sessions == nil || hs.operations == nil {
		status.Status = "not_ready"
		hs.logger.WarnContext(ctx, "readiness check failed", slog.String("reason", "pipeline not wired"))
	}
	return status
}

// LivenessCheck reports that the process is alive
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{Status: "alive", Timestamp: time.Now(), Version: hs.version}
}

// Version returns the build version
func (hs *HealthService) Version() map[string]string {
	return map[string]string{
		"version":    hs.version,
		"build_time": hs.buildTime,
		"go_version": runtime.Version(),
	}
}
