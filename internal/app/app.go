package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"armpose/internal/config"
	apperrors "armpose/internal/errors"
	"armpose/internal/exporter"
	"armpose/internal/infrastructure"
	"armpose/internal/kinematics"
	customMiddleware "armpose/internal/middleware"
	"armpose/internal/operations"
	"armpose/internal/playback"
	"armpose/internal/services"
	"armpose/internal/session"
	"armpose/internal/stream"
	handlers "armpose/internal/transport/http"
	ws "armpose/internal/websocket"
)

const AppName = "armpose"

var (
	// Version and BuildTime are set at link time
	Version   = "dev"
	BuildTime = ""
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Logger        *slog.Logger
	Router        *chi.Mux
	Server        *http.Server
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	WebSocketHub  *ws.Hub
	Sessions      *session.Store
	Operations    *operations.Manager
	Pipeline      *services.PipelineService
	Health        *services.HealthService

	errorHandler *apperrors.ErrorHandler
	mqtt         *stream.Sink
	base         context.Context
	cancelBase   context.CancelFunc
	background   chan struct{}
}

// NewApplication loads configuration, installs the global logger and
// builds the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New builds the application from an explicit configuration
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	paths, err := cfg.ResolvePaths("")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFromTelemetry(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreateBusinessMetrics(providers.MeterOrGlobal())
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	base, cancel := context.WithCancel(context.Background())
	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: providers,
		Metrics:       metrics,
		errorHandler:  apperrors.NewErrorHandler(logger, cfg.Logging.Development, infrastructure.TraceIDFromContext),
		base:          base,
		cancelBase:    cancel,
	}

	if err := app.initializeServices(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()
	return app, nil
}

// initializeServices wires the hub, operations manager, session store and
// pipeline service
func (a *Application) initializeServices() error {
	wsMetrics, err := ws.NewOTelMetrics(a.OTelProviders.MeterOrGlobal())
	if err != nil {
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	hub := ws.NewHub(a.Logger, wsMetrics)
	hub.Start()
	a.WebSocketHub = hub

	opCfg := operations.ConfigFromApp(a.Config)
	manager := operations.NewManager(hub, nil, opCfg, operations.NewOperationTracer(a.Metrics), a.Logger)
	if err := operations.RegisterPipeline(manager, opCfg); err != nil {
		return fmt.Errorf("failed to register pipeline stages: %w", err)
	}
	a.Operations = manager

	a.Sessions = session.NewStore(a.Metrics)

	sinks := []playback.Sink{ws.NewSink(hub)}
	if a.Config.MQTT.Enabled {
		sink, err := stream.Connect(a.Config.MQTT, a.Logger)
		if err != nil {
			a.Logger.Warn("MQTT stream unavailable, continuing without it",
				slog.String("broker", a.Config.MQTT.Broker),
				slog.String("error", err.Error()))
		} else {
			a.mqtt = sink
			sinks = append(sinks, sink)
		}
	}

	a.Pipeline = services.NewPipelineService(services.PipelineOptions{
		Store:    a.Sessions,
		Manager:  manager,
		Exporter: exporter.NewExporter(a.Paths, a.Logger),
		Geometry: kinematics.FromConfig(a.Config.Kinematics),
		Tick:     a.Config.Playback.Tick,
		Sinks:    sinks,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
		Base:     a.base,
	})

	a.Health = services.NewHealthService(Version, BuildTime, services.HealthDeps{
		Sessions:    a.Sessions,
		Operations:  manager,
		Clients:     hub,
		MQTTEnabled: a.mqtt != nil,
	}, a.Logger)

	return nil
}

// setupRouter configures the Chi router with middleware and routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	// WebSocket upgrades bypass the response-wrapping middleware below
	wsHandler := ws.NewHandler(a.WebSocketHub, a.Config.WebSocket, a.Config.Security.AllowedOrigins, a.Logger)
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).Handle("/ws", wsHandler)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.NewOTelMiddleware(a.Metrics, a.Logger).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.errorHandler))
		r.Use(customMiddleware.DefaultSecureHeaders(a.Config.Logging.Development).Handler)
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(customMiddleware.CORSConfigFromSecurity(a.Config.Security, a.Logger)))
		}
		r.Use(customMiddleware.RateLimiterFromConfig(a.Config.Security.RateLimit, a.Logger).Handler)

		a.setupAPIRoutes(r)
	})

	a.Router = r
}

// setupAPIRoutes mounts the REST handlers under /api
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		// Quick endpoints
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout))

			health := handlers.NewHealthHandler(a.Health, a.Logger)
			r.Mount("/health", health.Routes())
			r.Get("/version", health.Version)

			r.Mount("/metrics", handlers.NewMetricsHandler(a.WebSocketHub, a.Sessions).Routes())
			r.Mount("/operations", handlers.NewOperationsHandler(
				handlers.ManagerStatusSource(a.Operations), a.Logger, a.errorHandler).Routes())

			clientLog := handlers.NewClientLogHandler(a.Logger, a.errorHandler)
			r.With(customMiddleware.MaxBodySize(64<<10)).Post("/logs", clientLog.Handle)
		})

		// Pipeline endpoints may upload large files and train for minutes
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.MaxBodySize(a.Config.Server.MaxUploadBytes))
			r.Use(customMiddleware.WriteDeadline(a.Config.Server.OperationTimeout))
			r.Use(customMiddleware.Timeout(a.Config.Server.OperationTimeout))

			sessions := handlers.NewSessionsHandler(a.Pipeline, a.Logger, a.errorHandler, 0)
			r.Mount("/sessions", sessions.Routes())
		})
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return a.base },
	}
}

// Start starts the HTTP server and the background maintenance loop
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("export_dir", a.Paths.ExportDir),
		slog.Bool("mqtt", a.mqtt != nil))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.background = make(chan struct{})
	go a.maintain(a.background)

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// maintain evicts idle sessions and finished operation snapshots
func (a *Application) maintain(done chan struct{}) {
	defer close(done)

	idle := a.Config.Server.SessionIdleTimeout
	if idle <= 0 {
		<-a.base.Done()
		return
	}

	ticker := time.NewTicker(max(idle/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-a.base.Done():
			return
		case <-ticker.C:
			a.sweep(a.base, idle)
		}
	}
}

func (a *Application) sweep(ctx context.Context, idle time.Duration) {
	sessions := a.Pipeline.CleanupIdle(ctx, idle)
	ops := a.Operations.GetBroadcaster().CleanupOldOperations(ctx, idle)
	if sessions > 0 || ops > 0 {
		a.Logger.InfoContext(ctx, "Expired idle state",
			slog.Int("sessions", sessions),
			slog.Int("operations", ops))
	}
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	serverErr := a.Server.Shutdown(shutdownCtx)

	// Stops playback goroutines and the maintenance loop
	a.cancelBase()
	if a.background != nil {
		<-a.background
	}

	a.Operations.Close()
	a.WebSocketHub.Stop()
	if a.mqtt != nil {
		a.mqtt.Close()
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	if serverErr != nil {
		return fmt.Errorf("server shutdown error: %w", serverErr)
	}
	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx, stop); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.Info("Received interrupt signal")

	return a.Stop(context.Background())
}
