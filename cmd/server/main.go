package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/infrastructure/auth"
	"github.com/erp/cashflow/internal/infrastructure/cache"
	"github.com/erp/cashflow/internal/infrastructure/config"
	"github.com/erp/cashflow/internal/infrastructure/logger"
	"github.com/erp/cashflow/internal/infrastructure/persistence"
	"github.com/erp/cashflow/internal/infrastructure/report"
	"github.com/erp/cashflow/internal/infrastructure/scheduler"
	"github.com/erp/cashflow/internal/infrastructure/storage"
	"github.com/erp/cashflow/internal/infrastructure/telemetry"
	"github.com/erp/cashflow/internal/interfaces/http/handler"
	"github.com/erp/cashflow/internal/interfaces/http/middleware"
	"github.com/erp/cashflow/internal/interfaces/http/router"
)

const version = "1.0.0"

//	@title			Cash Flow Forecast API
//	@version		1.0
//	@description	Payment date prediction and cash-flow forecasting over the receivables ledger.

//	@contact.name	API Support
//	@contact.url	https://github.com/erp/cashflow

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Service token. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Fields:     map[string]string{"service": cfg.App.Name, "env": cfg.App.Env, "version": version},
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	log.Info("Starting cash flow forecast service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()
	res := telemetry.Resource{ServiceName: cfg.Telemetry.ServiceName, Version: version, Environment: cfg.App.Env}

	// Telemetry: logs first so the rest of startup goes through the bridge
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		Resource:          res,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if logsProvider.IsEnabled() {
		otelCore, err := logsProvider.Core(logger.ParseLevel(cfg.Telemetry.LogsLevel))
		if err != nil {
			log.Fatal("Failed to bridge logs", zap.Error(err))
		}
		if log, err = logger.New(logCfg, otelCore); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		Resource:          res,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		Resource:          res,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter("github.com/erp/cashflow")

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiler.Enabled,
		ServerAddress:     cfg.Profiler.ServerAddress,
		ApplicationName:   cfg.Profiler.ApplicationName,
		BasicAuthUser:     cfg.Profiler.BasicAuthUser,
		BasicAuthPassword: cfg.Profiler.BasicAuthPassword,
		Profiles:          cfg.Profiler.Profiles,
		Tags:              map[string]string{"env": cfg.App.Env, "version": version},
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if cfg.Profiler.Enabled && cfg.Profiler.SpanProfiles {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles not enabled", zap.Error(err))
		}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
		if err := logsProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down log exporter", zap.Error(err))
		}
	}()

	forecastMetrics, err := telemetry.NewForecastMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create forecast metrics", zap.Error(err))
	}

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.GormMode), cfg.Telemetry.DBSlowQueryThresh)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, meter, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	if err := db.RegisterPoolMetrics(meter); err != nil {
		log.Warn("Database pool metrics unavailable", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Initialize repositories
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	predictionRepo := persistence.NewGormPredictionRepository(db.DB)
	modelRepo := persistence.NewGormModelRepository(db.DB)

	artifacts, err := storage.NewArtifactStore(&cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to initialize artifact store", zap.Error(err))
	}

	// Load whatever models are active; an empty registry still serves health checks
	registry := forecastapp.NewRegistry(modelRepo, artifacts, log)
	if err := registry.ReloadAll(ctx); err != nil {
		log.Warn("Active models not loaded", zap.Error(err))
	}

	// Redis carries activation broadcasts and retrain leases between replicas
	cacheFactory := cache.NewFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(true),
		cache.WithInstanceID(uuid.NewString()),
	)
	if err := cacheFactory.Connect(ctx); err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := cacheFactory.Close(); err != nil {
			log.Error("Error closing cache", zap.Error(err))
		}
	}()

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	activations := cacheFactory.ActivationBus()
	go func() {
		if err := activations.Subscribe(bgCtx, cache.ReloadOnActivation(registry, log, 30*time.Second)); err != nil &&
			!errors.Is(err, context.Canceled) {
			log.Error("Activation subscription ended", zap.Error(err))
		}
	}()

	// Initialize application services
	serviceOpts := []forecastapp.Option{
		forecastapp.WithBatchConcurrency(cfg.Forecast.BatchConcurrency),
		forecastapp.WithMetrics(forecastMetrics),
	}
	predictionService := forecastapp.NewPredictionService(
		invoiceRepo, customerRepo, paymentRepo, predictionRepo, registry, log, serviceOpts...,
	)
	modelService := forecastapp.NewModelService(
		invoiceRepo, paymentRepo, modelRepo, artifacts, registry, activations,
		cfg.Forecast.TrainingOptions(), cfg.Forecast.TrendOptions(), log, serviceOpts...,
	)

	// Training job pool
	trainingScheduler := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Enabled:           cfg.Scheduler.Enabled,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		QueueSize:         cfg.Scheduler.QueueSize,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		JobRetention:      cfg.Scheduler.JobRetention,
	}, modelService, log)
	if err := trainingScheduler.Start(bgCtx); err != nil {
		log.Fatal("Failed to start training scheduler", zap.Error(err))
	}
	defer func() {
		if err := trainingScheduler.Stop(context.Background()); err != nil {
			log.Error("Error stopping training scheduler", zap.Error(err))
		}
	}()

	retrain := scheduler.NewRetrainTrigger(scheduler.RetrainTriggerConfig{
		Interval: cfg.Forecast.RetrainInterval,
		Purposes: forecast.Purposes,
	}, trainingScheduler, cacheFactory.LeaseStore(), modelService, log)
	if err := retrain.Start(bgCtx); err != nil {
		log.Fatal("Failed to start retrain trigger", zap.Error(err))
	}
	defer func() {
		if err := retrain.Stop(context.Background()); err != nil {
			log.Error("Error stopping retrain trigger", zap.Error(err))
		}
	}()
	log.Info("Training scheduler started",
		zap.Bool("enabled", cfg.Scheduler.Enabled),
		zap.Int("max_concurrent_jobs", cfg.Scheduler.MaxConcurrentJobs),
		zap.Duration("retrain_interval", cfg.Forecast.RetrainInterval),
	)

	// PDF reports need a Chrome; without one the report endpoint answers 503
	var reporter handler.CashflowReporter
	if cfg.Report.Enabled {
		renderer, err := report.NewChromedpRenderer(&report.ChromedpConfig{
			DefaultTimeout: cfg.Report.ChromeTimeout,
			RemoteURL:      cfg.Report.ChromeURL,
			NoSandbox:      cfg.Report.NoSandbox,
			MaxTabs:        cfg.Report.MaxTabs,
			Logger:         log,
		})
		if err != nil {
			log.Fatal("Failed to initialize PDF renderer", zap.Error(err))
		}
		generator, err := report.NewCashflowReportGenerator(renderer, cfg.Report.Locale, log)
		if err != nil {
			log.Fatal("Failed to initialize report generator", zap.Error(err))
		}
		reporter = generator
	}

	// Service tokens
	jwtService := auth.NewJWTService(cfg.JWT)
	if !jwtService.Enabled() {
		log.Warn("JWT secret not configured, API authentication is disabled")
	}
	clients, err := auth.NewClientAuthenticator(cfg.Auth.Clients)
	if err != nil {
		log.Fatal("Invalid API client configuration", zap.Error(err))
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitBurst)
		go limiter.Run(bgCtx.Done())
	}

	// Initialize HTTP handlers
	systemHandler := handler.NewSystemHandler(version, registry)
	systemHandler.AddCheck("database", db.Ping)
	systemHandler.AddCheck("cache", cacheFactory.Ping)

	engine := router.NewEngine(router.Options{
		HTTP:             cfg.HTTP,
		Swagger:          cfg.Swagger,
		ServiceName:      cfg.Telemetry.ServiceName,
		TracingEnabled:   tracerProvider.IsEnabled(),
		ProfilingEnabled: profiler.IsEnabled(),
		JWT:              jwtService,
		RateLimiter:      limiter,
		Metrics:          middleware.NewHTTPMetrics("cashflow"),
		Logger:           log,
	}, router.Handlers{
		Predictions: handler.NewPredictionHandler(predictionService, reporter),
		Models:      handler.NewModelHandler(modelService, trainingScheduler),
		Auth:        handler.NewAuthHandler(clients, jwtService),
		System:      systemHandler,
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
