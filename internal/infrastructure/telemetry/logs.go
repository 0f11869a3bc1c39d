package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsConfig controls log record export
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	Insecure          bool
	Resource          Resource
}

// LoggerProvider owns the log record pipeline fed by the zap bridge
type LoggerProvider struct {
	provider *sdklog.LoggerProvider
	resource Resource
}

// NewLoggerProvider exports log records to the collector and installs the
// provider globally. Disabled, it returns a provider whose core drops
// everything.
func NewLoggerProvider(ctx context.Context, cfg LogsConfig, logger *zap.Logger) (*LoggerProvider, error) {
	lp := &LoggerProvider{resource: cfg.Resource}
	if !cfg.Enabled {
		logger.Info("Log export disabled")
		return lp, nil
	}

	res, err := cfg.Resource.build(ctx)
	if err != nil {
		return nil, err
	}
	exporter, err := otlploggrpc.New(ctx, collectorOptions(cfg.CollectorEndpoint, cfg.Insecure,
		otlploggrpc.WithEndpoint, otlploggrpc.WithInsecure)...)
	if err != nil {
		return nil, fmt.Errorf("create log exporter: %w", err)
	}

	lp.provider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(lp.provider)
	logger.Info("Exporting logs", zap.String("collector", cfg.CollectorEndpoint))
	return lp, nil
}

// Shutdown flushes the batch processor
func (lp *LoggerProvider) Shutdown(ctx context.Context) error {
	if lp == nil || lp.provider == nil {
		return nil
	}
	return shutdownProvider(ctx, "logger", lp.provider.Shutdown)
}

// IsEnabled reports whether logs are exported
func (lp *LoggerProvider) IsEnabled() bool {
	return lp != nil && lp.provider != nil
}

// Core returns a zap core that ships entries at or above level as OTLP log
// records, scoped to the service name. It is a no-op core when export is
// disabled.
func (lp *LoggerProvider) Core(level zapcore.Level) (zapcore.Core, error) {
	if !lp.IsEnabled() {
		return zapcore.NewNopCore(), nil
	}
	scope := lp.resource.ServiceName
	if scope == "" {
		scope = "cashflow"
	}
	core, err := zapcore.NewIncreaseLevelCore(otelzap.NewCore(scope, otelzap.WithLoggerProvider(lp.provider)), level)
	if err != nil {
		return nil, fmt.Errorf("otel log core: %w", err)
	}
	return core, nil
}

// BridgeLogger tees base into the OpenTelemetry core, keeping base's options.
func BridgeLogger(base *zap.Logger, otelCore zapcore.Core) *zap.Logger {
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, otelCore)
	}))
}
