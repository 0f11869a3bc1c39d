package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const defaultExportInterval = 60 * time.Second

// MetricsConfig controls metric export
type MetricsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	Insecure          bool
	ExportInterval    time.Duration // zero exports every minute
	Resource          Resource
}

// MeterProvider owns the OTLP metrics pipeline. Its zero value hands out
// the global no-op meter.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
}

// Bucket layouts for instruments whose values span very different ranges
// than the SDK's default latency buckets.
var (
	trainingSecondsBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}
	querySecondsBuckets    = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
)

func forecastViews() []sdkmetric.View {
	bucketView := func(name string, bounds []float64) sdkmetric.View {
		return sdkmetric.NewView(
			sdkmetric.Instrument{Name: name},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: bounds}},
		)
	}
	return []sdkmetric.View{
		bucketView("forecast_training_duration_seconds", trainingSecondsBuckets),
		bucketView("db_query_duration_seconds", querySecondsBuckets),
	}
}

// newSDKMeterProvider wires reader with the forecast views
func newSDKMeterProvider(reader sdkmetric.Reader, opts ...sdkmetric.Option) *sdkmetric.MeterProvider {
	opts = append(opts, sdkmetric.WithReader(reader), sdkmetric.WithView(forecastViews()...))
	return sdkmetric.NewMeterProvider(opts...)
}

// NewMeterProvider exports metrics over OTLP gRPC and registers the
// provider globally. When disabled the global no-op provider stays.
func NewMeterProvider(ctx context.Context, cfg MetricsConfig, logger *zap.Logger) (*MeterProvider, error) {
	mp := &MeterProvider{}
	if !cfg.Enabled {
		logger.Info("Metric export disabled")
		return mp, nil
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = defaultExportInterval
	}

	res, err := cfg.Resource.build(ctx)
	if err != nil {
		return nil, err
	}
	exporter, err := otlpmetricgrpc.New(ctx, collectorOptions(cfg.CollectorEndpoint, cfg.Insecure,
		otlpmetricgrpc.WithEndpoint, otlpmetricgrpc.WithInsecure)...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	mp.provider = newSDKMeterProvider(
		sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp.provider)

	logger.Info("Exporting metrics",
		zap.String("collector", cfg.CollectorEndpoint),
		zap.Duration("interval", interval))
	return mp, nil
}

// Shutdown exports what the periodic reader still holds
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if mp.provider == nil {
		return nil
	}
	return shutdownProvider(ctx, "meter", mp.provider.Shutdown)
}

// Meter returns a named meter
func (mp *MeterProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if mp == nil || mp.provider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return mp.provider.Meter(name, opts...)
}

// IsEnabled reports whether metrics are exported
func (mp *MeterProvider) IsEnabled() bool {
	return mp != nil && mp.provider != nil
}
