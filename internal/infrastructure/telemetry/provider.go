package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const shutdownTimeout = 10 * time.Second

// Resource identifies this process on every exported span, metric and log
type Resource struct {
	ServiceName string
	Version     string
	Environment string
}

// build merges the OTEL_RESOURCE_ATTRIBUTES environment, host and SDK
// detectors with r. Fields left empty are not set.
func (r Resource) build(ctx context.Context) (*resource.Resource, error) {
	var attrs []attribute.KeyValue
	if r.ServiceName != "" {
		attrs = append(attrs, semconv.ServiceName(r.ServiceName))
	}
	if r.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(r.Version))
	}
	if r.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(r.Environment))
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
	// a partial resource still carries our own attributes
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}
	return res, nil
}

// collectorOptions builds the endpoint options every OTLP gRPC exporter takes
func collectorOptions[O any](endpoint string, insecure bool, withEndpoint func(string) O, withInsecure func() O) []O {
	opts := []O{withEndpoint(endpoint)}
	if insecure {
		opts = append(opts, withInsecure())
	}
	return opts
}

// shutdownProvider gives one signal's provider shutdownTimeout to flush
func shutdownProvider(ctx context.Context, signal string, shutdown func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown %s provider: %w", signal, err)
	}
	return nil
}
