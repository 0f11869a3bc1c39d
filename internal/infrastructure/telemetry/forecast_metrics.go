package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ForecastMetrics records prediction and training activity. A nil
// *ForecastMetrics is valid and records nothing.
type ForecastMetrics struct {
	predictions      metric.Int64Counter
	predictionErrors metric.Int64Counter
	riskScore        metric.Float64Histogram
	clamped          metric.Int64Counter
	forecasts        metric.Int64Counter
	trainingRuns     metric.Int64Counter
	trainingDuration metric.Float64Histogram
	activations      metric.Int64Counter
}

// NewForecastMetrics registers the forecasting instruments on meter.
func NewForecastMetrics(meter metric.Meter) (*ForecastMetrics, error) {
	m := &ForecastMetrics{}
	var err error

	if m.predictions, err = meter.Int64Counter("forecast_predictions_total",
		metric.WithDescription("Invoice payment predictions produced")); err != nil {
		return nil, fmt.Errorf("create predictions counter: %w", err)
	}
	if m.predictionErrors, err = meter.Int64Counter("forecast_prediction_errors_total",
		metric.WithDescription("Invoice predictions that failed")); err != nil {
		return nil, fmt.Errorf("create prediction errors counter: %w", err)
	}
	if m.riskScore, err = meter.Float64Histogram("forecast_prediction_risk_score",
		metric.WithDescription("Distribution of predicted late-payment risk"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9)); err != nil {
		return nil, fmt.Errorf("create risk histogram: %w", err)
	}
	if m.clamped, err = meter.Int64Counter("forecast_prediction_clamped_total",
		metric.WithDescription("Predictions moved forward because the estimate was in the past")); err != nil {
		return nil, fmt.Errorf("create clamp counter: %w", err)
	}
	if m.forecasts, err = meter.Int64Counter("forecast_cashflow_requests_total",
		metric.WithDescription("Cash-flow and trend forecasts served")); err != nil {
		return nil, fmt.Errorf("create forecast counter: %w", err)
	}
	if m.trainingRuns, err = meter.Int64Counter("forecast_training_runs_total",
		metric.WithDescription("Model training runs by purpose and outcome")); err != nil {
		return nil, fmt.Errorf("create training counter: %w", err)
	}
	if m.trainingDuration, err = meter.Float64Histogram("forecast_training_duration_seconds",
		metric.WithDescription("Model training wall time"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create training histogram: %w", err)
	}
	if m.activations, err = meter.Int64Counter("forecast_model_activations_total",
		metric.WithDescription("Model activations by purpose")); err != nil {
		return nil, fmt.Errorf("create activation counter: %w", err)
	}
	return m, nil
}

// RecordPrediction counts one successful prediction
func (m *ForecastMetrics) RecordPrediction(ctx context.Context, riskScore float64, clamped bool) {
	if m == nil {
		return
	}
	m.predictions.Add(ctx, 1)
	m.riskScore.Record(ctx, riskScore)
	if clamped {
		m.clamped.Add(ctx, 1)
	}
}

// RecordPredictionError counts one failed prediction, labeled by error code
func (m *ForecastMetrics) RecordPredictionError(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.predictionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordForecast counts one served forecast
func (m *ForecastMetrics) RecordForecast(ctx context.Context, kind, granularity string) {
	if m == nil {
		return
	}
	m.forecasts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("granularity", granularity),
	))
}

// RecordTraining records a finished training run
func (m *ForecastMetrics) RecordTraining(ctx context.Context, purpose string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("outcome", outcome),
	)
	m.trainingRuns.Add(ctx, 1, attrs)
	m.trainingDuration.Record(ctx, took.Seconds(), attrs)
}

// RecordActivation counts one model activation
func (m *ForecastMetrics) RecordActivation(ctx context.Context, purpose string) {
	if m == nil {
		return
	}
	m.activations.Add(ctx, 1, metric.WithAttributes(attribute.String("purpose", purpose)))
}
