package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSanitizeLabels(t *testing.T) {
	pairs := sanitizeLabels(map[string]string{
		"Operation":  "train_model",
		"invoice_id": "1234",
		"empty":      "",
		"Model-Kind": "gbdt",
	})

	assert.Equal(t, []string{"model_kind", "gbdt", "operation", "train_model"}, pairs)
	assert.Nil(t, sanitizeLabels(nil))
}

func TestSanitizeLabels_TruncatesLongValues(t *testing.T) {
	long := make([]byte, MaxLabelValueLength+10)
	for i := range long {
		long[i] = 'a'
	}

	pairs := sanitizeLabels(map[string]string{"route": string(long)})

	require.Len(t, pairs, 2)
	assert.Len(t, pairs[1], MaxLabelValueLength)
}

func TestWithProfilingLabels_RunsFunction(t *testing.T) {
	ran := false
	WithProfilingLabels(context.Background(), ForecastOperationLabels(OperationTrainModel, "payment_predictor"), func(context.Context) {
		ran = true
	})
	assert.True(t, ran)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestForecastMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewForecastMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPrediction(ctx, 0.8, true)
	m.RecordPrediction(ctx, 0.1, false)
	m.RecordPredictionError(ctx, "MODEL_NOT_TRAINED")
	m.RecordTraining(ctx, "payment_predictor", 2*time.Second, nil)
	m.RecordTraining(ctx, "cashflow_forecaster", time.Second, errors.New("short"))
	m.RecordActivation(ctx, "payment_predictor")

	got := collect(t, reader)
	preds := got["forecast_predictions_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(2), preds.DataPoints[0].Value)
	clamped := got["forecast_prediction_clamped_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(1), clamped.DataPoints[0].Value)
	runs := got["forecast_training_runs_total"].Data.(metricdata.Sum[int64])
	assert.Len(t, runs.DataPoints, 2)
}

func TestForecastMetrics_NilIsNoop(t *testing.T) {
	var m *ForecastMetrics
	assert.NotPanics(t, func() {
		m.RecordPrediction(context.Background(), 0.5, false)
		m.RecordForecast(context.Background(), "trend", "day")
		m.RecordActivation(context.Background(), "payment_predictor")
	})
}

type probe struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestDBTracingPlugin_RecordsQueryDuration(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&probe{}))

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	core, logs := observer.New(zapcore.WarnLevel)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.SlowQueryThresh = -1
	plugin := NewDBTracingPlugin(cfg, provider.Meter("test"), zap.New(core))
	require.NoError(t, plugin.Register(db))

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&probe{Name: "a"}).Error)
	var rows []probe
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)

	got := collect(t, reader)
	hist := got["db_query_duration_seconds"].Data.(metricdata.Histogram[float64])
	assert.GreaterOrEqual(t, len(hist.DataPoints), 2, "one series per operation")
	assert.GreaterOrEqual(t, logs.FilterMessage("Slow query").Len(), 2)
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), nil, zap.NewNop())
	assert.NoError(t, plugin.Register(db))
}

func TestForecastViews_TrainingBuckets(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := newSDKMeterProvider(reader)
	m, err := NewForecastMetrics(provider.Meter("test"))
	require.NoError(t, err)

	m.RecordTraining(context.Background(), "payment_predictor", 90*time.Second, nil)

	hist := collect(t, reader)["forecast_training_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, trainingSecondsBuckets, hist.DataPoints[0].Bounds)
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		assert.Contains(t, newSampler(tt.ratio).Description(), tt.want)
	}
}

func TestCollectorOptions(t *testing.T) {
	withEndpoint := func(e string) string { return "endpoint=" + e }
	withInsecure := func() string { return "insecure" }

	assert.Equal(t, []string{"endpoint=otel:4317"}, collectorOptions("otel:4317", false, withEndpoint, withInsecure))
	assert.Equal(t, []string{"endpoint=otel:4317", "insecure"}, collectorOptions("otel:4317", true, withEndpoint, withInsecure))
}

func TestResolveProfiles(t *testing.T) {
	defaults, err := resolveProfiles(nil)
	require.NoError(t, err)
	assert.Len(t, defaults, 6)

	types, err := resolveProfiles([]string{"cpu", "mutex"})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration}, types)

	_, err = NewProfiler(ProfilerConfig{
		Enabled:         true,
		ServerAddress:   "http://pyroscope:4040",
		ApplicationName: "cashflow",
		Profiles:        []string{"cpu", "heap"},
	}, zap.NewNop())
	assert.ErrorContains(t, err, `unknown profile "heap"`)
}

func TestResource_Build(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "team=treasury")

	res, err := Resource{ServiceName: "cashflow-forecast", Version: "1.2.0", Environment: "staging"}.build(context.Background())
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "cashflow-forecast", attrs["service.name"])
	assert.Equal(t, "1.2.0", attrs["service.version"])
	assert.Equal(t, "staging", attrs["deployment.environment.name"])
	assert.Equal(t, "treasury", attrs["team"])
	assert.NotEmpty(t, attrs["telemetry.sdk.version"])

	bare, err := Resource{}.build(context.Background())
	require.NoError(t, err)
	for _, kv := range bare.Attributes() {
		assert.NotEqual(t, "service.version", string(kv.Key))
	}
}

func TestShutdownProvider(t *testing.T) {
	var deadline time.Time
	err := shutdownProvider(context.Background(), "meter", func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return errors.New("collector unreachable")
	})

	assert.EqualError(t, err, "shutdown meter provider: collector unreachable")
	assert.WithinDuration(t, time.Now().Add(shutdownTimeout), deadline, time.Second)
	assert.NoError(t, shutdownProvider(context.Background(), "tracer", func(context.Context) error { return nil }))
}

type discardExporter struct{}

func (discardExporter) Export(context.Context, []sdklog.Record) error { return nil }
func (discardExporter) Shutdown(context.Context) error                { return nil }
func (discardExporter) ForceFlush(context.Context) error              { return nil }

func TestLoggerProvider_CoreFiltersBelowLevel(t *testing.T) {
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(discardExporter{})))
	lp := &LoggerProvider{provider: provider, resource: Resource{ServiceName: "cashflow-forecast"}}
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	core, err := lp.Core(zapcore.WarnLevel)
	require.NoError(t, err)
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))
}
