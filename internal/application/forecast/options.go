package forecast

import (
	"time"

	"github.com/erp/cashflow/internal/infrastructure/telemetry"
)

type options struct {
	concurrency int
	metrics     *telemetry.ForecastMetrics
	now         func() time.Time
}

func defaultOptions() options {
	return options{
		concurrency: 8,
		now:         time.Now,
	}
}

// Option configures a forecast service
type Option func(*options)

// WithBatchConcurrency bounds how many invoices a batch scores at once
func WithBatchConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithMetrics records predictions, forecasts and training runs on m
func WithMetrics(m *telemetry.ForecastMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
