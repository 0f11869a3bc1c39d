package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erp/cashflow/internal/domain/shared"
)

// TracerName is the instrumentation scope of service spans
const TracerName = "github.com/erp/cashflow"

// Span attribute keys.
const (
	SpanAttrInvoiceID   = "invoice_id"
	SpanAttrCustomerID  = "customer_id"
	SpanAttrModelID     = "model_id"
	SpanAttrPurpose     = "model_purpose"
	SpanAttrScenario    = "scenario"
	SpanAttrGranularity = "granularity"
	SpanAttrBatchSize   = "batch_size"
	SpanAttrDaysAhead   = "days_ahead"
	SpanAttrSamples     = "training_samples"
)

// StartServiceSpan starts an internal span named {service}.{method}, e.g.
// "prediction.predict_invoice", with alternating key/value attributes. The
// caller must End it.
func StartServiceSpan(ctx context.Context, service, method string, keyValues ...any) (context.Context, trace.Span) {
	var opts []trace.SpanStartOption
	if attrs := pairsToAttributes(keyValues); len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, service+"."+method, opts...)
}

// SetAttributes adds alternating key/value pairs to span. Non-string keys are skipped.
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil {
		return
	}
	span.SetAttributes(pairsToAttributes(keyValues)...)
}

// RecordError records err on span and marks the span failed. Domain errors
// keep their code as an attribute so failed predictions can be grouped.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if de, ok := shared.AsDomainError(err); ok {
		span.SetAttributes(attribute.String("error.code", de.Code))
	}
}

func pairsToAttributes(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, toAttribute(key, keyValues[i+1]))
	}
	return attrs
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
