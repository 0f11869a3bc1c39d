package middleware

import (
	"net/http"
	"strings"

	"github.com/erp/cashflow/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength caps request IDs accepted from clients
const MaxRequestIDLength = 128

// TracingConfig configures server spans
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	Skip        PathSet // requests that get no span, such as probes
}

// DefaultTracingConfig traces everything but the operational endpoints
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{ServiceName: "cashflow", Enabled: true, Skip: operationalPaths}
}

// Tracing returns otelgin tracing with the default configuration
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig starts a server span per request and tags it with the
// request ID. The client ID is added by TracingAttributeInjector once the
// JWT middleware has run.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	traced := otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !cfg.Skip.Match(r.URL.Path)
	}))
	return func(c *gin.Context) {
		if id := getRequestID(c); id != "" {
			c.Set(RequestIDContextKey, id)
		}
		traced(c)
	}
}

// TracingAttributeInjector copies request and client identifiers onto the active span
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
		c.Next()
	}
}

func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := getRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if clientID := GetJWTSubject(c); clientID != "" {
		span.SetAttributes(attribute.String("client_id", clientID))
	}
	for _, p := range c.Params {
		if key := paramAttribute(c.FullPath(), p.Key); key != "" {
			span.SetAttributes(attribute.String(key, p.Value))
		}
	}
}

// paramAttribute names the span attribute for a path parameter, using the
// static segment before it: /predictions/invoice/:id tags invoice_id and
// /models/jobs/:id tags job_id. Unknown parameters are not copied.
func paramAttribute(route, param string) string {
	if param == "purpose" {
		return telemetry.SpanAttrPurpose
	}
	if param != "id" {
		return ""
	}
	prev := ""
	for part := range strings.SplitSeq(route, "/") {
		if part == ":id" {
			break
		}
		prev = part
	}
	switch prev {
	case "invoice":
		return telemetry.SpanAttrInvoiceID
	case "customer":
		return telemetry.SpanAttrCustomerID
	case "models":
		return telemetry.SpanAttrModelID
	case "jobs":
		return "job_id"
	}
	return ""
}

// getRequestID returns the request ID set by RequestID, or the truncated header
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDContextKey); id != "" {
		return id
	}
	headerID := c.GetHeader(RequestIDKey)
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}

// SpanErrorMarker marks the span as failed for 5xx responses and records the
// status code of every client or server error.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
