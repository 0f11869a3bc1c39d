package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/erp/cashflow/internal/infrastructure/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer installs a recording tracer provider for the test.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return sr
}

func attrValue(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.Emit(), true
		}
	}
	return "", false
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	sr := setupTestTracer(t)
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false}))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Empty(t, sr.Ended())
}

func TestTracing_RecordsSpanWithIdentifiers(t *testing.T) {
	sr := setupTestTracer(t)
	svc := newTestJWTService(time.Hour)

	router := gin.New()
	router.Use(RequestID(), Tracing(), SpanErrorMarker(), JWTAuthMiddleware(svc), TracingAttributeInjector())
	router.GET("/api/v1/predictions/high-risk", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/predictions/high-risk", nil)
	req.Header.Set(RequestIDKey, "req-7")
	req.Header.Set(AuthHeaderKey, BearerPrefix+issue(t, svc, auth.ScopePredictionsRead))
	router.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Name(), "/api/v1/predictions/high-risk")

	id, ok := attrValue(spans[0].Attributes(), "request_id")
	require.True(t, ok)
	assert.Equal(t, "req-7", id)
	client, ok := attrValue(spans[0].Attributes(), "client_id")
	require.True(t, ok)
	assert.Equal(t, "billing-etl", client)
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		status     int
		wantError  bool
		wantStatus bool
	}{
		{http.StatusOK, false, false},
		{http.StatusNotFound, false, true},
		{http.StatusServiceUnavailable, true, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr := setupTestTracer(t)
			router := gin.New()
			router.Use(Tracing(), SpanErrorMarker())
			router.GET("/x", func(c *gin.Context) { c.Status(tt.status) })

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantError, spans[0].Status().Code == codes.Error)
			if tt.wantStatus {
				code, ok := attrValue(spans[0].Attributes(), "http.status_code")
				require.True(t, ok)
				assert.Equal(t, strconv.Itoa(tt.status), code)
			}
		})
	}
}

func TestGetRequestID_TruncatesHeader(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	long := make([]byte, MaxRequestIDLength+20)
	for i := range long {
		long[i] = 'a'
	}
	c.Request.Header.Set(RequestIDKey, string(long))

	assert.Len(t, getRequestID(c), MaxRequestIDLength)

	c.Set(RequestIDContextKey, "from-context")
	assert.Equal(t, "from-context", getRequestID(c))
}

func TestParamAttribute(t *testing.T) {
	tests := []struct {
		route, param, want string
	}{
		{"/api/v1/predictions/invoice/:id", "id", "invoice_id"},
		{"/api/v1/predictions/invoice/:id/history", "id", "invoice_id"},
		{"/api/v1/predictions/customer/:id", "id", "customer_id"},
		{"/api/v1/models/:id/activate", "id", "model_id"},
		{"/api/v1/models/jobs/:id", "id", "job_id"},
		{"/api/v1/models/active/:purpose", "purpose", "model_purpose"},
		{"/api/v1/other/:id", "id", ""},
		{"/api/v1/models/:name", "name", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, paramAttribute(tt.route, tt.param), tt.route)
	}
}

func TestTracing_TagsRouteEntity(t *testing.T) {
	sr := setupTestTracer(t)
	router := gin.New()
	router.Use(Tracing(), TracingAttributeInjector())
	router.POST("/api/v1/predictions/invoice/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/api/v1/predictions/invoice/6a1f0c3e-0000-4000-8000-000000000001", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	id, ok := attrValue(spans[0].Attributes(), "invoice_id")
	require.True(t, ok)
	assert.Equal(t, "6a1f0c3e-0000-4000-8000-000000000001", id)
}

func TestTracing_SkipsOperationalPaths(t *testing.T) {
	sr := setupTestTracer(t)
	router := gin.New()
	router.Use(Tracing())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/models", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, sr.Ended())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	require.Len(t, sr.Ended(), 1)
	assert.Contains(t, sr.Ended()[0].Name(), "/api/v1/models")
}
