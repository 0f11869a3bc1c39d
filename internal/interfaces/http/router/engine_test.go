package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/erp/cashflow/docs"
	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/infrastructure/auth"
	"github.com/erp/cashflow/internal/infrastructure/config"
	"github.com/erp/cashflow/internal/infrastructure/scheduler"
	"github.com/erp/cashflow/internal/interfaces/http/handler"
	"github.com/erp/cashflow/internal/interfaces/http/middleware"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubPredictions struct{}

func (stubPredictions) Predict(context.Context, uuid.UUID) (*forecastapp.PredictionResponse, error) {
	return &forecastapp.PredictionResponse{}, nil
}

func (stubPredictions) PredictBatch(context.Context, forecastapp.BatchPredictRequest) (*forecastapp.BatchPredictionResponse, error) {
	return &forecastapp.BatchPredictionResponse{}, nil
}

func (stubPredictions) ForecastCashflow(context.Context, forecastapp.CashflowForecastQuery) (*forecastapp.CashflowForecastResponse, error) {
	return &forecastapp.CashflowForecastResponse{}, nil
}

func (stubPredictions) CustomerPredictions(context.Context, uuid.UUID) (*forecastapp.CustomerPredictionsResponse, error) {
	return &forecastapp.CustomerPredictionsResponse{}, nil
}

func (stubPredictions) HighRisk(context.Context, forecastapp.HighRiskQuery) (*forecastapp.HighRiskResponse, error) {
	return &forecastapp.HighRiskResponse{}, nil
}

func (stubPredictions) PredictionHistory(context.Context, uuid.UUID) ([]forecastapp.PredictionResponse, error) {
	return nil, nil
}

func (stubPredictions) ForecastTrend(context.Context, forecastapp.TrendForecastQuery) (*forecastapp.TrendForecastResponse, error) {
	return &forecastapp.TrendForecastResponse{}, nil
}

type stubModels struct{}

func (stubModels) CheckTrainable(context.Context, forecast.Purpose) error { return nil }
func (stubModels) Activate(context.Context, uuid.UUID) (*forecastapp.ModelResponse, error) {
	return &forecastapp.ModelResponse{}, nil
}
func (stubModels) Delete(context.Context, uuid.UUID) error { return nil }
func (stubModels) List(context.Context, string) ([]forecastapp.ModelResponse, error) {
	return []forecastapp.ModelResponse{}, nil
}
func (stubModels) Get(context.Context, uuid.UUID) (*forecastapp.ModelResponse, error) {
	return &forecastapp.ModelResponse{}, nil
}
func (stubModels) Active(context.Context, string) (*forecastapp.ModelResponse, error) {
	return &forecastapp.ModelResponse{}, nil
}

type stubJobs struct{}

func (stubJobs) Submit(purpose forecast.Purpose, trigger scheduler.Trigger, by string) (scheduler.TrainingJob, error) {
	return *scheduler.NewTrainingJob(purpose, trigger, by, time.Now()), nil
}

func (stubJobs) Get(uuid.UUID) (scheduler.TrainingJob, error) {
	return scheduler.TrainingJob{}, scheduler.ErrJobNotFound
}

func testJWT(secret string) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{Secret: secret, Issuer: "cashflow-test", TokenExpiration: time.Hour})
}

func newTestEngine(t *testing.T, jwt *auth.JWTService, mutate func(*Options)) *gin.Engine {
	t.Helper()
	opts := Options{
		HTTP:        config.HTTPConfig{MaxBodySize: 1 << 20},
		Swagger:     config.SwaggerConfig{Enabled: true},
		ServiceName: "cashflow-test",
		JWT:         jwt,
		Metrics:     middleware.NewHTTPMetrics("cashflow_test"),
		Logger:      zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewEngine(opts, Handlers{
		Predictions: handler.NewPredictionHandler(stubPredictions{}, nil),
		Models:      handler.NewModelHandler(stubModels{}, stubJobs{}),
		Auth:        handler.NewAuthHandler(nil, jwt),
		System:      handler.NewSystemHandler("test", nil),
	})
}

func request(t *testing.T, engine http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if method == http.MethodPost {
		body = strings.NewReader(`{"purpose":"payment_predictor"}`)
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(middleware.AuthHeaderKey, middleware.BearerPrefix+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestEngine_AuthDisabled(t *testing.T) {
	engine := newTestEngine(t, testJWT(""), nil)

	w := request(t, engine, http.MethodGet, "/api/v1/predictions/high-risk", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDKey))

	w = request(t, engine, http.MethodPost, "/api/v1/models/train", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestEngine_Scopes(t *testing.T) {
	jwt := testJWT("test-secret-key-at-least-32-chars")
	engine := newTestEngine(t, jwt, nil)

	reader, err := jwt.IssueToken("dashboard", []string{auth.ScopePredictionsRead})
	require.NoError(t, err)
	trainer, err := jwt.IssueToken("retrain-cron", []string{auth.ScopeModelsWrite})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"missing token", http.MethodGet, "/api/v1/predictions/cashflow", "", http.StatusUnauthorized},
		{"read scope reads", http.MethodGet, "/api/v1/predictions/cashflow", reader.AccessToken, http.StatusOK},
		{"read scope cannot predict", http.MethodPost, "/api/v1/predictions/invoice/" + uuid.NewString(), reader.AccessToken, http.StatusForbidden},
		{"read scope cannot train", http.MethodPost, "/api/v1/models/train", reader.AccessToken, http.StatusForbidden},
		{"models scope trains", http.MethodPost, "/api/v1/models/train", trainer.AccessToken, http.StatusAccepted},
		{"models scope cannot list", http.MethodGet, "/api/v1/models", trainer.AccessToken, http.StatusForbidden},
		{"garbage token", http.MethodGet, "/api/v1/models", "not.a.jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(t, engine, tt.method, tt.path, tt.token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestEngine_Metrics(t *testing.T) {
	engine := newTestEngine(t, testJWT(""), nil)

	request(t, engine, http.MethodGet, "/api/v1/models", "")
	w := request(t, engine, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cashflow_test_http_server_requests_total")
	assert.Contains(t, w.Body.String(), `route="/api/v1/models"`)
}

func TestEngine_RateLimit(t *testing.T) {
	engine := newTestEngine(t, testJWT(""), func(o *Options) {
		o.RateLimiter = middleware.NewRateLimiter(2, time.Minute, 2)
	})

	assert.Equal(t, http.StatusOK, request(t, engine, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, request(t, engine, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(t, engine, http.MethodGet, "/health", "").Code)
}

func TestEngine_Swagger(t *testing.T) {
	engine := newTestEngine(t, testJWT(""), nil)
	w := request(t, engine, http.MethodGet, "/swagger/doc.json", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Cash Flow Forecast API")

	engine = newTestEngine(t, testJWT(""), func(o *Options) { o.Swagger.Enabled = false })
	assert.Equal(t, http.StatusNotFound, request(t, engine, http.MethodGet, "/swagger/index.html", "").Code)

	jwt := testJWT("test-secret-key-at-least-32-chars")
	engine = newTestEngine(t, jwt, func(o *Options) { o.Swagger.RequireAuth = true })
	assert.Equal(t, http.StatusUnauthorized, request(t, engine, http.MethodGet, "/swagger/doc.json", "").Code)
}

var pathParam = regexp.MustCompile(`\{([^}]+)\}`)

func TestOpenAPIDocumentMatchesRoutes(t *testing.T) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData([]byte(docs.SwaggerInfo.ReadDoc()))
	require.NoError(t, err)
	require.NoError(t, doc.Validate(t.Context()))

	engine := newTestEngine(t, testJWT(""), nil)
	routes := make(map[string]bool)
	for _, route := range engine.Routes() {
		routes[route.Method+" "+route.Path] = true
	}

	documented := 0
	for path, item := range doc.Paths.Map() {
		ginPath := pathParam.ReplaceAllString(path, ":$1")
		for method := range item.Operations() {
			documented++
			assert.True(t, routes[method+" "+ginPath], "documented operation %s %s has no route", method, path)
		}
	}
	assert.Equal(t, 18, documented)
}

func TestAPIRoutes_Scopes(t *testing.T) {
	jwt := testJWT("")
	r := newAPIRouter(gin.New(), jwt, Handlers{
		Predictions: handler.NewPredictionHandler(stubPredictions{}, nil),
		Models:      handler.NewModelHandler(stubModels{}, stubJobs{}),
		Auth:        handler.NewAuthHandler(nil, jwt),
	})

	routes := r.Routes()
	require.Len(t, routes, 16)
	for _, route := range routes {
		if route.Path == "/api/v1/auth/token" {
			assert.Empty(t, route.Scope)
			continue
		}
		require.NotEmpty(t, route.Scope, "%s %s has no scope", route.Method, route.Path)
		if strings.HasPrefix(route.Path, "/api/v1/models") && route.Method != http.MethodGet {
			assert.Equal(t, auth.ScopeModelsWrite, route.Scope, "%s %s", route.Method, route.Path)
		}
		if route.Method == http.MethodGet {
			assert.Equal(t, auth.ScopePredictionsRead, route.Scope, "%s %s", route.Method, route.Path)
		}
	}
}
