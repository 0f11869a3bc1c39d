package router

import (
	"github.com/erp/cashflow/internal/infrastructure/auth"
	"github.com/erp/cashflow/internal/infrastructure/config"
	"github.com/erp/cashflow/internal/infrastructure/logger"
	"github.com/erp/cashflow/internal/interfaces/http/handler"
	"github.com/erp/cashflow/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/erp/cashflow/docs"
)

// Handlers are the HTTP handlers the engine routes to
type Handlers struct {
	Predictions *handler.PredictionHandler
	Models      *handler.ModelHandler
	Auth        *handler.AuthHandler
	System      *handler.SystemHandler
}

// Options configures the middleware chain. A nil RateLimiter disables rate
// limiting and a nil Metrics disables the Prometheus endpoint.
type Options struct {
	HTTP             config.HTTPConfig
	Swagger          config.SwaggerConfig
	ServiceName      string
	TracingEnabled   bool
	ProfilingEnabled bool
	JWT              *auth.JWTService
	RateLimiter      *middleware.RateLimiter
	Metrics          *middleware.HTTPMetrics
	Logger           *zap.Logger
}

// NewEngine builds the gin engine with the full middleware chain and every route
func NewEngine(opts Options, h Handlers) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(opts.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Order matters: the request ID must exist before logging and tracing
	// read it, and JWT must run before the client ID is copied to the span.
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	tracing := middleware.DefaultTracingConfig()
	tracing.ServiceName = opts.ServiceName
	tracing.Enabled = opts.TracingEnabled
	engine.Use(middleware.TracingWithConfig(tracing))
	engine.Use(middleware.SpanErrorMarker())
	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = opts.ProfilingEnabled
	engine.Use(middleware.ProfilingWithConfig(profiling))
	engine.Use(middleware.Secure())
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = opts.HTTP.CORSAllowOrigins
	cors.AllowCredentials = true
	if len(opts.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = opts.HTTP.CORSAllowMethods
	}
	if len(opts.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = opts.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(cors))
	if opts.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(opts.HTTP.MaxBodySize))
	}
	if opts.Metrics != nil {
		engine.Use(opts.Metrics.Middleware())
	}
	if opts.RateLimiter != nil {
		engine.Use(middleware.RateLimit(opts.RateLimiter))
	}

	if h.System != nil {
		engine.GET("/health", h.System.Health)
		engine.GET("/health/ready", h.System.Ready)
	}
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	// Swagger gets its own JWT check: the API-wide one skips /swagger.
	swaggerJWT := middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService: opts.JWT,
		Logger:     log,
	})
	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:     opts.Swagger.Enabled,
			RequireAuth: opts.Swagger.RequireAuth,
			AllowedIPs:  opts.Swagger.AllowedIPs,
		}, swaggerJWT),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	jwtConfig := middleware.DefaultJWTConfig(opts.JWT)
	jwtConfig.Logger = log

	r := newAPIRouter(engine, opts.JWT, h)
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig), middleware.TracingAttributeInjector())
	r.Setup()

	return engine
}

// newAPIRouter declares the /api/v1 routes and the scope each one requires.
// /auth/token is skipped by the JWT middleware and needs no scope.
func newAPIRouter(engine *gin.Engine, jwt *auth.JWTService, h Handlers) *Router {
	r := NewRouter(engine,
		WithAPIVersion("v1"),
		WithScopeGuard(func(scope string) gin.HandlerFunc {
			return middleware.RequireScope(jwt, scope)
		}),
	)

	const (
		read   = auth.ScopePredictionsRead
		write  = auth.ScopePredictionsWrite
		models = auth.ScopeModelsWrite
	)

	if h.Auth != nil {
		r.Register(NewDomainGroup("auth", "/auth").
			POST("/token", "", h.Auth.IssueToken))
	}

	if p := h.Predictions; p != nil {
		r.Register(NewDomainGroup("predictions", "/predictions").
			POST("/invoice/:id", write, p.PredictInvoice).
			GET("/invoice/:id/history", read, p.InvoiceHistory).
			POST("/batch", write, p.PredictBatch).
			GET("/cashflow", read, p.ForecastCashflow).
			GET("/cashflow/report", read, p.CashflowReport).
			GET("/customer/:id", read, p.CustomerPredictions).
			GET("/high-risk", read, p.HighRisk).
			GET("/timeseries", read, p.Timeseries))
	}

	if m := h.Models; m != nil {
		r.Register(NewDomainGroup("models", "/models").
			GET("", read, m.List).
			POST("/train", models, m.Train).
			GET("/jobs/:id", read, m.GetJob).
			GET("/active/:purpose", read, m.Active).
			GET("/:id", read, m.Get).
			POST("/:id/activate", models, m.Activate).
			DELETE("/:id", models, m.Delete))
	}

	return r
}
