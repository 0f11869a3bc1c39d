package middleware

import (
	"context"
	"strings"

	"github.com/erp/cashflow/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// ProfilingConfig configures per-request profile labels
type ProfilingConfig struct {
	Enabled bool
	Skip    PathSet
}

// DefaultProfilingConfig labels everything except the operational endpoints
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{Enabled: true, Skip: operationalPaths}
}

// Profiling labels requests with DefaultProfilingConfig
func Profiling() gin.HandlerFunc {
	return ProfilingWithConfig(DefaultProfilingConfig())
}

// ProfilingWithConfig attaches the matched route, method and API resource to
// CPU samples taken while the request is served. Unmatched routes carry no
// route label so 404 scans cannot inflate cardinality.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || cfg.Skip.Match(c.Request.URL.Path) {
			c.Next()
			return
		}

		route := c.FullPath()
		labels := telemetry.HTTPRequestLabels(route, c.Request.Method)
		if res := apiResource(route); res != "" {
			labels["resource"] = res
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// apiResource is the first segment after the versioned API prefix:
// "/api/v1/predictions/invoice/:id" gives "predictions".
func apiResource(route string) string {
	rest, ok := strings.CutPrefix(route, "/api/")
	if !ok {
		return ""
	}
	_, rest, _ = strings.Cut(rest, "/")
	res, _, _ := strings.Cut(rest, "/")
	if strings.HasPrefix(res, ":") || strings.HasPrefix(res, "*") {
		return ""
	}
	return res
}
