package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestPathSet_Match(t *testing.T) {
	set := operationalPaths.With("/api/v1/auth/token")

	for path, want := range map[string]bool{
		"/health":             true,
		"/health/ready":       true,
		"/healthz":            false,
		"/swagger/index.html": true,
		"/swagger":            false,
		"/api/v1/auth/token":  true,
		"/api/v1/models":      false,
	} {
		assert.Equal(t, want, set.Match(path), path)
	}
	assert.Len(t, operationalPaths, 4, "With must not grow the shared set")
}

func TestAPIResource(t *testing.T) {
	tests := map[string]string{
		"/api/v1/predictions/invoice/:id": "predictions",
		"/api/v2/models":                  "models",
		"/api/v1/:id":                     "",
		"/api/v1":                         "",
		"/health":                         "",
		"":                                "",
	}
	for route, want := range tests {
		assert.Equal(t, want, apiResource(route), route)
	}
}

type ctxKey struct{}

func TestProfiling_ServesEveryRequest(t *testing.T) {
	for name, cfg := range map[string]ProfilingConfig{
		"enabled":  DefaultProfilingConfig(),
		"disabled": {},
	} {
		t.Run(name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			r.Use(ProfilingWithConfig(cfg))

			served := 0
			handle := func(c *gin.Context) {
				served++
				c.Status(http.StatusOK)
			}
			r.GET("/api/v1/predictions/invoice/:id", handle)
			r.GET("/health", handle)

			for _, path := range []string{"/api/v1/predictions/invoice/42", "/health"} {
				w := httptest.NewRecorder()
				r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
				assert.Equal(t, http.StatusOK, w.Code)
			}
			assert.Equal(t, 2, served)
		})
	}
}

func TestProfiling_KeepsRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKey{}, "kept"))
		c.Next()
	})
	r.Use(Profiling())

	var got any
	r.GET("/api/v1/models", func(c *gin.Context) {
		got = c.Request.Context().Value(ctxKey{})
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	assert.Equal(t, "kept", got)
}
