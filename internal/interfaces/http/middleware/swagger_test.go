package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestSwaggerProtection(t *testing.T) {
	svc := newTestJWTService(time.Hour)
	strictJWT := JWTAuthMiddlewareWithConfig(JWTMiddlewareConfig{JWTService: svc})

	tests := []struct {
		name       string
		cfg        SwaggerConfig
		remoteAddr string
		token      bool
		want       int
	}{
		{"disabled", SwaggerConfig{Enabled: false}, "127.0.0.1:1", false, http.StatusNotFound},
		{"open", SwaggerConfig{Enabled: true}, "203.0.113.9:1", false, http.StatusOK},
		{"ip allowed", SwaggerConfig{Enabled: true, AllowedIPs: []string{"127.0.0.1"}}, "127.0.0.1:1", false, http.StatusOK},
		{"ip denied", SwaggerConfig{Enabled: true, AllowedIPs: []string{"127.0.0.1"}}, "192.168.1.1:1", false, http.StatusForbidden},
		{"cidr allowed", SwaggerConfig{Enabled: true, AllowedIPs: []string{"10.0.0.0/8"}}, "10.1.2.3:1", false, http.StatusOK},
		{"auth missing", SwaggerConfig{Enabled: true, RequireAuth: true}, "127.0.0.1:1", false, http.StatusUnauthorized},
		{"auth present", SwaggerConfig{Enabled: true, RequireAuth: true}, "127.0.0.1:1", true, http.StatusOK},
		{"ip checked before auth", SwaggerConfig{Enabled: true, RequireAuth: true, AllowedIPs: []string{"127.0.0.1"}}, "192.168.1.1:1", true, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/swagger/*any", SwaggerProtection(tt.cfg, strictJWT), func(c *gin.Context) {
				if !c.Writer.Written() {
					c.String(http.StatusOK, "swagger")
				}
			})

			req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.token {
				req.Header.Set(AuthHeaderKey, BearerPrefix+issue(t, svc))
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestIPAllowed(t *testing.T) {
	allowed := parseAllowList([]string{"10.0.0.0/8", "192.168.1.1", "::1", "not-an-ip", "300.1.1.1/8"})
	assert.Len(t, allowed, 3)

	assert.True(t, ipAllowed("192.168.1.1", allowed))
	assert.True(t, ipAllowed("::1", allowed))
	assert.True(t, ipAllowed("10.0.0.5", allowed))
	assert.True(t, ipAllowed("::ffff:10.1.2.3", allowed))
	assert.False(t, ipAllowed("192.168.1.2", allowed))
	assert.False(t, ipAllowed("11.0.0.5", allowed))
	assert.False(t, ipAllowed("", allowed))
	assert.False(t, ipAllowed("10.0.0.5", nil))
}
