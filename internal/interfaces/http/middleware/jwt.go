package middleware

import (
	"errors"
	"strings"

	"github.com/erp/cashflow/internal/infrastructure/auth"
	"github.com/erp/cashflow/internal/infrastructure/logger"
	"github.com/erp/cashflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	JWTClaimsKey  = "jwt_claims"
	JWTSubjectKey = "jwt_subject"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// JWTMiddlewareConfig configures bearer authentication
type JWTMiddlewareConfig struct {
	JWTService *auth.JWTService
	Skip       PathSet
	Logger     *zap.Logger
}

// DefaultJWTConfig leaves the operational endpoints, the token endpoint and
// the docs open. Swagger has its own guard.
func DefaultJWTConfig(jwtService *auth.JWTService) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		JWTService: jwtService,
		Skip:       operationalPaths.With("/api/v1/auth/token"),
	}
}

// JWTAuthMiddleware authenticates with DefaultJWTConfig
func JWTAuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(DefaultJWTConfig(jwtService))
}

// JWTAuthMiddlewareWithConfig validates the bearer token and stores its
// claims on the context. A service without a signing secret lets every
// request through.
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if cfg.JWTService == nil || !cfg.JWTService.Enabled() || cfg.Skip.Match(c.Request.URL.Path) {
			c.Next()
			return
		}

		token, reason := bearerToken(c.GetHeader(AuthHeaderKey))
		if token == "" {
			rejectToken(c, log, auth.ErrInvalidToken, reason)
			return
		}
		claims, err := cfg.JWTService.ValidateToken(token)
		if err != nil {
			rejectToken(c, log, err, "token validation failed")
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTSubjectKey, claims.Subject)
		c.Request = c.Request.WithContext(logger.WithClientID(c.Request.Context(), claims.Subject))
		log.Debug("JWT authentication successful",
			zap.String("subject", claims.Subject),
			zap.Strings("scopes", claims.Scopes))
		c.Next()
	}
}

// bearerToken extracts the token of an Authorization header. The scheme is
// matched case-insensitively. On failure it returns "" and the reason.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, strings.TrimSpace(BearerPrefix)) {
		return "", "invalid authorization header format"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "missing token"
	}
	return token, ""
}

// tokenFailure maps a validation error to the client-facing code and message
func tokenFailure(err error) (string, string) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrInvalidTokenType):
		return dto.ErrCodeTokenInvalid, "Invalid token type"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return dto.ErrCodeTokenInvalid, "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidClaims):
		return dto.ErrCodeTokenInvalid, "Invalid token"
	}
	return dto.ErrCodeUnauthorized, "Authentication required"
}

func rejectToken(c *gin.Context, log *zap.Logger, err error, reason string) {
	log.Warn("JWT authentication failed",
		zap.Error(err),
		zap.String("reason", reason),
		zap.String("path", c.Request.URL.Path),
	)
	code, message := tokenFailure(err)
	abort(c, code, message)
}

// RequireScope rejects tokens holding none of scopes. It passes everything
// through when authentication is disabled.
func RequireScope(jwtService *auth.JWTService, scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtService == nil || !jwtService.Enabled() {
			c.Next()
			return
		}

		claims := GetJWTClaims(c)
		switch {
		case claims == nil:
			abort(c, dto.ErrCodeUnauthorized, "Authentication required")
		case !claims.HasAnyScope(scopes...):
			abort(c, dto.ErrCodeForbidden, "Token lacks required scope: "+strings.Join(scopes, " or "))
		default:
			c.Next()
		}
	}
}

// GetJWTClaims returns the validated claims, or nil
func GetJWTClaims(c *gin.Context) *auth.Claims {
	v, _ := c.Get(JWTClaimsKey)
	claims, _ := v.(*auth.Claims)
	return claims
}

// GetJWTSubject retrieves the authenticated client ID, or ""
func GetJWTSubject(c *gin.Context) string {
	return c.GetString(JWTSubjectKey)
}
