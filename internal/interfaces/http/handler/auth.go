package handler

import (
	"errors"
	"time"

	"github.com/erp/cashflow/internal/infrastructure/auth"
	"github.com/erp/cashflow/internal/infrastructure/logger"
	"github.com/erp/cashflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenRequest is the client-credentials grant
type TokenRequest struct {
	ClientID     string   `json:"client_id" binding:"required,max=100" example:"billing-etl"`
	ClientSecret string   `json:"client_secret" binding:"required,max=200"`
	Scopes       []string `json:"scopes" binding:"omitempty,dive,oneof=predictions:read predictions:write models:write"`
}

// TokenResponse is an issued service token
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type" example:"Bearer"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int64     `json:"expires_in" example:"3600"`
	Scopes      []string  `json:"scopes"`
}

// AuthHandler exchanges client credentials for service tokens
type AuthHandler struct {
	BaseHandler
	clients *auth.ClientAuthenticator
	tokens  *auth.JWTService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(clients *auth.ClientAuthenticator, tokens *auth.JWTService) *AuthHandler {
	return &AuthHandler{clients: clients, tokens: tokens}
}

// IssueToken godoc
// @ID           issueToken
// @Summary      Issue a service token
// @Description  Exchanges a client ID and secret for a bearer token. Omitted scopes grant every scope.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body TokenRequest true "Client credentials"
// @Success      200 {object} APIResponse[TokenResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /auth/token [post]
func (h *AuthHandler) IssueToken(c *gin.Context) {
	if h.tokens == nil || !h.tokens.Enabled() || h.clients == nil {
		h.Fail(c, dto.ErrCodeUnavailable, "Token issuance is disabled")
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	log := logger.L(c.Request.Context())
	if err := h.clients.Authenticate(req.ClientID, req.ClientSecret); err != nil {
		log.Warn("token request rejected", zap.String("client_id", req.ClientID), zap.String("ip", c.ClientIP()))
		h.Fail(c, dto.ErrCodeInvalidCredentials, "Invalid client credentials")
		return
	}

	token, err := h.tokens.IssueToken(req.ClientID, req.Scopes)
	if err != nil {
		if errors.Is(err, auth.ErrMissingSecret) {
			h.Fail(c, dto.ErrCodeUnavailable, "Token issuance is disabled")
			return
		}
		h.HandleError(c, err)
		return
	}

	log.Info("service token issued", zap.String("client_id", req.ClientID), zap.Strings("scopes", token.Scopes))
	h.Success(c, TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   token.ExpiresAt,
		ExpiresIn:   int64(h.tokens.Expiration().Seconds()),
		Scopes:      token.Scopes,
	})
}
