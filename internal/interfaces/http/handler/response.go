package handler

import "github.com/erp/cashflow/internal/interfaces/http/dto"

// Swagger-only envelopes. Handlers write dto.Response; these give swag a
// typed data field per endpoint.

// APIResponse is the success envelope
// @Description Success envelope; meta.total is set on list endpoints
type APIResponse[T any] struct {
	Success bool      `json:"success" example:"true"`
	Data    T         `json:"data"`
	Meta    *dto.Meta `json:"meta,omitempty"`
}

// ErrorResponse is the failure envelope
// @Description Failure envelope carrying a stable error code and the request ID
type ErrorResponse struct {
	Success bool          `json:"success" example:"false"`
	Error   dto.ErrorInfo `json:"error"`
}
