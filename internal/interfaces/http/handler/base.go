package handler

import (
	"net/http"

	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/erp/cashflow/internal/interfaces/http/dto"
	"github.com/erp/cashflow/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BaseHandler writes the response envelope for every handler
type BaseHandler struct{}

func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDContextKey); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDKey)
}

// parseUUIDParam reads a path parameter as a UUID, answering 400 when it is not one
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.Fail(c, dto.ErrCodeBadRequest, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.OK(data))
}

// SuccessList reports the list size in meta
func (h *BaseHandler) SuccessList(c *gin.Context, data any, total int) {
	c.JSON(http.StatusOK, dto.List(data, total))
}

// Accepted answers 202 for queued work
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.OK(data))
}

func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail writes an error envelope whose status follows from code
func (h *BaseHandler) Fail(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.Fail(code, message, getRequestID(c)))
}

// BindError answers a failed ShouldBind with field-level details
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// HandleError answers with the code and message of a DomainError anywhere in
// err's chain. Other errors become INTERNAL_ERROR and their text is not
// exposed.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	if de, ok := shared.AsDomainError(err); ok {
		h.Fail(c, de.Code, de.Message)
		return
	}
	h.Fail(c, dto.ErrCodeInternal, "An unexpected error occurred")
}
