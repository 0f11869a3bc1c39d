package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStatus []forecastapp.SlotStatus

func (s staticStatus) Status() []forecastapp.SlotStatus { return s }

func newSystemRouter(h *SystemHandler) *gin.Engine {
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/health/ready", h.Ready)
	return r
}

func TestSystemHandler_Health(t *testing.T) {
	h := NewSystemHandler("1.2.3", nil)

	w, resp := perform(t, newSystemRouter(h), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.NotEmpty(t, data["go_version"])
}

func TestSystemHandler_Ready(t *testing.T) {
	models := staticStatus{
		{Purpose: forecast.PurposePaymentPredictor, Loaded: true, Version: "v_20240601_120000"},
		{Purpose: forecast.PurposeCashflowForecaster},
	}

	t.Run("all healthy", func(t *testing.T) {
		h := NewSystemHandler("dev", models)
		h.AddCheck("database", func(context.Context) error { return nil })
		h.AddCheck("cache", func(context.Context) error { return nil })

		w, resp := perform(t, newSystemRouter(h), http.MethodGet, "/health/ready", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]any)
		assert.Equal(t, true, data["ready"])
		checks := data["checks"].([]any)
		require.Len(t, checks, 2)
		assert.Equal(t, "cache", checks[0].(map[string]any)["name"])
		assert.Len(t, data["models"].([]any), 2)
	})

	t.Run("failing check", func(t *testing.T) {
		h := NewSystemHandler("dev", models)
		h.AddCheck("database", func(context.Context) error { return errors.New("dial tcp: connection refused") })

		w, resp := perform(t, newSystemRouter(h), http.MethodGet, "/health/ready", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)
		check := resp.Data.(map[string]any)["checks"].([]any)[0].(map[string]any)
		assert.Equal(t, false, check["healthy"])
		assert.Contains(t, check["error"], "connection refused")
	})
}
