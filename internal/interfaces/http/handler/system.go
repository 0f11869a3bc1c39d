package handler

import (
	"context"
	"maps"
	"net/http"
	"runtime"
	"slices"
	"time"

	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// ReadinessCheck reports whether one dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// ModelStatusReporter reports what the model registry serves
type ModelStatusReporter interface {
	Status() []forecastapp.SlotStatus
}

// SystemHandler handles health and readiness endpoints
type SystemHandler struct {
	BaseHandler
	version      string
	startTime    time.Time
	checks       map[string]ReadinessCheck
	models       ModelStatusReporter
	checkTimeout time.Duration
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(version string, models ModelStatusReporter) *SystemHandler {
	return &SystemHandler{
		version:      version,
		startTime:    time.Now(),
		checks:       make(map[string]ReadinessCheck),
		models:       models,
		checkTimeout: 3 * time.Second,
	}
}

// AddCheck registers a readiness check under name
func (h *SystemHandler) AddCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status    string `json:"status" example:"ok"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// CheckResult is the outcome of one readiness check
type CheckResult struct {
	Name    string `json:"name" example:"database"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency" example:"1.2ms"`
}

// ReadinessResponse is the readiness payload. Models without a loaded
// slot do not fail readiness, since a fresh deployment has none trained.
type ReadinessResponse struct {
	Ready  bool                     `json:"ready"`
	Checks []CheckResult            `json:"checks"`
	Models []forecastapp.SlotStatus `json:"models,omitempty"`
}

// Health godoc
// @ID           health
// @Summary      Liveness probe
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[HealthResponse]
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	h.Success(c, HealthResponse{
		Status:    "ok",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Ready godoc
// @ID           ready
// @Summary      Readiness probe
// @Description  Pings the database and cache. Answers 503 when any check fails.
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[ReadinessResponse]
// @Failure      503 {object} APIResponse[ReadinessResponse]
// @Router       /health/ready [get]
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.checkTimeout)
	defer cancel()

	names := slices.Sorted(maps.Keys(h.checks))

	resp := ReadinessResponse{Ready: true, Checks: make([]CheckResult, 0, len(names))}
	for _, name := range names {
		start := time.Now()
		err := h.checks[name](ctx)
		result := CheckResult{Name: name, Healthy: err == nil, Latency: time.Since(start).String()}
		if err != nil {
			result.Error = err.Error()
			resp.Ready = false
		}
		resp.Checks = append(resp.Checks, result)
	}
	if h.models != nil {
		resp.Models = h.models.Status()
	}

	if !resp.Ready {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp,
			Error: &dto.ErrorInfo{Code: dto.ErrCodeUnavailable, Message: "Service is not ready", RequestID: getRequestID(c)}})
		return
	}
	h.Success(c, resp)
}
