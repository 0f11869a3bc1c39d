package handler

import (
	"context"
	"errors"

	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/infrastructure/scheduler"
	"github.com/erp/cashflow/internal/interfaces/http/dto"
	"github.com/erp/cashflow/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ModelManager is the model lifecycle surface the handler needs
type ModelManager interface {
	CheckTrainable(ctx context.Context, purpose forecast.Purpose) error
	Activate(ctx context.Context, id uuid.UUID) (*forecastapp.ModelResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, purpose string) ([]forecastapp.ModelResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*forecastapp.ModelResponse, error)
	Active(ctx context.Context, purpose string) (*forecastapp.ModelResponse, error)
}

// JobSubmitter queues training runs and reports on them
type JobSubmitter interface {
	Submit(purpose forecast.Purpose, trigger scheduler.Trigger, requestedBy string) (scheduler.TrainingJob, error)
	Get(id uuid.UUID) (scheduler.TrainingJob, error)
}

// ModelHandler handles trained model endpoints
type ModelHandler struct {
	BaseHandler
	models ModelManager
	jobs   JobSubmitter
}

// NewModelHandler creates a new ModelHandler
func NewModelHandler(models ModelManager, jobs JobSubmitter) *ModelHandler {
	return &ModelHandler{models: models, jobs: jobs}
}

// Train godoc
// @ID           trainModel
// @Summary      Train a model
// @Description  Checks that enough history exists and queues a training job. Poll the returned job until it completes.
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        request body forecastapp.TrainModelRequest true "Model purpose"
// @Success      202 {object} APIResponse[scheduler.TrainingJob]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /models/train [post]
func (h *ModelHandler) Train(c *gin.Context) {
	var req forecastapp.TrainModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	purpose, err := forecast.ParsePurpose(req.Purpose)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := h.models.CheckTrainable(c.Request.Context(), purpose); err != nil {
		h.HandleError(c, err)
		return
	}

	job, err := h.jobs.Submit(purpose, scheduler.TriggerAPI, requestedBy(c))
	switch {
	case errors.Is(err, scheduler.ErrJobQueueFull):
		h.Fail(c, dto.ErrCodeQueueFull, "Training queue is full, retry later")
		return
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.Fail(c, dto.ErrCodeUnavailable, "Training scheduler is not running")
		return
	case err != nil:
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, job)
}

func requestedBy(c *gin.Context) string {
	if subject := middleware.GetJWTSubject(c); subject != "" {
		return subject
	}
	return "api"
}

// GetJob godoc
// @ID           getTrainingJob
// @Summary      Training job state
// @Tags         models
// @Produce      json
// @Param        id path string true "Job ID" format(uuid)
// @Success      200 {object} APIResponse[scheduler.TrainingJob]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /models/jobs/{id} [get]
func (h *ModelHandler) GetJob(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	job, err := h.jobs.Get(id)
	if errors.Is(err, scheduler.ErrJobNotFound) {
		h.Fail(c, dto.ErrCodeNotFound, "Training job not found")
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// List godoc
// @ID           listModels
// @Summary      List trained models
// @Tags         models
// @Produce      json
// @Param        purpose query string false "Filter by purpose" Enums(payment_predictor, cashflow_forecaster)
// @Success      200 {object} APIResponse[[]forecastapp.ModelResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /models [get]
func (h *ModelHandler) List(c *gin.Context) {
	models, err := h.models.List(c.Request.Context(), c.Query("purpose"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, models, len(models))
}

// Get godoc
// @ID           getModel
// @Summary      Get a trained model
// @Tags         models
// @Produce      json
// @Param        id path string true "Model ID" format(uuid)
// @Success      200 {object} APIResponse[forecastapp.ModelResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /models/{id} [get]
func (h *ModelHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	model, err := h.models.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, model)
}

// Active godoc
// @ID           getActiveModel
// @Summary      Active model of a purpose
// @Tags         models
// @Produce      json
// @Param        purpose path string true "Model purpose" Enums(payment_predictor, cashflow_forecaster)
// @Success      200 {object} APIResponse[forecastapp.ModelResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /models/active/{purpose} [get]
func (h *ModelHandler) Active(c *gin.Context) {
	model, err := h.models.Active(c.Request.Context(), c.Param("purpose"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, model)
}

// Activate godoc
// @ID           activateModel
// @Summary      Activate a model
// @Description  Makes the model the active one for its purpose and swaps it into every replica
// @Tags         models
// @Produce      json
// @Param        id path string true "Model ID" format(uuid)
// @Success      200 {object} APIResponse[forecastapp.ModelResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /models/{id}/activate [post]
func (h *ModelHandler) Activate(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	model, err := h.models.Activate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, model)
}

// Delete godoc
// @ID           deleteModel
// @Summary      Delete a model
// @Description  Deletes an inactive model and its artifact. The active model cannot be deleted.
// @Tags         models
// @Param        id path string true "Model ID" format(uuid)
// @Success      204
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /models/{id} [delete]
func (h *ModelHandler) Delete(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.models.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
