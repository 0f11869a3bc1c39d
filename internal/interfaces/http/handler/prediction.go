package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/infrastructure/report"
	"github.com/erp/cashflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PredictionService is the prediction use case surface the handler needs
type PredictionService interface {
	Predict(ctx context.Context, invoiceID uuid.UUID) (*forecastapp.PredictionResponse, error)
	PredictBatch(ctx context.Context, req forecastapp.BatchPredictRequest) (*forecastapp.BatchPredictionResponse, error)
	ForecastCashflow(ctx context.Context, q forecastapp.CashflowForecastQuery) (*forecastapp.CashflowForecastResponse, error)
	CustomerPredictions(ctx context.Context, customerID uuid.UUID) (*forecastapp.CustomerPredictionsResponse, error)
	HighRisk(ctx context.Context, q forecastapp.HighRiskQuery) (*forecastapp.HighRiskResponse, error)
	PredictionHistory(ctx context.Context, invoiceID uuid.UUID) ([]forecastapp.PredictionResponse, error)
	ForecastTrend(ctx context.Context, q forecastapp.TrendForecastQuery) (*forecastapp.TrendForecastResponse, error)
}

// CashflowReporter renders a projection as a PDF
type CashflowReporter interface {
	Generate(ctx context.Context, resp *forecastapp.CashflowForecastResponse) ([]byte, error)
}

// PredictionHandler handles prediction and forecast endpoints
type PredictionHandler struct {
	BaseHandler
	service  PredictionService
	reporter CashflowReporter
}

// NewPredictionHandler creates a new PredictionHandler. reporter may be nil,
// in which case the PDF report endpoint answers 503.
func NewPredictionHandler(service PredictionService, reporter CashflowReporter) *PredictionHandler {
	return &PredictionHandler{service: service, reporter: reporter}
}

// PredictInvoice godoc
// @ID           predictInvoice
// @Summary      Predict an invoice payment date
// @Description  Scores one unpaid invoice with the active payment predictor and stores the prediction
// @Tags         predictions
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} APIResponse[forecastapp.PredictionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /predictions/invoice/{id} [post]
func (h *PredictionHandler) PredictInvoice(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.Predict(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// PredictBatch godoc
// @ID           predictBatch
// @Summary      Predict a batch of invoices
// @Description  Scores the listed invoices, or every invoice with the given status when no IDs are sent. Invoices that cannot be scored are reported under failed.
// @Tags         predictions
// @Accept       json
// @Produce      json
// @Param        request body forecastapp.BatchPredictRequest true "Batch selection"
// @Success      200 {object} APIResponse[forecastapp.BatchPredictionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /predictions/batch [post]
func (h *PredictionHandler) PredictBatch(c *gin.Context) {
	var req forecastapp.BatchPredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	resp, err := h.service.PredictBatch(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ForecastCashflow godoc
// @ID           forecastCashflow
// @Summary      Project cash inflow
// @Description  Places every unpaid invoice due in the window on its predicted payment date and sums receipts per bucket
// @Tags         predictions
// @Produce      json
// @Param        start_date  query string false "Window start (YYYY-MM-DD), defaults to today"
// @Param        end_date    query string false "Window end (YYYY-MM-DD), defaults to start + 90 days"
// @Param        scenario    query string false "Scenario" Enums(optimistic, realistic, pessimistic)
// @Param        granularity query string false "Bucket size" Enums(day, week, month)
// @Success      200 {object} APIResponse[forecastapp.CashflowForecastResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /predictions/cashflow [get]
func (h *PredictionHandler) ForecastCashflow(c *gin.Context) {
	resp, ok := h.cashflow(c)
	if !ok {
		return
	}
	h.Success(c, resp)
}

// CashflowReport godoc
// @ID           cashflowReport
// @Summary      Cash inflow projection as PDF
// @Description  Same query as the cash-flow projection, rendered as an A4 PDF report
// @Tags         predictions
// @Produce      application/pdf
// @Param        start_date  query string false "Window start (YYYY-MM-DD)"
// @Param        end_date    query string false "Window end (YYYY-MM-DD)"
// @Param        scenario    query string false "Scenario" Enums(optimistic, realistic, pessimistic)
// @Param        granularity query string false "Bucket size" Enums(day, week, month)
// @Success      200 {file} binary
// @Failure      400 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Failure      504 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /predictions/cashflow/report [get]
func (h *PredictionHandler) CashflowReport(c *gin.Context) {
	if h.reporter == nil {
		h.Fail(c, dto.ErrCodeUnavailable, "PDF reports are disabled")
		return
	}

	resp, ok := h.cashflow(c)
	if !ok {
		return
	}

	pdf, err := h.reporter.Generate(c.Request.Context(), resp)
	if err != nil {
		h.handleRenderError(c, err)
		return
	}

	filename := fmt.Sprintf("cashflow_%s_%s.pdf", resp.StartDate, resp.EndDate)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *PredictionHandler) cashflow(c *gin.Context) (*forecastapp.CashflowForecastResponse, bool) {
	var q forecastapp.CashflowForecastQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return nil, false
	}

	resp, err := h.service.ForecastCashflow(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	return resp, true
}

func (h *PredictionHandler) handleRenderError(c *gin.Context, err error) {
	var renderErr *report.RenderError
	if !errors.As(err, &renderErr) {
		h.HandleError(c, err)
		return
	}
	switch renderErr.Code {
	case report.ErrCodeRenderTimeout:
		h.Fail(c, dto.ErrCodeRenderTimeout, "Report rendering timed out")
	default:
		h.Fail(c, dto.ErrCodeRenderFailed, "Report rendering failed")
	}
}

// CustomerPredictions godoc
// @ID           customerPredictions
// @Summary      Predictions for a customer
// @Description  Scores every pending invoice of the customer and reports the outstanding total, segment and risk
// @Tags         predictions
// @Produce      json
// @Param        id path string true "Customer ID" format(uuid)
// @Success      200 {object} APIResponse[forecastapp.CustomerPredictionsResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /predictions/customer/{id} [get]
func (h *PredictionHandler) CustomerPredictions(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.CustomerPredictions(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// HighRisk godoc
// @ID           highRiskInvoices
// @Summary      High-risk invoices
// @Description  Pending invoices whose latest prediction has a risk score at or above the threshold
// @Tags         predictions
// @Produce      json
// @Param        threshold query number  false "Minimum risk score" minimum(0) maximum(1) default(0.7)
// @Param        limit     query integer false "Maximum rows" minimum(1) maximum(200) default(50)
// @Success      200 {object} APIResponse[forecastapp.HighRiskResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /predictions/high-risk [get]
func (h *PredictionHandler) HighRisk(c *gin.Context) {
	var q forecastapp.HighRiskQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}

	resp, err := h.service.HighRisk(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Timeseries godoc
// @ID           forecastTimeseries
// @Summary      Trend forecast of daily inflow
// @Description  Forecasts inflow with the active trend model and reports the trend analysis and model metrics
// @Tags         predictions
// @Produce      json
// @Param        days_ahead  query integer false "Horizon in days" minimum(7) maximum(365) default(90)
// @Param        granularity query string  false "Bucket size" Enums(day, week, month)
// @Success      200 {object} APIResponse[forecastapp.TrendForecastResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /predictions/timeseries [get]
func (h *PredictionHandler) Timeseries(c *gin.Context) {
	var q forecastapp.TrendForecastQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}

	resp, err := h.service.ForecastTrend(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// InvoiceHistory godoc
// @ID           invoicePredictionHistory
// @Summary      Prediction history of an invoice
// @Description  Every stored prediction for the invoice, newest first
// @Tags         predictions
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} APIResponse[[]forecastapp.PredictionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /predictions/invoice/{id}/history [get]
func (h *PredictionHandler) InvoiceHistory(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	history, err := h.service.PredictionHistory(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, history, len(history))
}
