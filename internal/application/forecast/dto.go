package forecast

import (
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// Query defaults and bounds
const (
	DefaultHorizonDays       = 90
	MinTrendDaysAhead        = 7
	MaxTrendDaysAhead        = 365
	DefaultHighRiskThreshold = 0.7
	DefaultHighRiskLimit     = 50
	MaxHighRiskLimit         = 200
)

// BatchPredictRequest selects invoices by ID, or by status when no IDs are given
type BatchPredictRequest struct {
	InvoiceIDs   []uuid.UUID `json:"invoice_ids" binding:"omitempty,max=1000"`
	StatusFilter string      `json:"status_filter" binding:"omitempty,oneof=pending overdue"`
}

// CashflowForecastQuery bounds and shapes a cash-flow projection
type CashflowForecastQuery struct {
	StartDate   string `form:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate     string `form:"end_date" binding:"omitempty,datetime=2006-01-02"`
	Scenario    string `form:"scenario" binding:"omitempty,scenario"`
	Granularity string `form:"granularity" binding:"omitempty,granularity"`
}

// TrendForecastQuery shapes a trend forecast
type TrendForecastQuery struct {
	DaysAhead   int    `form:"days_ahead" binding:"omitempty,min=7,max=365"`
	Granularity string `form:"granularity" binding:"omitempty,granularity"`
}

// HighRiskQuery filters the high-risk invoice list
type HighRiskQuery struct {
	Threshold *float64 `form:"threshold" binding:"omitempty,min=0,max=1"`
	Limit     int      `form:"limit" binding:"omitempty,min=1,max=200"`
}

// TrainModelRequest names the model purpose to train
type TrainModelRequest struct {
	Purpose string `json:"purpose" binding:"required,oneof=payment_predictor cashflow_forecaster"`
}

// ScenarioDates are the P10/P50/P90 payment dates
type ScenarioDates struct {
	Optimistic  string `json:"optimistic" example:"2024-06-07"`
	Realistic   string `json:"realistic" example:"2024-06-10"`
	Pessimistic string `json:"pessimistic" example:"2024-06-17"`
}

// PredictionResponse is one prediction snapshot with its invoice context
type PredictionResponse struct {
	ID                   uuid.UUID          `json:"id"`
	InvoiceID            uuid.UUID          `json:"invoice_id"`
	InvoiceNumber        string             `json:"invoice_number,omitempty"`
	CustomerID           uuid.UUID          `json:"customer_id,omitempty"`
	Amount               decimal.Decimal    `json:"amount"`
	DueDate              string             `json:"due_date,omitempty"`
	ModelID              uuid.UUID          `json:"model_id"`
	PredictedPaymentDate string             `json:"predicted_payment_date"`
	OnTimeProbability    float64            `json:"on_time_probability"`
	PredictedDelayDays   int                `json:"predicted_delay_days"`
	RiskScore            float64            `json:"risk_score"`
	RiskLevel            string             `json:"risk_level"`
	Confidence           float64            `json:"confidence"`
	Scenarios            ScenarioDates      `json:"scenarios"`
	Features             map[string]float64 `json:"features,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}

// BatchFailure describes one invoice a batch could not score
type BatchFailure struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
}

// BatchPredictionResponse holds the scored invoices and the per-invoice failures
type BatchPredictionResponse struct {
	Predictions []PredictionResponse `json:"predictions"`
	Count       int                  `json:"count"`
	Failed      []BatchFailure       `json:"failed"`
}

// CashflowLine is one invoice placed on the projection
type CashflowLine struct {
	InvoiceID            uuid.UUID       `json:"invoice_id"`
	InvoiceNumber        string          `json:"invoice_number"`
	Customer             string          `json:"customer"`
	Amount               decimal.Decimal `json:"amount"`
	DueDate              string          `json:"due_date"`
	PredictedPaymentDate string          `json:"predicted_payment_date"`
	// Source is "stored" for the latest saved prediction and "computed" for a fresh score
	Source string `json:"source"`
}

// CashflowSummary totals a projection
type CashflowSummary struct {
	TotalExpected   decimal.Decimal `json:"total_expected"`
	InvoiceCount    int             `json:"invoice_count"`
	PredictionCount int             `json:"prediction_count"`
}

// CashflowForecastResponse is the projected inflow by calendar bucket
type CashflowForecastResponse struct {
	StartDate   string                    `json:"start_date"`
	EndDate     string                    `json:"end_date"`
	Scenario    forecast.Scenario         `json:"scenario"`
	Granularity forecast.Granularity      `json:"granularity"`
	Cashflow    []forecast.CashflowBucket `json:"cashflow"`
	Predictions []CashflowLine            `json:"predictions"`
	Summary     CashflowSummary           `json:"summary"`
}

// CustomerPredictionsResponse scores a customer's open invoices
type CustomerPredictionsResponse struct {
	CustomerID        uuid.UUID            `json:"customer_id"`
	CustomerName      string               `json:"customer_name"`
	CustomerSegment   string               `json:"customer_segment"`
	CustomerRiskScore float64              `json:"customer_risk_score"`
	PendingInvoices   int                  `json:"pending_invoices"`
	TotalOutstanding  decimal.Decimal      `json:"total_outstanding"`
	Predictions       []PredictionResponse `json:"predictions"`
}

// HighRiskInvoice is a pending invoice whose latest prediction is risky
type HighRiskInvoice struct {
	InvoiceID            uuid.UUID       `json:"invoice_id"`
	InvoiceNumber        string          `json:"invoice_number"`
	Customer             string          `json:"customer"`
	CustomerSegment      string          `json:"customer_segment"`
	Amount               decimal.Decimal `json:"amount"`
	DueDate              string          `json:"due_date"`
	PredictedPaymentDate string          `json:"predicted_payment_date"`
	RiskScore            float64         `json:"risk_score"`
	PredictedDelayDays   int             `json:"predicted_delay_days"`
}

// HighRiskResponse lists high-risk invoices and the amount they carry
type HighRiskResponse struct {
	Threshold         float64           `json:"threshold"`
	Count             int               `json:"count"`
	HighRiskInvoices  []HighRiskInvoice `json:"high_risk_invoices"`
	TotalAmountAtRisk decimal.Decimal   `json:"total_amount_at_risk"`
}

// TrendPoint is one day, week or month of forecast inflow
type TrendPoint struct {
	Date   string  `json:"date"`
	Period string  `json:"period"`
	Days   int     `json:"days"`
	Yhat   float64 `json:"yhat"`
	Lower  float64 `json:"yhat_lower"`
	Upper  float64 `json:"yhat_upper"`
}

// TrendForecastResponse is the trend forecast with its diagnostics
type TrendForecastResponse struct {
	DaysAhead     int                    `json:"days_ahead"`
	Granularity   forecast.Granularity   `json:"granularity"`
	ModelVersion  string                 `json:"model_version"`
	Forecast      []TrendPoint           `json:"forecast"`
	TrendAnalysis forecast.TrendAnalysis `json:"trend_analysis"`
	ModelMetrics  map[string]float64     `json:"model_metrics"`
}

// ModelResponse is a trained model record
type ModelResponse struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"name"`
	Version         string             `json:"version"`
	ModelType       string             `json:"model_type"`
	Purpose         string             `json:"purpose"`
	Metrics         map[string]float64 `json:"metrics"`
	FeatureNames    []string           `json:"feature_names,omitempty"`
	IsActive        bool               `json:"is_active"`
	ActivatedAt     *time.Time         `json:"activated_at,omitempty"`
	TrainingSamples int                `json:"training_samples"`
	TrainingSeconds float64            `json:"training_seconds"`
	TrainedAt       time.Time          `json:"trained_at"`
	CreatedBy       string             `json:"created_by"`
}

// TrainingResult is the outcome of one training run
type TrainingResult struct {
	Model         ModelResponse `json:"model"`
	PredictorKind string        `json:"predictor_kind,omitempty"`
}

// RiskLevel buckets a risk score for display
func RiskLevel(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ToPredictionResponse converts a prediction and, when known, its invoice
func ToPredictionResponse(p *forecast.Prediction, inv *receivable.Invoice) PredictionResponse {
	resp := PredictionResponse{
		ID:                   p.ID,
		InvoiceID:            p.InvoiceID,
		ModelID:              p.ModelID,
		PredictedPaymentDate: formatDate(p.PredictedDate),
		OnTimeProbability:    p.OnTimeProbability,
		PredictedDelayDays:   p.PredictedDelayDays,
		RiskScore:            p.RiskScore,
		RiskLevel:            RiskLevel(p.RiskScore),
		Confidence:           p.Confidence,
		Scenarios: ScenarioDates{
			Optimistic:  formatDate(p.OptimisticDate),
			Realistic:   formatDate(p.RealisticDate),
			Pessimistic: formatDate(p.PessimisticDate),
		},
		Features:  p.Features,
		CreatedAt: p.CreatedAt,
	}
	if inv != nil {
		resp.InvoiceNumber = inv.Number
		resp.CustomerID = inv.CustomerID
		resp.Amount = inv.Amount
		resp.DueDate = formatDate(inv.DueDate)
	}
	return resp
}

// ToModelResponse converts a trained model record
func ToModelResponse(m *forecast.TrainedModel) ModelResponse {
	resp := ModelResponse{
		ID:              m.ID,
		Name:            m.Name,
		Version:         m.Version,
		ModelType:       string(m.Type),
		Purpose:         string(m.Purpose),
		Metrics:         m.Metrics,
		FeatureNames:    m.FeatureNames,
		IsActive:        m.IsActive,
		TrainingSamples: m.TrainingSamples,
		TrainingSeconds: m.TrainingSeconds,
		TrainedAt:       m.TrainedAt,
		CreatedBy:       m.CreatedBy,
	}
	if !m.ActivatedAt.IsZero() {
		at := m.ActivatedAt
		resp.ActivatedAt = &at
	}
	return resp
}

// ToModelResponses converts a model list
func ToModelResponses(models []forecast.TrainedModel) []ModelResponse {
	out := make([]ModelResponse, len(models))
	for i := range models {
		out[i] = ToModelResponse(&models[i])
	}
	return out
}
