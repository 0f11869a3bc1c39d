package forecast

import (
	"fmt"
	"time"

	"github.com/erp/cashflow/internal/domain/shared"
)

// Purpose is the prediction task a trained model serves
type Purpose string

const (
	PurposePaymentPredictor   Purpose = "payment_predictor"
	PurposeCashflowForecaster Purpose = "cashflow_forecaster"
)

// Purposes lists every purpose the registry manages
var Purposes = []Purpose{PurposePaymentPredictor, PurposeCashflowForecaster}

// ParsePurpose validates a purpose name
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(s)
	switch p {
	case PurposePaymentPredictor, PurposeCashflowForecaster:
		return p, nil
	}
	return "", shared.NewDomainError(CodeUnknownPurpose, fmt.Sprintf("unknown model purpose %q", s))
}

// ModelType returns the model family trained for the purpose
func (p Purpose) ModelType() ModelType {
	if p == PurposeCashflowForecaster {
		return ModelTypeTrendTimeseries
	}
	return ModelTypeGBDTEnsemble
}

// DisplayName is the human-readable model name
func (p Purpose) DisplayName() string {
	if p == PurposeCashflowForecaster {
		return "Cash Flow Trend Forecaster"
	}
	return "Payment Outcome Predictor"
}

// ModelType identifies the model family of an artifact
type ModelType string

const (
	ModelTypeGBDTEnsemble    ModelType = "gbdt_ensemble"
	ModelTypeTrendTimeseries ModelType = "prophet_timeseries"
)

// versionLayout formats model versions as v_YYYYmmdd_HHMMSS
const versionLayout = "v_20060102_150405"

// NewVersion derives a model version from the training time
func NewVersion(at time.Time) string {
	return at.UTC().Format(versionLayout)
}

// ArtifactKey is the opaque store key of a model version
func ArtifactKey(purpose Purpose, version string) string {
	return fmt.Sprintf("%s_%s", purpose, version)
}

// TrainedModel is the metadata row of a persisted model artifact.
// At most one model per purpose is active.
type TrainedModel struct {
	shared.BaseEntity
	Name            string
	Version         string
	Type            ModelType
	Purpose         Purpose
	ArtifactKey     string
	Metrics         map[string]float64
	FeatureNames    []string
	IsActive        bool
	ActivatedAt     time.Time // zero until first activation
	TrainingSamples int
	TrainingSeconds float64
	TrainedAt       time.Time
	CreatedBy       string
}

// NewTrainedModel creates an inactive model record for a finished training run
func NewTrainedModel(purpose Purpose, trainedAt time.Time, metrics map[string]float64, samples int, took time.Duration) *TrainedModel {
	version := NewVersion(trainedAt)
	return &TrainedModel{
		BaseEntity:      shared.NewBaseEntityAt(trainedAt),
		Name:            purpose.DisplayName(),
		Version:         version,
		Type:            purpose.ModelType(),
		Purpose:         purpose,
		ArtifactKey:     ArtifactKey(purpose, version),
		Metrics:         metrics,
		TrainingSamples: samples,
		TrainingSeconds: took.Seconds(),
		TrainedAt:       trainedAt,
		CreatedBy:       "system",
	}
}

// MarkActive records that the model became the active one of its purpose at.
func (m *TrainedModel) MarkActive(at time.Time) {
	m.IsActive = true
	m.ActivatedAt = at
	m.Touch()
}
