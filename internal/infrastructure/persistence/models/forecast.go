package models

import (
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TrainedModelModel is the metadata row of a stored model artifact.
type TrainedModelModel struct {
	BaseModel
	Name            string             `gorm:"type:varchar(100);not null"`
	Version         string             `gorm:"type:varchar(50);not null;uniqueIndex:idx_model_purpose_version,priority:2"`
	Type            forecast.ModelType `gorm:"column:model_type;type:varchar(50);not null"`
	Purpose         forecast.Purpose   `gorm:"type:varchar(50);not null;uniqueIndex:idx_model_purpose_version,priority:1;index:idx_model_purpose_active,priority:1"`
	ArtifactKey     string             `gorm:"type:varchar(200);not null"`
	Metrics         map[string]float64 `gorm:"type:jsonb;serializer:json"`
	FeatureNames    pq.StringArray     `gorm:"type:text[]"`
	IsActive        bool               `gorm:"not null;default:false;index:idx_model_purpose_active,priority:2"`
	ActivatedAt     *time.Time         `gorm:"index"`
	TrainingSamples int                `gorm:"not null;default:0"`
	TrainingSeconds float64            `gorm:"not null;default:0"`
	TrainedAt       time.Time          `gorm:"not null"`
	CreatedBy       string             `gorm:"type:varchar(100);not null;default:'system'"`
}

// TableName returns the table name for GORM
func (TrainedModelModel) TableName() string {
	return "ml_models"
}

// ToDomain converts the persistence model to a domain TrainedModel.
func (m *TrainedModelModel) ToDomain() *forecast.TrainedModel {
	t := &forecast.TrainedModel{
		BaseEntity:      m.BaseModel.ToDomain(),
		Name:            m.Name,
		Version:         m.Version,
		Type:            m.Type,
		Purpose:         m.Purpose,
		ArtifactKey:     m.ArtifactKey,
		Metrics:         m.Metrics,
		FeatureNames:    []string(m.FeatureNames),
		IsActive:        m.IsActive,
		TrainingSamples: m.TrainingSamples,
		TrainingSeconds: m.TrainingSeconds,
		TrainedAt:       m.TrainedAt.UTC(),
		CreatedBy:       m.CreatedBy,
	}
	if m.ActivatedAt != nil {
		t.ActivatedAt = m.ActivatedAt.UTC()
	}
	return t
}

// TrainedModelModelFromDomain creates a new persistence model from a domain TrainedModel.
func TrainedModelModelFromDomain(t *forecast.TrainedModel) *TrainedModelModel {
	m := &TrainedModelModel{
		Name:            t.Name,
		Version:         t.Version,
		Type:            t.Type,
		Purpose:         t.Purpose,
		ArtifactKey:     t.ArtifactKey,
		Metrics:         t.Metrics,
		FeatureNames:    pq.StringArray(t.FeatureNames),
		IsActive:        t.IsActive,
		TrainingSamples: t.TrainingSamples,
		TrainingSeconds: t.TrainingSeconds,
		TrainedAt:       t.TrainedAt,
		CreatedBy:       t.CreatedBy,
	}
	if !t.ActivatedAt.IsZero() {
		at := t.ActivatedAt
		m.ActivatedAt = &at
	}
	m.FromDomainBaseEntity(t.BaseEntity)
	return m
}

// PredictionModel is an append-only prediction snapshot.
type PredictionModel struct {
	BaseModel
	InvoiceID          uuid.UUID          `gorm:"type:uuid;not null;index:idx_prediction_invoice_created,priority:1"`
	ModelID            uuid.UUID          `gorm:"type:uuid;not null;index"`
	PredictedDate      time.Time          `gorm:"type:date;not null"`
	OnTimeProbability  float64            `gorm:"not null"`
	PredictedDelayDays int                `gorm:"not null"`
	RiskScore          float64            `gorm:"not null;index"`
	Confidence         float64            `gorm:"not null"`
	OptimisticDate     time.Time          `gorm:"type:date;not null"`
	RealisticDate      time.Time          `gorm:"type:date;not null"`
	PessimisticDate    time.Time          `gorm:"type:date;not null"`
	Features           map[string]float64 `gorm:"type:jsonb;serializer:json"`
}

// TableName returns the table name for GORM
func (PredictionModel) TableName() string {
	return "payment_predictions"
}

// ToDomain converts the persistence model to a domain Prediction.
func (m *PredictionModel) ToDomain() *forecast.Prediction {
	return &forecast.Prediction{
		BaseEntity:         m.BaseModel.ToDomain(),
		InvoiceID:          m.InvoiceID,
		ModelID:            m.ModelID,
		PredictedDate:      m.PredictedDate.UTC(),
		OnTimeProbability:  m.OnTimeProbability,
		PredictedDelayDays: m.PredictedDelayDays,
		RiskScore:          m.RiskScore,
		Confidence:         m.Confidence,
		OptimisticDate:     m.OptimisticDate.UTC(),
		RealisticDate:      m.RealisticDate.UTC(),
		PessimisticDate:    m.PessimisticDate.UTC(),
		Features:           m.Features,
	}
}

// PredictionModelFromDomain creates a new persistence model from a domain Prediction.
func PredictionModelFromDomain(p *forecast.Prediction) *PredictionModel {
	m := &PredictionModel{
		InvoiceID:          p.InvoiceID,
		ModelID:            p.ModelID,
		PredictedDate:      p.PredictedDate,
		OnTimeProbability:  p.OnTimeProbability,
		PredictedDelayDays: p.PredictedDelayDays,
		RiskScore:          p.RiskScore,
		Confidence:         p.Confidence,
		OptimisticDate:     p.OptimisticDate,
		RealisticDate:      p.RealisticDate,
		PessimisticDate:    p.PessimisticDate,
		Features:           p.Features,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}
