package persistence

import (
	"context"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const predictionBatchSize = 200

// latestPredictionClause keeps only the newest snapshot of each invoice
const latestPredictionClause = `payment_predictions.created_at = (
	SELECT MAX(p2.created_at) FROM payment_predictions p2
	WHERE p2.invoice_id = payment_predictions.invoice_id)`

// GormPredictionRepository implements forecast.PredictionRepository using GORM.
// Rows are only ever inserted.
type GormPredictionRepository struct {
	db *gorm.DB
}

// NewGormPredictionRepository creates a new GormPredictionRepository
func NewGormPredictionRepository(db *gorm.DB) *GormPredictionRepository {
	return &GormPredictionRepository{db: db}
}

// Save inserts one prediction snapshot
func (r *GormPredictionRepository) Save(ctx context.Context, p *forecast.Prediction) error {
	return r.db.WithContext(ctx).Create(models.PredictionModelFromDomain(p)).Error
}

// SaveBatch inserts snapshots in chunks inside one transaction
func (r *GormPredictionRepository) SaveBatch(ctx context.Context, ps []*forecast.Prediction) error {
	if len(ps) == 0 {
		return nil
	}
	rows := make([]*models.PredictionModel, len(ps))
	for i, p := range ps {
		rows[i] = models.PredictionModelFromDomain(p)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, predictionBatchSize).Error
	})
}

// LatestByInvoiceIDs returns the newest snapshot per invoice
func (r *GormPredictionRepository) LatestByInvoiceIDs(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID]*forecast.Prediction, error) {
	out := make(map[uuid.UUID]*forecast.Prediction, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}
	var rows []models.PredictionModel
	if err := r.db.WithContext(ctx).
		Where("payment_predictions.invoice_id IN ?", invoiceIDs).
		Where(latestPredictionClause).
		Order("payment_predictions.created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].InvoiceID] = rows[i].ToDomain()
	}
	return out, nil
}

// FindByInvoice returns every snapshot of an invoice, newest first
func (r *GormPredictionRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]forecast.Prediction, error) {
	var rows []models.PredictionModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return predictionsToDomain(rows), nil
}

// FindHighRisk returns the latest snapshot of each invoice whose risk is at
// or above threshold, riskiest first
func (r *GormPredictionRepository) FindHighRisk(ctx context.Context, threshold float64, limit int) ([]forecast.Prediction, error) {
	var rows []models.PredictionModel
	if err := r.db.WithContext(ctx).
		Where(latestPredictionClause).
		Where("payment_predictions.risk_score >= ?", threshold).
		Order("payment_predictions.risk_score DESC, payment_predictions.predicted_date").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return predictionsToDomain(rows), nil
}

func predictionsToDomain(rows []models.PredictionModel) []forecast.Prediction {
	return toDomain(rows, (*models.PredictionModel).ToDomain)
}
