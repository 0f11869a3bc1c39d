package persistence

import (
	"context"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/erp/cashflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormModelRepository implements forecast.ModelRepository using GORM
type GormModelRepository struct {
	db *gorm.DB
}

// NewGormModelRepository creates a new GormModelRepository
func NewGormModelRepository(db *gorm.DB) *GormModelRepository {
	return &GormModelRepository{db: db}
}

// Save inserts a trained model record
func (r *GormModelRepository) Save(ctx context.Context, m *forecast.TrainedModel) error {
	return r.db.WithContext(ctx).Create(models.TrainedModelModelFromDomain(m)).Error
}

// FindByID finds a model record by its ID
func (r *GormModelRepository) FindByID(ctx context.Context, id uuid.UUID) (*forecast.TrainedModel, error) {
	model, err := first[models.TrainedModelModel](r.db.WithContext(ctx), "id = ?", id)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists models newest first; an empty purpose lists every purpose
func (r *GormModelRepository) FindAll(ctx context.Context, purpose forecast.Purpose) ([]forecast.TrainedModel, error) {
	query := r.db.WithContext(ctx).Order("trained_at DESC, created_at DESC")
	if purpose != "" {
		query = query.Where("purpose = ?", purpose)
	}
	var rows []models.TrainedModelModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomain(rows, (*models.TrainedModelModel).ToDomain), nil
}

// FindActive finds the active model of a purpose
func (r *GormModelRepository) FindActive(ctx context.Context, purpose forecast.Purpose) (*forecast.TrainedModel, error) {
	model, err := first[models.TrainedModelModel](r.db.WithContext(ctx).
		Where("purpose = ? AND is_active = ?", purpose, true))
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// Activate deactivates every other model of id's purpose and activates id,
// in one transaction.
func (r *GormModelRepository) Activate(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := first[models.TrainedModelModel](tx.Select("id", "purpose"), "id = ?", id)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.TrainedModelModel{}).
			Where("purpose = ? AND is_active = ? AND id <> ?", target.Purpose, true, id).
			Updates(map[string]any{"is_active": false, "updated_at": at}).Error; err != nil {
			return err
		}
		return tx.Model(&models.TrainedModelModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"is_active": true, "activated_at": at, "updated_at": at}).Error
	})
}

// Delete removes a model record
func (r *GormModelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.TrainedModelModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
