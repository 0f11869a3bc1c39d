package persistence

import (
	"context"

	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/erp/cashflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCustomerRepository implements receivable.CustomerRepository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// FindByID finds a customer by its ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*receivable.Customer, error) {
	model, err := first[models.CustomerModel](r.db.WithContext(ctx), "id = ?", id)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs finds multiple customers by their IDs; unknown IDs are skipped
func (r *GormCustomerRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]receivable.Customer, error) {
	if len(ids) == 0 {
		return []receivable.Customer{}, nil
	}
	var customerModels []models.CustomerModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&customerModels).Error; err != nil {
		return nil, err
	}
	return toDomain(customerModels, (*models.CustomerModel).ToDomain), nil
}

// Save creates or updates a customer
func (r *GormCustomerRepository) Save(ctx context.Context, customer *receivable.Customer) error {
	return r.db.WithContext(ctx).Save(models.CustomerModelFromDomain(customer)).Error
}

// Count returns the number of customers
func (r *GormCustomerRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.CustomerModel{}).Count(&n).Error
	return n, err
}
