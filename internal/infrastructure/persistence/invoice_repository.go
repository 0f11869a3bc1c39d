package persistence

import (
	"context"
	"time"

	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/erp/cashflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements receivable.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*receivable.Invoice, error) {
	model, err := first[models.InvoiceModel](r.db.WithContext(ctx), "id = ?", id)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs finds multiple invoices by their IDs; unknown IDs are skipped
func (r *GormInvoiceRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]receivable.Invoice, error) {
	if len(ids) == 0 {
		return []receivable.Invoice{}, nil
	}
	return r.find(r.db.WithContext(ctx).Where("id IN ?", ids).Order("due_date, number"))
}

// FindByStatus finds every invoice in status, earliest due first
func (r *GormInvoiceRepository) FindByStatus(ctx context.Context, status receivable.InvoiceStatus) ([]receivable.Invoice, error) {
	return r.find(r.db.WithContext(ctx).Where("status = ?", status).Order("due_date, number"))
}

// FindByStatusDueBetween finds invoices in status due within [from, to]
func (r *GormInvoiceRepository) FindByStatusDueBetween(ctx context.Context, status receivable.InvoiceStatus, from, to time.Time) ([]receivable.Invoice, error) {
	return r.find(r.db.WithContext(ctx).
		Where("status = ? AND due_date >= ? AND due_date <= ?", status, shared.DateOf(from), shared.DateOf(to)).
		Order("due_date, number"))
}

// FindByCustomerAndStatus finds a customer's invoices in status
func (r *GormInvoiceRepository) FindByCustomerAndStatus(ctx context.Context, customerID uuid.UUID, status receivable.InvoiceStatus) ([]receivable.Invoice, error) {
	return r.find(r.db.WithContext(ctx).
		Where("customer_id = ? AND status = ?", customerID, status).
		Order("due_date, number"))
}

// CountByStatus counts invoices in status
func (r *GormInvoiceRepository) CountByStatus(ctx context.Context, status receivable.InvoiceStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// Save creates or updates an invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *receivable.Invoice) error {
	return r.db.WithContext(ctx).Save(models.InvoiceModelFromDomain(invoice)).Error
}

func (r *GormInvoiceRepository) find(query *gorm.DB) ([]receivable.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	if err := query.Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toDomain(invoiceModels, (*models.InvoiceModel).ToDomain), nil
}
