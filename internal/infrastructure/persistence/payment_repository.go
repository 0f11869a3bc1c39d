package persistence

import (
	"context"
	"time"

	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/erp/cashflow/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormPaymentRepository implements receivable.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByCustomer returns every payment on the customer's invoices, oldest first
func (r *GormPaymentRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]receivable.Payment, error) {
	return r.find(r.db.WithContext(ctx).
		Joins("JOIN invoices ON invoices.id = payments.invoice_id").
		Where("invoices.customer_id = ?", customerID).
		Order("payments.payment_date, payments.created_at"))
}

// FindByInvoiceIDs returns the payments of the given invoices ordered by payment date
func (r *GormPaymentRepository) FindByInvoiceIDs(ctx context.Context, invoiceIDs []uuid.UUID) ([]receivable.Payment, error) {
	if len(invoiceIDs) == 0 {
		return []receivable.Payment{}, nil
	}
	return r.find(r.db.WithContext(ctx).
		Where("invoice_id IN ?", invoiceIDs).
		Order("payment_date, created_at"))
}

type dailyTotalRow struct {
	Day    time.Time
	Amount decimal.Decimal
}

// DailyTotals sums payments per payment date, oldest first
func (r *GormPaymentRepository) DailyTotals(ctx context.Context) ([]receivable.DailyTotal, error) {
	var rows []dailyTotalRow
	err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Select("payment_date AS day, SUM(amount) AS amount").
		Group("payment_date").
		Order("payment_date").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	totals := make([]receivable.DailyTotal, len(rows))
	for i, row := range rows {
		totals[i] = receivable.DailyTotal{Date: row.Day.UTC(), Amount: row.Amount}
	}
	return totals, nil
}

// Save appends a payment to the ledger
func (r *GormPaymentRepository) Save(ctx context.Context, payment *receivable.Payment) error {
	return r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(payment)).Error
}

func (r *GormPaymentRepository) find(query *gorm.DB) ([]receivable.Payment, error) {
	var paymentModels []models.PaymentModel
	if err := query.Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	return toDomain(paymentModels, (*models.PaymentModel).ToDomain), nil
}
