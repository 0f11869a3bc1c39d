package receivable

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CustomerRepository defines read access to customers
type CustomerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Customer, error)
	Save(ctx context.Context, customer *Customer) error
}

// InvoiceRepository defines read access to invoices
type InvoiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Invoice, error)
	FindByStatus(ctx context.Context, status InvoiceStatus) ([]Invoice, error)
	// FindByStatusDueBetween returns invoices in status with due date in [from, to]
	FindByStatusDueBetween(ctx context.Context, status InvoiceStatus, from, to time.Time) ([]Invoice, error)
	FindByCustomerAndStatus(ctx context.Context, customerID uuid.UUID, status InvoiceStatus) ([]Invoice, error)
	CountByStatus(ctx context.Context, status InvoiceStatus) (int64, error)
	Save(ctx context.Context, invoice *Invoice) error
}

// PaymentRepository defines read access to the payment ledger
type PaymentRepository interface {
	// FindByCustomer returns all payments on the customer's invoices, oldest first
	FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]Payment, error)
	// FindByInvoiceIDs returns payments for the given invoices ordered by payment date
	FindByInvoiceIDs(ctx context.Context, invoiceIDs []uuid.UUID) ([]Payment, error)
	// DailyTotals sums payments per payment date, ordered by date
	DailyTotals(ctx context.Context) ([]DailyTotal, error)
	Save(ctx context.Context, payment *Payment) error
}
