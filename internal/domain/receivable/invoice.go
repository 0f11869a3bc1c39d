package receivable

import (
	"strings"
	"time"

	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the invoice lifecycle state
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// IsValid reports whether s is a known status
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// Invoice is an issued receivable. It is immutable once paid except for
// the status transition itself.
type Invoice struct {
	shared.BaseEntity
	Number     string
	CustomerID uuid.UUID
	IssueDate  time.Time
	DueDate    time.Time
	Amount     decimal.Decimal
	Currency   string
	Status     InvoiceStatus
}

// NewInvoice creates a pending invoice
func NewInvoice(number string, customerID uuid.UUID, issueDate, dueDate time.Time, amount decimal.Decimal) (*Invoice, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, shared.NewDomainError("INVALID_NUMBER", "Invoice number cannot be empty")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Invoice must reference a customer")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Invoice amount must be positive")
	}
	issueDate = shared.DateOf(issueDate)
	dueDate = shared.DateOf(dueDate)
	if dueDate.Before(issueDate) {
		return nil, shared.NewDomainError("INVALID_DUE_DATE", "Due date cannot precede issue date")
	}

	return &Invoice{
		BaseEntity: shared.NewBaseEntity(),
		Number:     number,
		CustomerID: customerID,
		IssueDate:  issueDate,
		DueDate:    dueDate,
		Amount:     amount,
		Currency:   "EUR",
		Status:     InvoiceStatusPending,
	}, nil
}

// IsPaid reports whether the invoice has been settled
func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}

// IsPending reports whether the invoice is awaiting payment and not yet overdue
func (i *Invoice) IsPending() bool {
	return i.Status == InvoiceStatusPending
}

// MarkPaid settles the invoice
func (i *Invoice) MarkPaid() error {
	if i.Status != InvoiceStatusPending && i.Status != InvoiceStatusOverdue {
		return shared.NewDomainError("INVALID_STATE", "Only pending or overdue invoices can be paid")
	}
	i.Status = InvoiceStatusPaid
	i.Touch()
	return nil
}

// MarkOverdue flags a pending invoice whose due date has passed
func (i *Invoice) MarkOverdue(now time.Time) error {
	if i.Status != InvoiceStatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only pending invoices can become overdue")
	}
	if !shared.DateOf(now).After(i.DueDate) {
		return shared.NewDomainError("INVALID_STATE", "Invoice is not past its due date")
	}
	i.Status = InvoiceStatusOverdue
	i.Touch()
	return nil
}

// Cancel voids an unpaid invoice
func (i *Invoice) Cancel() error {
	if i.Status == InvoiceStatusPaid {
		return shared.NewDomainError("INVALID_STATE", "Paid invoices cannot be cancelled")
	}
	i.Status = InvoiceStatusCancelled
	i.Touch()
	return nil
}
