package receivable

import (
	"time"

	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is an append-only ledger entry against an invoice
type Payment struct {
	shared.BaseEntity
	InvoiceID   uuid.UUID
	PaymentDate time.Time
	Amount      decimal.Decimal
	// DelayDays is payment date minus due date; negative when paid early
	DelayDays int
}

// NewPayment records a payment against inv made on paidOn
func NewPayment(inv *Invoice, paidOn time.Time, amount decimal.Decimal) (*Payment, error) {
	if inv == nil {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Payment must reference an invoice")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if inv.Status == InvoiceStatusCancelled {
		return nil, shared.NewDomainError("INVALID_STATE", "Cannot pay a cancelled invoice")
	}

	paidOn = shared.DateOf(paidOn)
	return &Payment{
		BaseEntity:  shared.NewBaseEntity(),
		InvoiceID:   inv.ID,
		PaymentDate: paidOn,
		Amount:      amount,
		DelayDays:   shared.DaysBetween(inv.DueDate, paidOn),
	}, nil
}

// IsLate reports whether the payment arrived after the due date
func (p Payment) IsLate() bool {
	return p.DelayDays > 0
}

// DailyTotal is the sum of payments received on one calendar day
type DailyTotal struct {
	Date   time.Time
	Amount decimal.Decimal
}
