package models

import (
	"time"

	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerModel is the persistence model for the Customer domain entity.
type CustomerModel struct {
	BaseModel
	Code             string             `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name             string             `gorm:"type:varchar(200);not null"`
	Segment          receivable.Segment `gorm:"type:varchar(1);not null;default:'B'"`
	RiskScore        float64            `gorm:"not null;default:0.5"`
	PaymentTermsDays int                `gorm:"not null;default:30"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer entity.
func (m *CustomerModel) ToDomain() *receivable.Customer {
	return &receivable.Customer{
		BaseEntity:       m.BaseModel.ToDomain(),
		Code:             m.Code,
		Name:             m.Name,
		Segment:          m.Segment,
		RiskScore:        m.RiskScore,
		PaymentTermsDays: m.PaymentTermsDays,
	}
}

// FromDomain populates the persistence model from a domain Customer entity.
func (m *CustomerModel) FromDomain(c *receivable.Customer) {
	m.FromDomainBaseEntity(c.BaseEntity)
	m.Code = c.Code
	m.Name = c.Name
	m.Segment = c.Segment
	m.RiskScore = c.RiskScore
	m.PaymentTermsDays = c.PaymentTermsDays
}

// CustomerModelFromDomain creates a new persistence model from a domain Customer entity.
func CustomerModelFromDomain(c *receivable.Customer) *CustomerModel {
	m := &CustomerModel{}
	m.FromDomain(c)
	return m
}

// InvoiceModel is the persistence model for the Invoice domain entity.
type InvoiceModel struct {
	BaseModel
	Number     string                   `gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerID uuid.UUID                `gorm:"type:uuid;not null;index:idx_invoice_customer_status,priority:1"`
	IssueDate  time.Time                `gorm:"type:date;not null"`
	DueDate    time.Time                `gorm:"type:date;not null;index:idx_invoice_status_due,priority:2"`
	Amount     decimal.Decimal          `gorm:"type:decimal(18,2);not null"`
	Currency   string                   `gorm:"type:varchar(3);not null;default:'EUR'"`
	Status     receivable.InvoiceStatus `gorm:"type:varchar(20);not null;index:idx_invoice_status_due,priority:1;index:idx_invoice_customer_status,priority:2"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *receivable.Invoice {
	return &receivable.Invoice{
		BaseEntity: m.BaseModel.ToDomain(),
		Number:     m.Number,
		CustomerID: m.CustomerID,
		IssueDate:  m.IssueDate.UTC(),
		DueDate:    m.DueDate.UTC(),
		Amount:     m.Amount,
		Currency:   m.Currency,
		Status:     m.Status,
	}
}

// FromDomain populates the persistence model from a domain Invoice entity.
func (m *InvoiceModel) FromDomain(i *receivable.Invoice) {
	m.FromDomainBaseEntity(i.BaseEntity)
	m.Number = i.Number
	m.CustomerID = i.CustomerID
	m.IssueDate = i.IssueDate
	m.DueDate = i.DueDate
	m.Amount = i.Amount
	m.Currency = i.Currency
	m.Status = i.Status
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice entity.
func InvoiceModelFromDomain(i *receivable.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(i)
	return m
}

// PaymentModel is one row of the append-only payment ledger.
type PaymentModel struct {
	BaseModel
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	PaymentDate time.Time       `gorm:"type:date;not null;index"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	DelayDays   int             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
func (m *PaymentModel) ToDomain() *receivable.Payment {
	return &receivable.Payment{
		BaseEntity:  m.BaseModel.ToDomain(),
		InvoiceID:   m.InvoiceID,
		PaymentDate: m.PaymentDate.UTC(),
		Amount:      m.Amount,
		DelayDays:   m.DelayDays,
	}
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment.
func PaymentModelFromDomain(p *receivable.Payment) *PaymentModel {
	m := &PaymentModel{
		InvoiceID:   p.InvoiceID,
		PaymentDate: p.PaymentDate,
		Amount:      p.Amount,
		DelayDays:   p.DelayDays,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}
