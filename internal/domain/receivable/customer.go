package receivable

import (
	"strings"

	"github.com/erp/cashflow/internal/domain/shared"
)

// Segment is the customer's risk tier assigned by the CRM subsystem
type Segment string

const (
	SegmentA Segment = "A" // low risk
	SegmentB Segment = "B"
	SegmentC Segment = "C" // high risk
)

// IsValid reports whether s is a known segment
func (s Segment) IsValid() bool {
	switch s {
	case SegmentA, SegmentB, SegmentC:
		return true
	}
	return false
}

const defaultPaymentTermsDays = 30

// Customer is owned by the CRM subsystem and consumed read-only by
// prediction, except for seeding.
type Customer struct {
	shared.BaseEntity
	Code             string
	Name             string
	Segment          Segment
	RiskScore        float64
	PaymentTermsDays int
}

// NewCustomer creates a customer with default terms and segment
func NewCustomer(code, name string) (*Customer, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, shared.NewDomainError("INVALID_CODE", "Customer code cannot be empty")
	}
	if len(code) > 50 {
		return nil, shared.NewDomainError("INVALID_CODE", "Customer code cannot exceed 50 characters")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Customer name cannot be empty")
	}

	return &Customer{
		BaseEntity:       shared.NewBaseEntity(),
		Code:             code,
		Name:             name,
		Segment:          SegmentB,
		RiskScore:        0.5,
		PaymentTermsDays: defaultPaymentTermsDays,
	}, nil
}

// SetRisk updates the segment and risk score
func (c *Customer) SetRisk(segment Segment, score float64) error {
	if !segment.IsValid() {
		return shared.NewDomainError("INVALID_SEGMENT", "Segment must be A, B or C")
	}
	if score < 0 || score > 1 {
		return shared.NewDomainError("INVALID_RISK_SCORE", "Risk score must be between 0 and 1")
	}
	c.Segment = segment
	c.RiskScore = score
	c.Touch()
	return nil
}

// SetPaymentTerms updates the standard payment terms in days
func (c *Customer) SetPaymentTerms(days int) error {
	if days < 0 {
		return shared.NewDomainError("INVALID_PAYMENT_TERMS", "Payment terms cannot be negative")
	}
	c.PaymentTermsDays = days
	c.Touch()
	return nil
}
