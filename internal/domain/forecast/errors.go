package forecast

import (
	"fmt"

	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/google/uuid"
)

// Error codes surfaced to callers
const (
	CodeInsufficientData      = "INSUFFICIENT_DATA"
	CodeInsufficientHistory   = "INSUFFICIENT_HISTORY"
	CodeModelNotTrained       = "MODEL_NOT_TRAINED"
	CodeFeatureSchemaMismatch = "FEATURE_SCHEMA_MISMATCH"
	CodeInvoiceAlreadyPaid    = "INVOICE_ALREADY_PAID"
	CodeModelActive           = "MODEL_ACTIVE"
	CodeUnknownPurpose        = "UNKNOWN_PURPOSE"
)

// Sentinels for errors.Is matching; concrete errors carry detail in the message.
var (
	ErrInsufficientData      = shared.NewDomainError(CodeInsufficientData, "Not enough training data")
	ErrInsufficientHistory   = shared.NewDomainError(CodeInsufficientHistory, "Not enough payment history")
	ErrModelNotTrained       = shared.NewDomainError(CodeModelNotTrained, "No active model")
	ErrFeatureSchemaMismatch = shared.NewDomainError(CodeFeatureSchemaMismatch, "Feature vector does not match the model schema")
	ErrInvoiceAlreadyPaid    = shared.NewDomainError(CodeInvoiceAlreadyPaid, "Invoice is already paid")
	ErrModelActive           = shared.NewDomainError(CodeModelActive, "Cannot delete the active model")
	ErrUnknownPurpose        = shared.NewDomainError(CodeUnknownPurpose, "Unknown model purpose")
)

// NewInsufficientDataError reports that only have samples exist where need are required.
func NewInsufficientDataError(have, need int) error {
	return shared.NewDomainError(CodeInsufficientData,
		fmt.Sprintf("insufficient training data: %d samples, need at least %d", have, need))
}

// NewInsufficientHistoryError reports a daily series shorter than the minimum span.
func NewInsufficientHistoryError(days, need int) error {
	return shared.NewDomainError(CodeInsufficientHistory,
		fmt.Sprintf("insufficient payment history: %d days, need at least %d", days, need))
}

// NewModelNotTrainedError reports that purpose has no active model.
func NewModelNotTrainedError(purpose Purpose) error {
	return shared.NewDomainError(CodeModelNotTrained,
		fmt.Sprintf("no active model for purpose %q", purpose))
}

// NewFeatureSchemaMismatchError reports a feature the model expects but the vector lacks.
func NewFeatureSchemaMismatchError(detail string) error {
	return shared.NewDomainError(CodeFeatureSchemaMismatch, "feature schema mismatch: "+detail)
}

// PerInvoiceError records one failed item of a batch prediction.
type PerInvoiceError struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Err       error     `json:"-"`
}

func (e *PerInvoiceError) Error() string {
	return fmt.Sprintf("invoice %s: %v", e.InvoiceID, e.Err)
}

func (e *PerInvoiceError) Unwrap() error {
	return e.Err
}
