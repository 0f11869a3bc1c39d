package forecast

import (
	"sort"
	"time"

	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/google/uuid"
)

// TrainingExample is one labeled paid invoice.
type TrainingExample struct {
	InvoiceID uuid.UUID
	Features  FeatureVector
	DelayDays int
	OnTime    bool
}

// BuildTrainingSet labels every paid invoice with the delay of its first
// payment. Invoices that are not paid or have no payment are skipped.
// History is keyed by customer and holds that customer's full ledger.
func BuildTrainingSet(
	invoices []receivable.Invoice,
	paymentsByInvoice map[uuid.UUID][]receivable.Payment,
	historyByCustomer map[uuid.UUID][]receivable.Payment,
	now time.Time,
) []TrainingExample {
	summaries := make(map[uuid.UUID]CustomerHistory, len(historyByCustomer))
	examples := make([]TrainingExample, 0, len(invoices))

	for i := range invoices {
		inv := &invoices[i]
		if !inv.IsPaid() {
			continue
		}
		first, ok := firstPayment(paymentsByInvoice[inv.ID])
		if !ok {
			continue
		}

		hist, seen := summaries[inv.CustomerID]
		if !seen {
			hist = SummarizeHistory(historyByCustomer[inv.CustomerID], now)
			summaries[inv.CustomerID] = hist
		}

		examples = append(examples, TrainingExample{
			InvoiceID: inv.ID,
			Features:  BuildFeatureVector(inv, hist, now),
			DelayDays: first.DelayDays,
			OnTime:    first.DelayDays <= 0,
		})
	}
	return examples
}

func firstPayment(payments []receivable.Payment) (receivable.Payment, bool) {
	if len(payments) == 0 {
		return receivable.Payment{}, false
	}
	sorted := make([]receivable.Payment, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PaymentDate.Before(sorted[j].PaymentDate)
	})
	return sorted[0], true
}

// GroupPaymentsByInvoice indexes payments by invoice ID.
func GroupPaymentsByInvoice(payments []receivable.Payment) map[uuid.UUID][]receivable.Payment {
	out := make(map[uuid.UUID][]receivable.Payment)
	for _, p := range payments {
		out[p.InvoiceID] = append(out[p.InvoiceID], p)
	}
	return out
}
