package forecast

import (
	"testing"
	"time"

	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestInvoice(t *testing.T, issue, due time.Time, amount int64) *receivable.Invoice {
	t.Helper()
	inv, err := receivable.NewInvoice("INV-"+uuid.NewString()[:8], uuid.New(), issue, due, decimal.NewFromInt(amount))
	require.NoError(t, err)
	return inv
}

func payment(paid time.Time, delay int, amount int64) receivable.Payment {
	return receivable.Payment{
		InvoiceID:   uuid.New(),
		PaymentDate: paid,
		Amount:      decimal.NewFromInt(amount),
		DelayDays:   delay,
	}
}

func TestComputeFeatures_NoHistory(t *testing.T) {
	now := date(2024, 6, 1)
	inv := newTestInvoice(t, date(2024, 5, 20), now.AddDate(0, 0, 30), 1000)

	v := ComputeFeatures(inv, nil, now)

	assert.Equal(t, 0.5, v.OnTimePaymentRate)
	assert.Equal(t, 0.5, v.LatePaymentRate)
	assert.Equal(t, 0.0, v.VeryLatePaymentRate)
	assert.Equal(t, float64(NoHistoryRecencyDays), v.RecencyDays)
	assert.Equal(t, 1.0, v.AmountVsCustomerAvg)
	assert.Equal(t, 0.0, v.IsHighAmount)
	assert.Equal(t, 0.0, v.PaymentCountTotal)
	assert.Equal(t, 0.0, v.AvgPaymentDelayDays)
	assert.Equal(t, 0.0, v.PaymentDelayStd)
	assert.Equal(t, 1000.0, v.InvoiceAmount)
	assert.Equal(t, 30.0, v.DaysUntilDue)
	assert.Equal(t, 12.0, v.InvoiceAgeDays)
}

func TestComputeFeatures_History(t *testing.T) {
	now := date(2024, 6, 1)
	history := []receivable.Payment{
		payment(date(2024, 5, 20), -2, 100), // 12 days ago
		payment(date(2024, 3, 1), 10, 300),  // 92 days ago
		payment(date(2023, 12, 1), 45, 200), // 183 days ago
		payment(date(2024, 4, 10), 0, 400),  // 52 days ago
	}
	inv := newTestInvoice(t, date(2024, 5, 1), date(2024, 5, 25), 600)

	v := ComputeFeatures(inv, history, now)

	assert.InDelta(t, 1.0, v.OnTimePaymentRate+v.LatePaymentRate, 1e-12)
	assert.Equal(t, 0.5, v.OnTimePaymentRate)
	assert.Equal(t, 0.25, v.VeryLatePaymentRate)
	assert.Equal(t, 13.25, v.AvgPaymentDelayDays)
	// population std of {-2, 10, 45, 0}
	assert.InDelta(t, 18.8862, v.PaymentDelayStd, 1e-4)
	assert.Equal(t, 250.0, v.AvgPaymentAmount)
	assert.Equal(t, 4.0, v.PaymentCountTotal)
	assert.Equal(t, 2.0, v.PaymentCountLast3Months)
	assert.Equal(t, 3.0, v.PaymentCountLast6Months)
	assert.Equal(t, 12.0, v.RecencyDays)
	assert.Equal(t, 2.4, v.AmountVsCustomerAvg)
	assert.Equal(t, 1.0, v.IsHighAmount)
	assert.Equal(t, -7.0, v.DaysUntilDue, "overdue invoices have negative days until due")
}

func TestComputeFeatures_SinglePaymentHasZeroStd(t *testing.T) {
	now := date(2024, 6, 1)
	inv := newTestInvoice(t, date(2024, 5, 1), date(2024, 6, 15), 100)

	v := ComputeFeatures(inv, []receivable.Payment{payment(date(2024, 5, 1), 7, 100)}, now)

	assert.Equal(t, 0.0, v.PaymentDelayStd)
	assert.Equal(t, 1.0, v.LatePaymentRate)
	assert.Equal(t, 0.0, v.OnTimePaymentRate)
}

func TestDaysUntilDueMatchesCalendarDifference(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 45, 0, 0, time.UTC)
	for offset := -40; offset <= 40; offset += 7 {
		due := date(2024, 3, 10).AddDate(0, 0, offset)
		inv := newTestInvoice(t, date(2024, 1, 1), due, 10)
		if due.Before(inv.IssueDate) {
			continue
		}
		v := ComputeFeatures(inv, nil, now)
		assert.Equal(t, float64(offset), v.DaysUntilDue)
	}
}

func TestDueDateFeatures(t *testing.T) {
	now := date(2024, 1, 1)

	tests := []struct {
		name string
		due  time.Time
		want map[string]float64
	}{
		{
			name: "quarter end saturday",
			due:  date(2024, 3, 30),
			want: map[string]float64{
				"month": 3, "quarter": 1, "day_of_week": 5, "day_of_month": 30,
				"is_month_start": 0, "is_month_end": 1, "is_quarter_end": 1, "is_weekend": 1,
			},
		},
		{
			name: "month start monday",
			due:  date(2024, 7, 1),
			want: map[string]float64{
				"month": 7, "quarter": 3, "day_of_week": 0, "day_of_month": 1,
				"is_month_start": 1, "is_month_end": 0, "is_quarter_end": 0, "is_weekend": 0,
			},
		},
		{
			name: "month end outside quarter end",
			due:  date(2024, 5, 23),
			want: map[string]float64{
				"month": 5, "quarter": 2, "day_of_week": 3, "day_of_month": 23,
				"is_month_start": 0, "is_month_end": 1, "is_quarter_end": 0, "is_weekend": 0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newTestInvoice(t, now, tt.due, 10)
			got := ComputeFeatures(inv, nil, now).Map()
			for k, want := range tt.want {
				assert.Equal(t, want, got[k], k)
			}
		})
	}
}

func TestFeatureSchema(t *testing.T) {
	names := FeatureNames()
	assert.Len(t, names, 23)
	assert.Equal(t, "avg_payment_delay_days", names[0])
	assert.Equal(t, "is_weekend", names[len(names)-1])

	t.Run("values follow schema order", func(t *testing.T) {
		v := FeatureVector{RecencyDays: 5, IsWeekend: 1}
		vals := v.Values()
		assert.Equal(t, 5.0, vals[9])
		assert.Equal(t, 1.0, vals[22])
	})

	t.Run("ordered rebuilds arbitrary order", func(t *testing.T) {
		v := FeatureVector{Month: 4, DaysUntilDue: -3}
		got, err := v.Ordered([]string{"days_until_due", "month"})
		require.NoError(t, err)
		assert.Equal(t, []float64{-3, 4}, got)
	})

	t.Run("ordered rejects unknown feature", func(t *testing.T) {
		_, err := FeatureVector{}.Ordered([]string{"customer_mood"})
		assert.ErrorIs(t, err, ErrFeatureSchemaMismatch)
	})

	t.Run("map round trip", func(t *testing.T) {
		v := FeatureVector{AvgPaymentAmount: 12.5, Quarter: 2}
		back, err := FeatureVectorFromMap(v.Map())
		require.NoError(t, err)
		assert.Equal(t, v, back)
	})

	t.Run("map missing feature is rejected", func(t *testing.T) {
		m := FeatureVector{}.Map()
		delete(m, "recency_days")
		_, err := FeatureVectorFromMap(m)
		assert.ErrorIs(t, err, ErrFeatureSchemaMismatch)
	})

	t.Run("map extra feature is rejected", func(t *testing.T) {
		m := FeatureVector{}.Map()
		m["extra"] = 1
		_, err := FeatureVectorFromMap(m)
		assert.ErrorIs(t, err, ErrFeatureSchemaMismatch)
	})
}

func TestBuildTrainingSet(t *testing.T) {
	now := date(2024, 6, 1)
	customer := uuid.New()

	mk := func(status receivable.InvoiceStatus) receivable.Invoice {
		inv := newTestInvoice(t, date(2024, 1, 1), date(2024, 1, 31), 100)
		inv.CustomerID = customer
		inv.Status = status
		return *inv
	}
	paidLate := mk(receivable.InvoiceStatusPaid)
	paidEarly := mk(receivable.InvoiceStatusPaid)
	paidNoPayment := mk(receivable.InvoiceStatusPaid)
	pending := mk(receivable.InvoiceStatusPending)

	payments := []receivable.Payment{
		{InvoiceID: paidLate.ID, PaymentDate: date(2024, 2, 20), DelayDays: 20, Amount: decimal.NewFromInt(50)},
		{InvoiceID: paidLate.ID, PaymentDate: date(2024, 2, 10), DelayDays: 10, Amount: decimal.NewFromInt(50)},
		{InvoiceID: paidEarly.ID, PaymentDate: date(2024, 1, 29), DelayDays: -2, Amount: decimal.NewFromInt(100)},
		{InvoiceID: pending.ID, PaymentDate: date(2024, 1, 29), DelayDays: -2, Amount: decimal.NewFromInt(10)},
	}
	byInvoice := GroupPaymentsByInvoice(payments)
	history := map[uuid.UUID][]receivable.Payment{customer: payments}

	examples := BuildTrainingSet(
		[]receivable.Invoice{paidLate, paidEarly, paidNoPayment, pending},
		byInvoice, history, now)

	require.Len(t, examples, 2)
	assert.Equal(t, paidLate.ID, examples[0].InvoiceID)
	assert.Equal(t, 10, examples[0].DelayDays, "the earliest payment is ground truth")
	assert.False(t, examples[0].OnTime)
	assert.Equal(t, paidEarly.ID, examples[1].InvoiceID)
	assert.True(t, examples[1].OnTime)
	assert.Equal(t, 4.0, examples[0].Features.PaymentCountTotal)
}
