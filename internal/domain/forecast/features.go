package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/erp/cashflow/internal/domain/shared"
	"gonum.org/v1/gonum/stat"
)

// FeatureSchemaVersion changes whenever a feature is added, removed or
// redefined. Models trained under another version are rejected.
const FeatureSchemaVersion = 1

const (
	// NoHistoryRecencyDays marks a customer with no payments at all
	NoHistoryRecencyDays = 999

	veryLateDelayDays   = 30
	highAmountRatio     = 1.5
	trailingShortWindow = 90
	trailingLongWindow  = 180
	monthStartLastDay   = 7
	monthEndFirstDay    = 23
)

// FeatureVector is the fixed, ordered input of the payment predictor.
// Boolean features are encoded as 0 or 1.
type FeatureVector struct {
	AvgPaymentDelayDays     float64 `json:"avg_payment_delay_days"`
	PaymentDelayStd         float64 `json:"payment_delay_std"`
	OnTimePaymentRate       float64 `json:"on_time_payment_rate"`
	LatePaymentRate         float64 `json:"late_payment_rate"`
	VeryLatePaymentRate     float64 `json:"very_late_payment_rate"`
	AvgPaymentAmount        float64 `json:"avg_payment_amount"`
	PaymentCountTotal       float64 `json:"payment_count_total"`
	PaymentCountLast3Months float64 `json:"payment_count_last_3_months"`
	PaymentCountLast6Months float64 `json:"payment_count_last_6_months"`
	RecencyDays             float64 `json:"recency_days"`

	InvoiceAmount       float64 `json:"invoice_amount"`
	DaysUntilDue        float64 `json:"days_until_due"`
	InvoiceAgeDays      float64 `json:"invoice_age_days"`
	AmountVsCustomerAvg float64 `json:"amount_vs_customer_avg"`
	IsHighAmount        float64 `json:"is_high_amount"`

	Month        float64 `json:"month"`
	Quarter      float64 `json:"quarter"`
	DayOfWeek    float64 `json:"day_of_week"`
	DayOfMonth   float64 `json:"day_of_month"`
	IsMonthStart float64 `json:"is_month_start"`
	IsMonthEnd   float64 `json:"is_month_end"`
	IsQuarterEnd float64 `json:"is_quarter_end"`
	IsWeekend    float64 `json:"is_weekend"`
}

type featureField struct {
	name string
	ref  func(*FeatureVector) *float64
}

// featureFields is the single source of the schema order.
var featureFields = []featureField{
	{"avg_payment_delay_days", func(v *FeatureVector) *float64 { return &v.AvgPaymentDelayDays }},
	{"payment_delay_std", func(v *FeatureVector) *float64 { return &v.PaymentDelayStd }},
	{"on_time_payment_rate", func(v *FeatureVector) *float64 { return &v.OnTimePaymentRate }},
	{"late_payment_rate", func(v *FeatureVector) *float64 { return &v.LatePaymentRate }},
	{"very_late_payment_rate", func(v *FeatureVector) *float64 { return &v.VeryLatePaymentRate }},
	{"avg_payment_amount", func(v *FeatureVector) *float64 { return &v.AvgPaymentAmount }},
	{"payment_count_total", func(v *FeatureVector) *float64 { return &v.PaymentCountTotal }},
	{"payment_count_last_3_months", func(v *FeatureVector) *float64 { return &v.PaymentCountLast3Months }},
	{"payment_count_last_6_months", func(v *FeatureVector) *float64 { return &v.PaymentCountLast6Months }},
	{"recency_days", func(v *FeatureVector) *float64 { return &v.RecencyDays }},
	{"invoice_amount", func(v *FeatureVector) *float64 { return &v.InvoiceAmount }},
	{"days_until_due", func(v *FeatureVector) *float64 { return &v.DaysUntilDue }},
	{"invoice_age_days", func(v *FeatureVector) *float64 { return &v.InvoiceAgeDays }},
	{"amount_vs_customer_avg", func(v *FeatureVector) *float64 { return &v.AmountVsCustomerAvg }},
	{"is_high_amount", func(v *FeatureVector) *float64 { return &v.IsHighAmount }},
	{"month", func(v *FeatureVector) *float64 { return &v.Month }},
	{"quarter", func(v *FeatureVector) *float64 { return &v.Quarter }},
	{"day_of_week", func(v *FeatureVector) *float64 { return &v.DayOfWeek }},
	{"day_of_month", func(v *FeatureVector) *float64 { return &v.DayOfMonth }},
	{"is_month_start", func(v *FeatureVector) *float64 { return &v.IsMonthStart }},
	{"is_month_end", func(v *FeatureVector) *float64 { return &v.IsMonthEnd }},
	{"is_quarter_end", func(v *FeatureVector) *float64 { return &v.IsQuarterEnd }},
	{"is_weekend", func(v *FeatureVector) *float64 { return &v.IsWeekend }},
}

var featureIndex = func() map[string]int {
	m := make(map[string]int, len(featureFields))
	for i, f := range featureFields {
		m[f.name] = i
	}
	return m
}()

// FeatureNames returns the schema's feature names in order.
func FeatureNames() []string {
	names := make([]string, len(featureFields))
	for i, f := range featureFields {
		names[i] = f.name
	}
	return names
}

// Values returns the features in schema order.
func (v FeatureVector) Values() []float64 {
	out := make([]float64, len(featureFields))
	for i, f := range featureFields {
		out[i] = *f.ref(&v)
	}
	return out
}

// Map returns the features keyed by name, the shape archived with predictions.
func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, len(featureFields))
	for _, f := range featureFields {
		out[f.name] = *f.ref(&v)
	}
	return out
}

// Ordered rebuilds the vector in the order a trained model recorded.
func (v FeatureVector) Ordered(names []string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		idx, ok := featureIndex[name]
		if !ok {
			return nil, NewFeatureSchemaMismatchError(fmt.Sprintf("model expects unknown feature %q", name))
		}
		out[i] = *featureFields[idx].ref(&v)
	}
	return out, nil
}

// FeatureVectorFromMap builds a vector from a name-keyed map, rejecting it if
// any schema feature is absent or any key is unknown.
func FeatureVectorFromMap(m map[string]float64) (FeatureVector, error) {
	var v FeatureVector
	for _, f := range featureFields {
		val, ok := m[f.name]
		if !ok {
			return FeatureVector{}, NewFeatureSchemaMismatchError(fmt.Sprintf("missing feature %q", f.name))
		}
		*f.ref(&v) = val
	}
	if len(m) != len(featureFields) {
		for name := range m {
			if _, ok := featureIndex[name]; !ok {
				return FeatureVector{}, NewFeatureSchemaMismatchError(fmt.Sprintf("unexpected feature %q", name))
			}
		}
	}
	return v, nil
}

// CustomerHistory summarizes a customer's payment ledger as of a point in time.
type CustomerHistory struct {
	AvgDelayDays     float64
	DelayStd         float64
	OnTimeRate       float64
	LateRate         float64
	VeryLateRate     float64
	AvgAmount        float64
	CountTotal       int
	CountLast3Months int
	CountLast6Months int
	RecencyDays      int
}

// HasHistory reports whether any payment contributed to the summary
func (h CustomerHistory) HasHistory() bool {
	return h.CountTotal > 0
}

// NoHistory is the summary of a customer who has never paid
func NoHistory() CustomerHistory {
	return CustomerHistory{
		OnTimeRate:  0.5,
		LateRate:    0.5,
		RecencyDays: NoHistoryRecencyDays,
	}
}

// SummarizeHistory computes the customer-history features over payments as of now.
func SummarizeHistory(payments []receivable.Payment, now time.Time) CustomerHistory {
	if len(payments) == 0 {
		return NoHistory()
	}

	today := shared.DateOf(now)
	shortCutoff := shared.AddDays(today, -trailingShortWindow)
	longCutoff := shared.AddDays(today, -trailingLongWindow)

	delays := make([]float64, len(payments))
	var (
		onTime, late, veryLate int
		amountSum              float64
		recent3, recent6       int
		last                   time.Time
	)
	for i, p := range payments {
		delays[i] = float64(p.DelayDays)
		switch {
		case p.DelayDays <= 0:
			onTime++
		default:
			late++
			if p.DelayDays > veryLateDelayDays {
				veryLate++
			}
		}
		amountSum += p.Amount.InexactFloat64()

		paid := shared.DateOf(p.PaymentDate)
		if !paid.Before(shortCutoff) {
			recent3++
		}
		if !paid.Before(longCutoff) {
			recent6++
		}
		if i == 0 || paid.After(last) {
			last = paid
		}
	}

	n := float64(len(payments))
	mean, variance := stat.PopMeanVariance(delays, nil)
	std := 0.0
	if len(payments) >= 2 {
		std = math.Sqrt(variance)
	}

	return CustomerHistory{
		AvgDelayDays:     mean,
		DelayStd:         std,
		OnTimeRate:       float64(onTime) / n,
		LateRate:         float64(late) / n,
		VeryLateRate:     float64(veryLate) / n,
		AvgAmount:        amountSum / n,
		CountTotal:       len(payments),
		CountLast3Months: recent3,
		CountLast6Months: recent6,
		RecencyDays:      shared.DaysBetween(last, today),
	}
}

// BuildFeatureVector derives the feature vector of inv from a precomputed
// customer history, as of now.
func BuildFeatureVector(inv *receivable.Invoice, hist CustomerHistory, now time.Time) FeatureVector {
	today := shared.DateOf(now)
	due := shared.DateOf(inv.DueDate)
	amount := inv.Amount.InexactFloat64()

	v := FeatureVector{
		AvgPaymentDelayDays:     hist.AvgDelayDays,
		PaymentDelayStd:         hist.DelayStd,
		OnTimePaymentRate:       hist.OnTimeRate,
		LatePaymentRate:         hist.LateRate,
		VeryLatePaymentRate:     hist.VeryLateRate,
		AvgPaymentAmount:        hist.AvgAmount,
		PaymentCountTotal:       float64(hist.CountTotal),
		PaymentCountLast3Months: float64(hist.CountLast3Months),
		PaymentCountLast6Months: float64(hist.CountLast6Months),
		RecencyDays:             float64(hist.RecencyDays),

		InvoiceAmount:       amount,
		DaysUntilDue:        float64(shared.DaysBetween(today, due)),
		InvoiceAgeDays:      float64(shared.DaysBetween(inv.IssueDate, today)),
		AmountVsCustomerAvg: 1.0,
	}

	if hist.HasHistory() && hist.AvgAmount > 0 {
		v.AmountVsCustomerAvg = amount / hist.AvgAmount
		v.IsHighAmount = boolFeature(amount > highAmountRatio*hist.AvgAmount)
	}

	applyDueDateFeatures(&v, due)
	return v
}

// ComputeFeatures derives the feature vector of inv from its customer's
// full payment history, as of now.
func ComputeFeatures(inv *receivable.Invoice, history []receivable.Payment, now time.Time) FeatureVector {
	return BuildFeatureVector(inv, SummarizeHistory(history, now), now)
}

func applyDueDateFeatures(v *FeatureVector, due time.Time) {
	month := int(due.Month())
	dom := due.Day()
	weekday := mondayFirstWeekday(due)

	v.Month = float64(month)
	v.Quarter = float64((month-1)/3 + 1)
	v.DayOfWeek = float64(weekday)
	v.DayOfMonth = float64(dom)
	v.IsMonthStart = boolFeature(dom <= monthStartLastDay)
	v.IsMonthEnd = boolFeature(dom >= monthEndFirstDay)
	v.IsQuarterEnd = boolFeature(month%3 == 0 && dom >= monthEndFirstDay)
	v.IsWeekend = boolFeature(weekday >= 5)
}

// mondayFirstWeekday numbers days Monday=0 through Sunday=6.
func mondayFirstWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
