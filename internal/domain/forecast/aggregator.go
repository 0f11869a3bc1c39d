package forecast

import (
	"fmt"
	"sort"
	"time"

	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Granularity is the calendar bucket size of a forecast
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// IsValid reports whether g is a known granularity
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return true
	}
	return false
}

// BucketStart maps d to its bucket key: the date itself, the Monday of its
// ISO week, or the first of its month.
func BucketStart(d time.Time, g Granularity) time.Time {
	d = shared.DateOf(d)
	switch g {
	case GranularityWeek:
		return shared.AddDays(d, -mondayFirstWeekday(d))
	case GranularityMonth:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return d
}

// BucketLabel names the bucket starting at start.
func BucketLabel(start time.Time, g Granularity) string {
	switch g {
	case GranularityWeek:
		y, w := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case GranularityMonth:
		return start.Format("2006-01")
	}
	return start.Format("2006-01-02")
}

// ScheduledReceipt is one invoice's expected payment under a scenario.
type ScheduledReceipt struct {
	InvoiceID uuid.UUID
	Date      time.Time
	Amount    decimal.Decimal
}

// CashflowBucket sums receipts falling in one calendar bucket.
type CashflowBucket struct {
	Date         time.Time       `json:"date"`
	Period       string          `json:"period"`
	Amount       decimal.Decimal `json:"amount"`
	Cumulative   decimal.Decimal `json:"cumulative"`
	InvoiceCount int             `json:"invoice_count"`
}

// CashflowProjection is the bucketed result of aggregating receipts.
type CashflowProjection struct {
	Granularity  Granularity      `json:"granularity"`
	Buckets      []CashflowBucket `json:"buckets"`
	Total        decimal.Decimal  `json:"total"`
	InvoiceCount int              `json:"invoice_count"`
}

// AggregateReceipts buckets receipts by g, ordered by bucket date, with a
// running cumulative total. No receipts yield an empty projection.
func AggregateReceipts(receipts []ScheduledReceipt, g Granularity) CashflowProjection {
	proj := CashflowProjection{
		Granularity: g,
		Buckets:     []CashflowBucket{},
		Total:       decimal.Zero,
	}
	if len(receipts) == 0 {
		return proj
	}

	byKey := make(map[time.Time]*CashflowBucket)
	for _, r := range receipts {
		key := BucketStart(r.Date, g)
		b, ok := byKey[key]
		if !ok {
			b = &CashflowBucket{Date: key, Period: BucketLabel(key, g), Amount: decimal.Zero}
			byKey[key] = b
		}
		b.Amount = b.Amount.Add(r.Amount)
		b.InvoiceCount++
	}

	keys := make([]time.Time, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	running := decimal.Zero
	for _, k := range keys {
		b := byKey[k]
		running = running.Add(b.Amount)
		b.Cumulative = running
		proj.Buckets = append(proj.Buckets, *b)
	}
	proj.Total = running
	proj.InvoiceCount = len(receipts)
	return proj
}

// ForecastBucket sums daily trend-forecast values within one calendar bucket.
type ForecastBucket struct {
	Period    string    `json:"period"`
	StartDate time.Time `json:"start_date"`
	FirstDate time.Time `json:"first_date"`
	Days      int       `json:"days"`
	Yhat      float64   `json:"yhat"`
	Lower     float64   `json:"yhat_lower"`
	Upper     float64   `json:"yhat_upper"`
}

// AggregateForecast sums point estimates and bounds per calendar bucket.
// Points must be in date order.
func AggregateForecast(points []ForecastPoint, g Granularity) []ForecastBucket {
	out := []ForecastBucket{}
	for _, p := range points {
		key := BucketStart(p.Date, g)
		if n := len(out); n > 0 && out[n-1].StartDate.Equal(key) {
			b := &out[n-1]
			b.Days++
			b.Yhat += p.Yhat
			b.Lower += p.Lower
			b.Upper += p.Upper
			continue
		}
		out = append(out, ForecastBucket{
			Period:    BucketLabel(key, g),
			StartDate: key,
			FirstDate: shared.DateOf(p.Date),
			Days:      1,
			Yhat:      p.Yhat,
			Lower:     p.Lower,
			Upper:     p.Upper,
		})
	}
	return out
}
