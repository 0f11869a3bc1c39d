package forecast

import (
	"sort"
	"time"

	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/erp/cashflow/internal/domain/shared"
)

// DailyPoint is one observation of a daily series.
type DailyPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// DailySeries is a gap-free, strictly daily series.
type DailySeries []DailyPoint

// BuildDailySeries sums totals per calendar day and fills every missing day
// between the first and last observation with an explicit zero.
func BuildDailySeries(totals []receivable.DailyTotal) DailySeries {
	if len(totals) == 0 {
		return nil
	}

	byDay := make(map[time.Time]float64, len(totals))
	first, last := shared.DateOf(totals[0].Date), shared.DateOf(totals[0].Date)
	for _, t := range totals {
		d := shared.DateOf(t.Date)
		byDay[d] += t.Amount.InexactFloat64()
		first = shared.MinDate(first, d)
		last = shared.MaxDate(last, d)
	}

	n := shared.DaysBetween(first, last) + 1
	series := make(DailySeries, n)
	for i := 0; i < n; i++ {
		d := shared.AddDays(first, i)
		series[i] = DailyPoint{Date: d, Value: byDay[d]}
	}
	return series
}

// Span returns the number of calendar days covered
func (s DailySeries) Span() int {
	return len(s)
}

// Dates returns the series dates
func (s DailySeries) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Date
	}
	return out
}

// Values returns the series values
func (s DailySeries) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// SplitAt returns the points on or before cutoff and those after it.
func (s DailySeries) SplitAt(cutoff time.Time) (DailySeries, DailySeries) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(cutoff) })
	return s[:i], s[i:]
}
