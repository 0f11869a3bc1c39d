package forecast

import (
	"math"
	"time"

	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/google/uuid"
)

// Scenario selects one of the three payment-date estimates
type Scenario string

const (
	ScenarioOptimistic  Scenario = "optimistic"  // P10
	ScenarioRealistic   Scenario = "realistic"   // P50
	ScenarioPessimistic Scenario = "pessimistic" // P90
)

// IsValid reports whether s is a known scenario
func (s Scenario) IsValid() bool {
	switch s {
	case ScenarioOptimistic, ScenarioRealistic, ScenarioPessimistic:
		return true
	}
	return false
}

const (
	onTimeThreshold      = 0.5
	onTimeEarlyDays      = 3
	onTimeLateDays       = 7
	overdueGraceDays     = 7
	overdueConfidenceCut = 0.2
	overdueConfidenceMin = 0.2
)

// PaymentOutcome is the result of scoring one feature vector.
type PaymentOutcome struct {
	OnTimeProbability  float64
	PredictedDelayDays int
	RiskScore          float64
	Confidence         float64
	DueDate            time.Time
	PredictedDate      time.Time
	OptimisticDate     time.Time
	RealisticDate      time.Time
	PessimisticDate    time.Time
	// Clamped is set when the raw estimate fell before today and was
	// moved forward with reduced confidence.
	Clamped bool
}

// DateFor returns the payment date under the scenario
func (o PaymentOutcome) DateFor(s Scenario) time.Time {
	switch s {
	case ScenarioOptimistic:
		return o.OptimisticDate
	case ScenarioPessimistic:
		return o.PessimisticDate
	}
	return o.RealisticDate
}

// newPaymentOutcome turns a probability and delay into dated scenarios as of today.
func newPaymentOutcome(prob float64, delay int, daysUntilDue int, today time.Time) PaymentOutcome {
	today = shared.DateOf(today)
	due := shared.AddDays(today, daysUntilDue)
	predicted := shared.AddDays(due, delay)

	o := PaymentOutcome{
		OnTimeProbability:  prob,
		PredictedDelayDays: delay,
		RiskScore:          1 - prob,
		Confidence:         math.Max(prob, 1-prob),
		DueDate:            due,
		PredictedDate:      predicted,
	}

	if prob >= onTimeThreshold {
		o.OptimisticDate = shared.AddDays(due, -onTimeEarlyDays)
		o.RealisticDate = due
		o.PessimisticDate = shared.AddDays(due, onTimeLateDays)
	} else {
		half := delay / 2
		o.OptimisticDate = shared.AddDays(due, half)
		o.RealisticDate = predicted
		o.PessimisticDate = shared.AddDays(predicted, half)
	}

	o.clampToToday(today)
	return o
}

// clampToToday keeps every date on or after today and the scenarios ordered.
// An estimate already in the past is assumed to arrive within a week.
func (o *PaymentOutcome) clampToToday(today time.Time) {
	if o.PredictedDate.Before(today) {
		target := shared.AddDays(today, overdueGraceDays)
		shift := shared.DaysBetween(o.PredictedDate, target)

		o.PredictedDate = target
		o.PredictedDelayDays = shared.DaysBetween(o.DueDate, target)
		o.RealisticDate = shared.AddDays(o.RealisticDate, shift)
		o.PessimisticDate = shared.AddDays(o.PessimisticDate, shift)
		o.Confidence = math.Max(overdueConfidenceMin, o.Confidence-overdueConfidenceCut)
		o.Clamped = true
	}

	o.RealisticDate = shared.MaxDate(o.RealisticDate, today)
	o.PessimisticDate = shared.MaxDate(o.PessimisticDate, o.RealisticDate)
	o.OptimisticDate = shared.MinDate(shared.MaxDate(o.OptimisticDate, today), o.RealisticDate)
}

// Prediction is a frozen snapshot of one inference call. Rows are never
// updated; a newer row supersedes older ones for the same invoice.
type Prediction struct {
	shared.BaseEntity
	InvoiceID          uuid.UUID
	ModelID            uuid.UUID
	PredictedDate      time.Time
	OnTimeProbability  float64
	PredictedDelayDays int
	RiskScore          float64
	Confidence         float64
	OptimisticDate     time.Time
	RealisticDate      time.Time
	PessimisticDate    time.Time
	Features           map[string]float64
}

// NewPrediction snapshots outcome for invoiceID scored by modelID
func NewPrediction(invoiceID, modelID uuid.UUID, outcome PaymentOutcome, features FeatureVector, at time.Time) *Prediction {
	return &Prediction{
		BaseEntity:         shared.NewBaseEntityAt(at),
		InvoiceID:          invoiceID,
		ModelID:            modelID,
		PredictedDate:      outcome.PredictedDate,
		OnTimeProbability:  outcome.OnTimeProbability,
		PredictedDelayDays: outcome.PredictedDelayDays,
		RiskScore:          outcome.RiskScore,
		Confidence:         outcome.Confidence,
		OptimisticDate:     outcome.OptimisticDate,
		RealisticDate:      outcome.RealisticDate,
		PessimisticDate:    outcome.PessimisticDate,
		Features:           features.Map(),
	}
}

// DateFor returns the stored payment date under the scenario
func (p *Prediction) DateFor(s Scenario) time.Time {
	switch s {
	case ScenarioOptimistic:
		return p.OptimisticDate
	case ScenarioPessimistic:
		return p.PessimisticDate
	}
	return p.RealisticDate
}
