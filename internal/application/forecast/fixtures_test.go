package forecast

import (
	"fmt"
	"testing"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func testToday() time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func testTrainingOptions() forecast.TrainingOptions {
	opts := forecast.DefaultTrainingOptions()
	opts.Boosting.NumTrees = 20
	opts.Boosting.MaxDepth = 3
	opts.Boosting.LearningRate = 0.3
	return opts
}

// ledger is a paid-invoice history: the first half of the customers pay on
// time, the second half pay one to four weeks late.
type ledger struct {
	customers  []receivable.Customer
	paid       []receivable.Invoice
	payments   []receivable.Payment
	byCustomer map[uuid.UUID][]receivable.Payment
}

func buildLedger(t *testing.T, customers, perCustomer int) *ledger {
	t.Helper()
	l := &ledger{byCustomer: make(map[uuid.UUID][]receivable.Payment)}
	for c := range customers {
		cust, err := receivable.NewCustomer(fmt.Sprintf("C%03d", c), fmt.Sprintf("Customer %d", c))
		require.NoError(t, err)
		l.customers = append(l.customers, *cust)
		late := c >= customers/2

		for k := range perCustomer {
			issue := testNow.AddDate(0, 0, -400+k*12+c)
			inv, err := receivable.NewInvoice(
				fmt.Sprintf("INV-%d-%03d", c, k), cust.ID,
				issue, issue.AddDate(0, 0, 30),
				decimal.NewFromInt(int64(1000+100*k)),
			)
			require.NoError(t, err)

			delay := -(k % 3)
			if late {
				delay = 8 + (k*7)%20
			}
			pay, err := receivable.NewPayment(inv, inv.DueDate.AddDate(0, 0, delay), inv.Amount)
			require.NoError(t, err)
			require.NoError(t, inv.MarkPaid())

			l.paid = append(l.paid, *inv)
			l.payments = append(l.payments, *pay)
			l.byCustomer[cust.ID] = append(l.byCustomer[cust.ID], *pay)
		}
	}
	return l
}

// pendingInvoice issues an open invoice for customer due in dueIn days.
func pendingInvoice(t *testing.T, customer receivable.Customer, number string, dueIn int, amount int64) receivable.Invoice {
	t.Helper()
	inv, err := receivable.NewInvoice(number, customer.ID,
		testNow.AddDate(0, 0, -10), testNow.AddDate(0, 0, dueIn), decimal.NewFromInt(amount))
	require.NoError(t, err)
	return *inv
}

func trainedPredictor(t *testing.T, l *ledger) *ActivePredictor {
	t.Helper()
	examples := forecast.BuildTrainingSet(l.paid, forecast.GroupPaymentsByInvoice(l.payments), l.byCustomer, testNow)
	p, err := forecast.TrainPaymentPredictor(t.Context(), examples, testTrainingOptions(), testNow)
	require.NoError(t, err)

	model := forecast.NewTrainedModel(forecast.PurposePaymentPredictor, testNow, p.Metrics().Map(), len(examples), time.Second)
	model.FeatureNames = p.FeatureNames()
	model.MarkActive(testNow)
	return &ActivePredictor{Model: model, Predictor: p}
}

// dailyTotals is a weekday-heavy inflow series of days ending yesterday.
func dailyTotals(days int) []receivable.DailyTotal {
	start := testToday().AddDate(0, 0, -days)
	out := make([]receivable.DailyTotal, days)
	for i := range out {
		d := start.AddDate(0, 0, i)
		v := int64(1000 + 5*i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			v = 200
		}
		out[i] = receivable.DailyTotal{Date: d, Amount: decimal.NewFromInt(v)}
	}
	return out
}

func trainedForecaster(t *testing.T) *ActiveForecaster {
	t.Helper()
	f, err := forecast.TrainTrendForecaster(t.Context(), forecast.BuildDailySeries(dailyTotals(120)), forecast.DefaultTrendOptions(), testNow)
	require.NoError(t, err)
	model := forecast.NewTrainedModel(forecast.PurposeCashflowForecaster, testNow, f.Metrics().Map(), 120, time.Second)
	model.MarkActive(testNow)
	return &ActiveForecaster{Model: model, Forecaster: f}
}

type fixture struct {
	invoices    *MockInvoiceRepository
	customers   *MockCustomerRepository
	payments    *MockPaymentRepository
	predictions *MockPredictionRepository
	models      *MockModelRepository
	artifacts   *MockArtifactStore
	publisher   *MockPublisher
	registry    *Registry
	predictSvc  *PredictionService
	modelSvc    *ModelService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &fixture{
		invoices:    new(MockInvoiceRepository),
		customers:   new(MockCustomerRepository),
		payments:    new(MockPaymentRepository),
		predictions: new(MockPredictionRepository),
		models:      new(MockModelRepository),
		artifacts:   new(MockArtifactStore),
		publisher:   new(MockPublisher),
	}
	clock := WithClock(func() time.Time { return testNow })
	f.registry = NewRegistry(f.models, f.artifacts, logger)
	f.predictSvc = NewPredictionService(f.invoices, f.customers, f.payments, f.predictions, f.registry, logger,
		clock, WithBatchConcurrency(4))
	f.modelSvc = NewModelService(f.invoices, f.payments, f.models, f.artifacts, f.registry, f.publisher,
		testTrainingOptions(), forecast.DefaultTrendOptions(), logger, clock)
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.invoices.AssertExpectations(t)
	f.customers.AssertExpectations(t)
	f.payments.AssertExpectations(t)
	f.predictions.AssertExpectations(t)
	f.models.AssertExpectations(t)
	f.artifacts.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}
