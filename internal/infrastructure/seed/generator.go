// Package seed generates a synthetic receivables ledger for demos and load tests.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/erp/cashflow/internal/domain/shared"
)

// ErrInvalidConfig is returned for non-positive sizes
var ErrInvalidConfig = errors.New("invalid seed config")

// Config sizes the generated ledger
type Config struct {
	Customers int
	Invoices  int
	// HistoryDays bounds how far back issue dates go
	HistoryDays int
	// Seed makes the ledger reproducible; zero picks a random seed
	Seed uint64
}

// DefaultConfig returns a ledger large enough to train both models
func DefaultConfig() Config {
	return Config{Customers: 40, Invoices: 1200, HistoryDays: 540, Seed: 42}
}

// behaviour is the payment habit of a segment: delay ~ N(mean, stddev)
type behaviour struct {
	weight    int
	riskMin   float64
	riskMax   float64
	meanDelay float64
	stdDelay  float64
}

var segments = []struct {
	segment receivable.Segment
	behaviour
}{
	{receivable.SegmentA, behaviour{weight: 40, riskMin: 0.05, riskMax: 0.3, meanDelay: -2, stdDelay: 3}},
	{receivable.SegmentB, behaviour{weight: 40, riskMin: 0.3, riskMax: 0.6, meanDelay: 5, stdDelay: 7}},
	{receivable.SegmentC, behaviour{weight: 20, riskMin: 0.6, riskMax: 0.95, meanDelay: 20, stdDelay: 15}},
}

var paymentTerms = []int{15, 30, 30, 45, 60}

// Ledger is one generated batch
type Ledger struct {
	Customers []*receivable.Customer
	Invoices  []*receivable.Invoice
	Payments  []*receivable.Payment
}

// Generator builds ledgers with gofakeit
type Generator struct {
	cfg   Config
	faker *gofakeit.Faker
}

// NewGenerator validates cfg and seeds the faker
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Customers <= 0 || cfg.Invoices <= 0 {
		return nil, fmt.Errorf("%w: customers and invoices must be positive", ErrInvalidConfig)
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = DefaultConfig().HistoryDays
	}
	return &Generator{cfg: cfg, faker: gofakeit.New(cfg.Seed)}, nil
}

// Generate builds a ledger ending at now. Invoices whose simulated payment
// date has passed are paid; the rest stay pending.
func (g *Generator) Generate(now time.Time) (*Ledger, error) {
	today := shared.DateOf(now)
	ledger := &Ledger{}
	habits := make([]behaviour, 0, g.cfg.Customers)

	for i := range g.cfg.Customers {
		customer, err := receivable.NewCustomer(fmt.Sprintf("C%05d", i+1), g.faker.Company())
		if err != nil {
			return nil, err
		}
		seg, habit := g.pickSegment()
		if err := customer.SetRisk(seg, round(g.faker.Float64Range(habit.riskMin, habit.riskMax), 3)); err != nil {
			return nil, err
		}
		if err := customer.SetPaymentTerms(paymentTerms[g.faker.IntN(len(paymentTerms))]); err != nil {
			return nil, err
		}
		ledger.Customers = append(ledger.Customers, customer)
		habits = append(habits, habit)
	}

	for i := range g.cfg.Invoices {
		ci := g.faker.IntN(len(ledger.Customers))
		customer, habit := ledger.Customers[ci], habits[ci]

		issued := shared.AddDays(today, -g.faker.IntRange(1, g.cfg.HistoryDays))
		due := shared.AddDays(issued, customer.PaymentTermsDays)
		amount := decimal.NewFromFloat(g.faker.Float64Range(500, 50000)).Round(2)

		invoice, err := receivable.NewInvoice(fmt.Sprintf("INV-%06d", i+1), customer.ID, issued, due, amount)
		if err != nil {
			return nil, err
		}

		delay := int(math.Round(habit.meanDelay + g.faker.Float64Range(-1, 1)*habit.stdDelay*1.5))
		paidOn := shared.MaxDate(issued, shared.AddDays(due, delay))
		if paidOn.Before(today) {
			payment, err := receivable.NewPayment(invoice, paidOn, amount)
			if err != nil {
				return nil, err
			}
			if err := invoice.MarkPaid(); err != nil {
				return nil, err
			}
			ledger.Payments = append(ledger.Payments, payment)
		}
		ledger.Invoices = append(ledger.Invoices, invoice)
	}
	return ledger, nil
}

func (g *Generator) pickSegment() (receivable.Segment, behaviour) {
	total := 0
	for _, s := range segments {
		total += s.weight
	}
	n := g.faker.IntN(total)
	for _, s := range segments {
		if n < s.weight {
			return s.segment, s.behaviour
		}
		n -= s.weight
	}
	last := segments[len(segments)-1]
	return last.segment, last.behaviour
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Writer persists a ledger through the receivable repositories
type Writer struct {
	customers receivable.CustomerRepository
	invoices  receivable.InvoiceRepository
	payments  receivable.PaymentRepository
	logger    *zap.Logger
}

// NewWriter creates a Writer
func NewWriter(
	customers receivable.CustomerRepository,
	invoices receivable.InvoiceRepository,
	payments receivable.PaymentRepository,
	logger *zap.Logger,
) *Writer {
	return &Writer{customers: customers, invoices: invoices, payments: payments, logger: logger}
}

// Write saves customers, then invoices, then payments
func (w *Writer) Write(ctx context.Context, ledger *Ledger) error {
	for _, c := range ledger.Customers {
		if err := w.customers.Save(ctx, c); err != nil {
			return fmt.Errorf("save customer %s: %w", c.Code, err)
		}
	}
	for _, inv := range ledger.Invoices {
		if err := w.invoices.Save(ctx, inv); err != nil {
			return fmt.Errorf("save invoice %s: %w", inv.Number, err)
		}
	}
	for _, p := range ledger.Payments {
		if err := w.payments.Save(ctx, p); err != nil {
			return fmt.Errorf("save payment for invoice %s: %w", p.InvoiceID, err)
		}
	}
	w.logger.Info("Ledger seeded",
		zap.Int("customers", len(ledger.Customers)),
		zap.Int("invoices", len(ledger.Invoices)),
		zap.Int("payments", len(ledger.Payments)),
	)
	return nil
}
