package forecast

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/erp/cashflow/internal/infrastructure/logger"
	"github.com/erp/cashflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PredictionService scores invoices with the active payment predictor and
// projects expected inflows.
type PredictionService struct {
	invoices    receivable.InvoiceRepository
	customers   receivable.CustomerRepository
	payments    receivable.PaymentRepository
	predictions forecast.PredictionRepository
	registry    *Registry
	logger      *zap.Logger
	opts        options
}

// NewPredictionService creates a new PredictionService
func NewPredictionService(
	invoices receivable.InvoiceRepository,
	customers receivable.CustomerRepository,
	payments receivable.PaymentRepository,
	predictions forecast.PredictionRepository,
	registry *Registry,
	zapLogger *zap.Logger,
	opts ...Option,
) *PredictionService {
	return &PredictionService{
		invoices:    invoices,
		customers:   customers,
		payments:    payments,
		predictions: predictions,
		registry:    registry,
		logger:      zapLogger.Named("prediction"),
		opts:        buildOptions(opts),
	}
}

// Predict scores one invoice and stores the result as a new snapshot.
func (s *PredictionService) Predict(ctx context.Context, invoiceID uuid.UUID) (*PredictionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "prediction", "predict_invoice")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, invoiceID.String())

	var (
		resp  *PredictionResponse
		opErr error
	)
	labels := telemetry.ForecastOperationLabels(telemetry.OperationPredictInvoice, string(forecast.PurposePaymentPredictor))
	telemetry.WithProfilingLabels(ctx, labels, func(c context.Context) {
		active, err := s.registry.Predictor()
		if err != nil {
			opErr = err
			return
		}

		inv, err := s.invoices.FindByID(c, invoiceID)
		if err != nil {
			opErr = err
			return
		}
		if err := checkPredictable(inv); err != nil {
			opErr = err
			return
		}

		history, err := s.payments.FindByCustomer(c, inv.CustomerID)
		if err != nil {
			opErr = fmt.Errorf("load payment history: %w", err)
			return
		}

		now := s.opts.now()
		pred, outcome, err := score(active, inv, history, now)
		if err != nil {
			opErr = err
			return
		}
		if err := s.predictions.Save(c, pred); err != nil {
			opErr = fmt.Errorf("save prediction: %w", err)
			return
		}

		telemetry.SetAttributes(span,
			telemetry.SpanAttrModelID, active.Model.ID.String(),
			"risk_score", pred.RiskScore,
		)
		s.opts.metrics.RecordPrediction(c, pred.RiskScore, outcome.Clamped)
		r := ToPredictionResponse(pred, inv)
		resp = &r
	})

	if opErr != nil {
		telemetry.RecordError(span, opErr)
		s.opts.metrics.RecordPredictionError(ctx, ErrorCode(opErr))
		return nil, opErr
	}
	return resp, nil
}

// PredictBatch scores the requested invoices concurrently and stores every
// successful prediction. Failing invoices are reported, never fatal.
func (s *PredictionService) PredictBatch(ctx context.Context, req BatchPredictRequest) (*BatchPredictionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "prediction", "predict_batch")
	defer span.End()

	active, err := s.registry.Predictor()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	invoices, failures, err := s.resolveBatch(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrBatchSize, len(invoices),
		telemetry.SpanAttrModelID, active.Model.ID.String(),
	)

	var (
		scored   []scoredInvoice
		failed   []BatchFailure
		batchErr error
	)
	labels := telemetry.ForecastOperationLabels(telemetry.OperationPredictBatch, string(forecast.PurposePaymentPredictor))
	telemetry.WithProfilingLabels(ctx, labels, func(c context.Context) {
		scored, failed, batchErr = s.scoreInvoices(c, active, invoices, s.opts.now())
	})
	if batchErr != nil {
		telemetry.RecordError(span, batchErr)
		return nil, batchErr
	}
	failures = append(failures, failed...)

	preds := make([]*forecast.Prediction, len(scored))
	for i, sc := range scored {
		preds[i] = sc.prediction
	}
	if len(preds) > 0 {
		if err := s.predictions.SaveBatch(ctx, preds); err != nil {
			err = fmt.Errorf("save predictions: %w", err)
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	resp := &BatchPredictionResponse{
		Predictions: make([]PredictionResponse, len(scored)),
		Count:       len(scored),
		Failed:      failures,
	}
	for i, sc := range scored {
		resp.Predictions[i] = ToPredictionResponse(sc.prediction, sc.invoice)
		s.opts.metrics.RecordPrediction(ctx, sc.prediction.RiskScore, sc.clamped)
	}
	for _, f := range failures {
		s.opts.metrics.RecordPredictionError(ctx, f.Code)
	}
	if resp.Failed == nil {
		resp.Failed = []BatchFailure{}
	}

	logger.Ctx(ctx, s.logger).Info("Batch prediction finished",
		zap.Int("scored", resp.Count),
		zap.Int("failed", len(resp.Failed)),
		zap.String("model_version", active.Model.Version),
	)
	return resp, nil
}

// resolveBatch loads the invoices a batch targets. Requested IDs that do not
// exist become failures.
func (s *PredictionService) resolveBatch(ctx context.Context, req BatchPredictRequest) ([]*receivable.Invoice, []BatchFailure, error) {
	if len(req.InvoiceIDs) == 0 {
		status := receivable.InvoiceStatusPending
		if req.StatusFilter != "" {
			status = receivable.InvoiceStatus(req.StatusFilter)
		}
		found, err := s.invoices.FindByStatus(ctx, status)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s invoices: %w", status, err)
		}
		return invoicePointers(found), nil, nil
	}

	ids := uniqueIDs(req.InvoiceIDs)
	found, err := s.invoices.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load invoices: %w", err)
	}
	byID := make(map[uuid.UUID]*receivable.Invoice, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	var (
		invoices []*receivable.Invoice
		failures []BatchFailure
	)
	for _, id := range ids {
		inv, ok := byID[id]
		if !ok {
			failures = append(failures, BatchFailure{
				InvoiceID: id,
				Code:      shared.ErrNotFound.Code,
				Message:   "invoice not found",
			})
			continue
		}
		invoices = append(invoices, inv)
	}
	return invoices, failures, nil
}

type scoredInvoice struct {
	invoice    *receivable.Invoice
	prediction *forecast.Prediction
	clamped    bool
}

// scoreInvoices scores invoices with bounded parallelism, keeping input
// order. Only context cancellation is returned as an error.
func (s *PredictionService) scoreInvoices(
	ctx context.Context,
	active *ActivePredictor,
	invoices []*receivable.Invoice,
	now time.Time,
) ([]scoredInvoice, []BatchFailure, error) {
	results := make([]*scoredInvoice, len(invoices))
	errs := make([]error, len(invoices))
	histories := newHistoryCache(s.payments)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.concurrency)
	for i, inv := range invoices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := checkPredictable(inv); err != nil {
				errs[i] = err
				return nil
			}
			history, err := histories.get(gctx, inv.CustomerID)
			if err != nil {
				errs[i] = fmt.Errorf("load payment history: %w", err)
				return nil
			}
			pred, outcome, err := score(active, inv, history, now)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &scoredInvoice{invoice: inv, prediction: pred, clamped: outcome.Clamped}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	log := logger.Ctx(ctx, s.logger)
	scored := make([]scoredInvoice, 0, len(invoices))
	var failures []BatchFailure
	for i, inv := range invoices {
		if err := errs[i]; err != nil {
			perr := &forecast.PerInvoiceError{InvoiceID: inv.ID, Err: err}
			log.Warn("Invoice prediction failed",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("invoice_number", inv.Number),
				zap.Error(perr),
			)
			failures = append(failures, BatchFailure{
				InvoiceID: inv.ID,
				Code:      ErrorCode(err),
				Message:   err.Error(),
			})
			continue
		}
		scored = append(scored, *results[i])
	}
	return scored, failures, nil
}

// ForecastCashflow projects pending invoices due in the window onto their
// expected payment dates under the scenario. The latest stored prediction of
// an invoice is reused; invoices never predicted are scored on the fly.
func (s *PredictionService) ForecastCashflow(ctx context.Context, q CashflowForecastQuery) (*CashflowForecastResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "prediction", "forecast_cashflow")
	defer span.End()

	now := s.opts.now()
	window, err := resolveCashflowQuery(q, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrScenario, string(window.scenario),
		telemetry.SpanAttrGranularity, string(window.granularity),
	)

	var (
		resp  *CashflowForecastResponse
		opErr error
	)
	labels := telemetry.ForecastOperationLabels(telemetry.OperationForecastCashflow, string(forecast.PurposePaymentPredictor))
	telemetry.WithProfilingLabels(ctx, labels, func(c context.Context) {
		resp, opErr = s.forecastCashflow(c, window, now)
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		return nil, opErr
	}
	s.opts.metrics.RecordForecast(ctx, "cashflow", string(window.granularity))
	return resp, nil
}

type cashflowWindow struct {
	start, end  time.Time
	scenario    forecast.Scenario
	granularity forecast.Granularity
}

func resolveCashflowQuery(q CashflowForecastQuery, now time.Time) (cashflowWindow, error) {
	w := cashflowWindow{
		start:       shared.DateOf(now),
		scenario:    forecast.ScenarioRealistic,
		granularity: forecast.GranularityDay,
	}
	if q.StartDate != "" {
		d, err := time.Parse(DateLayout, q.StartDate)
		if err != nil {
			return w, shared.NewDomainError("INVALID_INPUT", "start_date must be YYYY-MM-DD")
		}
		w.start = d
	}
	w.end = shared.AddDays(w.start, DefaultHorizonDays)
	if q.EndDate != "" {
		d, err := time.Parse(DateLayout, q.EndDate)
		if err != nil {
			return w, shared.NewDomainError("INVALID_INPUT", "end_date must be YYYY-MM-DD")
		}
		w.end = d
	}
	if w.end.Before(w.start) {
		return w, shared.NewDomainError("INVALID_INPUT", "end_date cannot precede start_date")
	}
	if q.Scenario != "" {
		w.scenario = forecast.Scenario(q.Scenario)
		if !w.scenario.IsValid() {
			return w, shared.NewDomainError("INVALID_INPUT", "scenario must be optimistic, realistic or pessimistic")
		}
	}
	if q.Granularity != "" {
		g, err := parseGranularity(q.Granularity)
		if err != nil {
			return w, err
		}
		w.granularity = g
	}
	return w, nil
}

func parseGranularity(s string) (forecast.Granularity, error) {
	g := forecast.Granularity(s)
	if !g.IsValid() {
		return "", shared.NewDomainError("INVALID_INPUT", "granularity must be day, week or month")
	}
	return g, nil
}

func (s *PredictionService) forecastCashflow(ctx context.Context, w cashflowWindow, now time.Time) (*CashflowForecastResponse, error) {
	resp := &CashflowForecastResponse{
		StartDate:   formatDate(w.start),
		EndDate:     formatDate(w.end),
		Scenario:    w.scenario,
		Granularity: w.granularity,
		Cashflow:    []forecast.CashflowBucket{},
		Predictions: []CashflowLine{},
		Summary:     CashflowSummary{TotalExpected: decimal.Zero},
	}

	invoices, err := s.invoices.FindByStatusDueBetween(ctx, receivable.InvoiceStatusPending, w.start, w.end)
	if err != nil {
		return nil, fmt.Errorf("load pending invoices: %w", err)
	}
	if len(invoices) == 0 {
		return resp, nil
	}

	ids := make([]uuid.UUID, len(invoices))
	for i := range invoices {
		ids[i] = invoices[i].ID
	}
	latest, err := s.predictions.LatestByInvoiceIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load latest predictions: %w", err)
	}

	type placed struct {
		invoice *receivable.Invoice
		date    time.Time
		source  string
	}
	lines := make([]placed, 0, len(invoices))
	var unscored []*receivable.Invoice
	for i := range invoices {
		inv := &invoices[i]
		if p, ok := latest[inv.ID]; ok {
			lines = append(lines, placed{invoice: inv, date: p.DateFor(w.scenario), source: "stored"})
			continue
		}
		unscored = append(unscored, inv)
	}

	if len(unscored) > 0 {
		active, err := s.registry.Predictor()
		if err != nil {
			return nil, err
		}
		scored, _, err := s.scoreInvoices(ctx, active, unscored, now)
		if err != nil {
			return nil, err
		}
		for _, sc := range scored {
			lines = append(lines, placed{invoice: sc.invoice, date: sc.prediction.DateFor(w.scenario), source: "computed"})
		}
	}

	names, err := s.customerNames(ctx, invoices)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].date.Equal(lines[j].date) {
			return lines[i].date.Before(lines[j].date)
		}
		return lines[i].invoice.Number < lines[j].invoice.Number
	})

	receipts := make([]forecast.ScheduledReceipt, len(lines))
	for i, l := range lines {
		receipts[i] = forecast.ScheduledReceipt{InvoiceID: l.invoice.ID, Date: l.date, Amount: l.invoice.Amount}
		resp.Predictions = append(resp.Predictions, CashflowLine{
			InvoiceID:            l.invoice.ID,
			InvoiceNumber:        l.invoice.Number,
			Customer:             names[l.invoice.CustomerID].Name,
			Amount:               l.invoice.Amount,
			DueDate:              formatDate(l.invoice.DueDate),
			PredictedPaymentDate: formatDate(l.date),
			Source:               l.source,
		})
	}

	projection := forecast.AggregateReceipts(receipts, w.granularity)
	resp.Cashflow = projection.Buckets
	resp.Summary = CashflowSummary{
		TotalExpected:   projection.Total,
		InvoiceCount:    len(invoices),
		PredictionCount: len(lines),
	}
	return resp, nil
}

// CustomerPredictions scores every pending invoice of a customer without
// storing the results.
func (s *PredictionService) CustomerPredictions(ctx context.Context, customerID uuid.UUID) (*CustomerPredictionsResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "prediction", "customer_predictions")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, customerID.String())

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := &CustomerPredictionsResponse{
		CustomerID:        customer.ID,
		CustomerName:      customer.Name,
		CustomerSegment:   string(customer.Segment),
		CustomerRiskScore: customer.RiskScore,
		TotalOutstanding:  decimal.Zero,
		Predictions:       []PredictionResponse{},
	}

	invoices, err := s.invoices.FindByCustomerAndStatus(ctx, customerID, receivable.InvoiceStatusPending)
	if err != nil {
		err = fmt.Errorf("load pending invoices: %w", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(invoices) == 0 {
		return resp, nil
	}

	active, err := s.registry.Predictor()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	history, err := s.payments.FindByCustomer(ctx, customerID)
	if err != nil {
		err = fmt.Errorf("load payment history: %w", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.opts.now()
	for i := range invoices {
		inv := &invoices[i]
		pred, _, err := score(active, inv, history, now)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		resp.Predictions = append(resp.Predictions, ToPredictionResponse(pred, inv))
		resp.TotalOutstanding = resp.TotalOutstanding.Add(inv.Amount)
	}
	resp.PendingInvoices = len(invoices)
	return resp, nil
}

// HighRisk lists pending invoices whose latest prediction is at or above the
// risk threshold.
func (s *PredictionService) HighRisk(ctx context.Context, q HighRiskQuery) (*HighRiskResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "prediction", "high_risk")
	defer span.End()

	threshold := DefaultHighRiskThreshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, shared.NewDomainError("INVALID_INPUT", "threshold must be between 0 and 1")
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultHighRiskLimit
	}
	if limit < 0 || limit > MaxHighRiskLimit {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("limit must be between 1 and %d", MaxHighRiskLimit))
	}

	preds, err := s.predictions.FindHighRisk(ctx, threshold, limit)
	if err != nil {
		err = fmt.Errorf("load high-risk predictions: %w", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := &HighRiskResponse{
		Threshold:         threshold,
		HighRiskInvoices:  []HighRiskInvoice{},
		TotalAmountAtRisk: decimal.Zero,
	}
	if len(preds) == 0 {
		return resp, nil
	}

	ids := make([]uuid.UUID, len(preds))
	for i := range preds {
		ids[i] = preds[i].InvoiceID
	}
	found, err := s.invoices.FindByIDs(ctx, ids)
	if err != nil {
		err = fmt.Errorf("load invoices: %w", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	byID := make(map[uuid.UUID]*receivable.Invoice, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}
	customers, err := s.customerNames(ctx, found)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	for i := range preds {
		p := &preds[i]
		inv, ok := byID[p.InvoiceID]
		if !ok || !inv.IsPending() {
			continue
		}
		c := customers[inv.CustomerID]
		resp.HighRiskInvoices = append(resp.HighRiskInvoices, HighRiskInvoice{
			InvoiceID:            inv.ID,
			InvoiceNumber:        inv.Number,
			Customer:             c.Name,
			CustomerSegment:      string(c.Segment),
			Amount:               inv.Amount,
			DueDate:              formatDate(inv.DueDate),
			PredictedPaymentDate: formatDate(p.PredictedDate),
			RiskScore:            p.RiskScore,
			PredictedDelayDays:   p.PredictedDelayDays,
		})
		resp.TotalAmountAtRisk = resp.TotalAmountAtRisk.Add(inv.Amount)
	}
	resp.Count = len(resp.HighRiskInvoices)
	return resp, nil
}

// PredictionHistory returns every snapshot of an invoice, newest first.
func (s *PredictionService) PredictionHistory(ctx context.Context, invoiceID uuid.UUID) ([]PredictionResponse, error) {
	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	preds, err := s.predictions.FindByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("load prediction history: %w", err)
	}
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].CreatedAt.After(preds[j].CreatedAt) })

	out := make([]PredictionResponse, len(preds))
	for i := range preds {
		out[i] = ToPredictionResponse(&preds[i], inv)
	}
	return out, nil
}

// ForecastTrend forecasts daily inflow with the active trend model and
// buckets it by granularity.
func (s *PredictionService) ForecastTrend(ctx context.Context, q TrendForecastQuery) (*TrendForecastResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "prediction", "forecast_trend")
	defer span.End()

	days := q.DaysAhead
	if days == 0 {
		days = DefaultHorizonDays
	}
	if days < MinTrendDaysAhead || days > MaxTrendDaysAhead {
		err := shared.NewDomainError("INVALID_INPUT",
			fmt.Sprintf("days_ahead must be between %d and %d", MinTrendDaysAhead, MaxTrendDaysAhead))
		telemetry.RecordError(span, err)
		return nil, err
	}
	granularity := forecast.GranularityDay
	if q.Granularity != "" {
		g, err := parseGranularity(q.Granularity)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		granularity = g
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDaysAhead, days,
		telemetry.SpanAttrGranularity, string(granularity),
	)

	active, err := s.registry.Forecaster()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var resp *TrendForecastResponse
	labels := telemetry.ForecastOperationLabels(telemetry.OperationForecastTrend, string(forecast.PurposeCashflowForecaster))
	telemetry.WithProfilingLabels(ctx, labels, func(context.Context) {
		points := active.Forecaster.Forecast(days)
		resp = &TrendForecastResponse{
			DaysAhead:     days,
			Granularity:   granularity,
			ModelVersion:  active.Model.Version,
			Forecast:      trendPoints(points, granularity),
			TrendAnalysis: active.Forecaster.TrendAnalysis(),
			ModelMetrics:  active.Forecaster.Metrics().Map(),
		}
	})
	s.opts.metrics.RecordForecast(ctx, "trend", string(granularity))
	return resp, nil
}

func trendPoints(points []forecast.ForecastPoint, g forecast.Granularity) []TrendPoint {
	if g == forecast.GranularityDay {
		out := make([]TrendPoint, len(points))
		for i, p := range points {
			out[i] = TrendPoint{
				Date:   formatDate(p.Date),
				Period: forecast.BucketLabel(p.Date, g),
				Days:   1,
				Yhat:   p.Yhat,
				Lower:  p.Lower,
				Upper:  p.Upper,
			}
		}
		return out
	}

	buckets := forecast.AggregateForecast(points, g)
	out := make([]TrendPoint, len(buckets))
	for i, b := range buckets {
		out[i] = TrendPoint{
			Date:   formatDate(b.FirstDate),
			Period: b.Period,
			Days:   b.Days,
			Yhat:   b.Yhat,
			Lower:  b.Lower,
			Upper:  b.Upper,
		}
	}
	return out
}

func (s *PredictionService) customerNames(ctx context.Context, invoices []receivable.Invoice) (map[uuid.UUID]receivable.Customer, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for i := range invoices {
		if id := invoices[i].CustomerID; !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	customers, err := s.customers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}
	out := make(map[uuid.UUID]receivable.Customer, len(customers))
	for _, c := range customers {
		out[c.ID] = c
	}
	return out, nil
}

// score runs the predictor on one invoice as of now.
func score(active *ActivePredictor, inv *receivable.Invoice, history []receivable.Payment, now time.Time) (*forecast.Prediction, forecast.PaymentOutcome, error) {
	features := forecast.ComputeFeatures(inv, history, now)
	outcome, err := active.Predictor.Predict(features, now)
	if err != nil {
		return nil, forecast.PaymentOutcome{}, err
	}
	return forecast.NewPrediction(inv.ID, active.Model.ID, outcome, features, now), outcome, nil
}

func checkPredictable(inv *receivable.Invoice) error {
	switch inv.Status {
	case receivable.InvoiceStatusPaid:
		return shared.NewDomainError(forecast.CodeInvoiceAlreadyPaid,
			fmt.Sprintf("Invoice %s is already paid", inv.Number))
	case receivable.InvoiceStatusCancelled:
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("Invoice %s is cancelled", inv.Number))
	}
	return nil
}

// ErrorCode extracts the domain error code of err, or INTERNAL_ERROR.
func ErrorCode(err error) string {
	return shared.CodeOf(err)
}

// historyCache fetches each customer's ledger once per batch.
type historyCache struct {
	payments receivable.PaymentRepository
	mu       sync.Mutex
	entries  map[uuid.UUID]*historyEntry
}

type historyEntry struct {
	once     sync.Once
	payments []receivable.Payment
	err      error
}

func newHistoryCache(payments receivable.PaymentRepository) *historyCache {
	return &historyCache{payments: payments, entries: make(map[uuid.UUID]*historyEntry)}
}

func (c *historyCache) get(ctx context.Context, customerID uuid.UUID) ([]receivable.Payment, error) {
	c.mu.Lock()
	e, ok := c.entries[customerID]
	if !ok {
		e = &historyEntry{}
		c.entries[customerID] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.payments, e.err = c.payments.FindByCustomer(ctx, customerID)
	})
	return e.payments, e.err
}

func invoicePointers(invoices []receivable.Invoice) []*receivable.Invoice {
	out := make([]*receivable.Invoice, len(invoices))
	for i := range invoices {
		out[i] = &invoices[i]
	}
	return out
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
