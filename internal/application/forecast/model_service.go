package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/erp/cashflow/internal/infrastructure/logger"
	"github.com/erp/cashflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActivationPublisher tells peer replicas that a purpose has a new active model
type ActivationPublisher interface {
	PublishActivation(ctx context.Context, purpose forecast.Purpose, modelID uuid.UUID) error
}

type noopPublisher struct{}

func (noopPublisher) PublishActivation(context.Context, forecast.Purpose, uuid.UUID) error {
	return nil
}

// ModelService trains, activates and retires models.
type ModelService struct {
	invoices     receivable.InvoiceRepository
	payments     receivable.PaymentRepository
	models       forecast.ModelRepository
	artifacts    forecast.ArtifactStore
	registry     *Registry
	publisher    ActivationPublisher
	trainingOpts forecast.TrainingOptions
	trendOpts    forecast.TrendOptions
	logger       *zap.Logger
	opts         options
}

// NewModelService creates a new ModelService. A nil publisher disables
// activation broadcasts.
func NewModelService(
	invoices receivable.InvoiceRepository,
	payments receivable.PaymentRepository,
	models forecast.ModelRepository,
	artifacts forecast.ArtifactStore,
	registry *Registry,
	publisher ActivationPublisher,
	trainingOpts forecast.TrainingOptions,
	trendOpts forecast.TrendOptions,
	zapLogger *zap.Logger,
	opts ...Option,
) *ModelService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &ModelService{
		invoices:     invoices,
		payments:     payments,
		models:       models,
		artifacts:    artifacts,
		registry:     registry,
		publisher:    publisher,
		trainingOpts: trainingOpts,
		trendOpts:    trendOpts,
		logger:       zapLogger.Named("models"),
		opts:         buildOptions(opts),
	}
}

// trainedArtifact is a fitted model ready to be persisted
type trainedArtifact struct {
	data    []byte
	metrics map[string]float64
	samples int
	kind    string
	install func(*forecast.TrainedModel) bool
	names   []string
}

// Train fits a new model for purpose, stores it, and makes it active.
func (s *ModelService) Train(ctx context.Context, purpose forecast.Purpose) (*TrainingResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "model", "train")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPurpose, string(purpose))

	if _, err := forecast.ParsePurpose(string(purpose)); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	log := logger.Ctx(ctx, s.logger).With(zap.String("purpose", string(purpose)))
	started := time.Now()
	now := s.opts.now()

	var (
		fitted *trainedArtifact
		opErr  error
	)
	labels := telemetry.ForecastOperationLabels(telemetry.OperationTrainModel, string(purpose))
	telemetry.WithProfilingLabels(ctx, labels, func(c context.Context) {
		switch purpose {
		case forecast.PurposePaymentPredictor:
			fitted, opErr = s.trainPaymentPredictor(c, now)
		case forecast.PurposeCashflowForecaster:
			fitted, opErr = s.trainTrendForecaster(c, now)
		}
	})
	took := time.Since(started)
	if opErr != nil {
		s.opts.metrics.RecordTraining(ctx, string(purpose), took, opErr)
		telemetry.RecordError(span, opErr)
		log.Warn("Training failed", zap.Duration("took", took), zap.Error(opErr))
		return nil, opErr
	}

	model := forecast.NewTrainedModel(purpose, now, fitted.metrics, fitted.samples, took)
	model.FeatureNames = fitted.names
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSamples, fitted.samples,
		telemetry.SpanAttrModelID, model.ID.String(),
	)

	if err := s.persist(ctx, model, fitted.data); err != nil {
		s.opts.metrics.RecordTraining(ctx, string(purpose), took, err)
		telemetry.RecordError(span, err)
		log.Error("Storing trained model failed", zap.String("version", model.Version), zap.Error(err))
		return nil, err
	}
	s.opts.metrics.RecordTraining(ctx, string(purpose), took, nil)

	if err := s.activate(ctx, model, fitted.install); err != nil {
		telemetry.RecordError(span, err)
		log.Error("Activating trained model failed", zap.String("version", model.Version), zap.Error(err))
		return nil, err
	}

	log.Info("Model trained",
		zap.String("version", model.Version),
		zap.String("model_id", model.ID.String()),
		zap.Int("samples", fitted.samples),
		zap.Duration("took", took),
		zap.Any("metrics", fitted.metrics),
	)
	return &TrainingResult{Model: ToModelResponse(model), PredictorKind: fitted.kind}, nil
}

func (s *ModelService) trainPaymentPredictor(ctx context.Context, now time.Time) (*trainedArtifact, error) {
	paid, err := s.invoices.FindByStatus(ctx, receivable.InvoiceStatusPaid)
	if err != nil {
		return nil, fmt.Errorf("load paid invoices: %w", err)
	}
	if len(paid) < s.trainingOpts.MinSamples {
		return nil, forecast.NewInsufficientDataError(len(paid), s.trainingOpts.MinSamples)
	}

	ids := make([]uuid.UUID, len(paid))
	customers := make(map[uuid.UUID]bool)
	for i := range paid {
		ids[i] = paid[i].ID
		customers[paid[i].CustomerID] = true
	}
	payments, err := s.payments.FindByInvoiceIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	ledgers := make(map[uuid.UUID][]receivable.Payment, len(customers))
	for id := range customers {
		ledger, err := s.payments.FindByCustomer(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load payment history of customer %s: %w", id, err)
		}
		ledgers[id] = ledger
	}

	examples := forecast.BuildTrainingSet(paid, forecast.GroupPaymentsByInvoice(payments), ledgers, now)
	predictor, err := forecast.TrainPaymentPredictor(ctx, examples, s.trainingOpts, now)
	if err != nil {
		return nil, err
	}
	data, err := predictor.MarshalArtifact()
	if err != nil {
		return nil, fmt.Errorf("encode payment predictor: %w", err)
	}

	return &trainedArtifact{
		data:    data,
		metrics: predictor.Metrics().Map(),
		samples: len(examples),
		kind:    string(predictor.Kind()),
		names:   predictor.FeatureNames(),
		install: func(m *forecast.TrainedModel) bool {
			return s.registry.InstallPredictor(&ActivePredictor{Model: m, Predictor: predictor})
		},
	}, nil
}

func (s *ModelService) trainTrendForecaster(ctx context.Context, now time.Time) (*trainedArtifact, error) {
	totals, err := s.payments.DailyTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load daily totals: %w", err)
	}
	series := forecast.BuildDailySeries(totals)
	forecaster, err := forecast.TrainTrendForecaster(ctx, series, s.trendOpts, now)
	if err != nil {
		return nil, err
	}
	data, err := forecaster.MarshalArtifact()
	if err != nil {
		return nil, fmt.Errorf("encode trend forecaster: %w", err)
	}

	return &trainedArtifact{
		data:    data,
		metrics: forecaster.Metrics().Map(),
		samples: len(series),
		names:   forecaster.Seasonalities(),
		install: func(m *forecast.TrainedModel) bool {
			return s.registry.InstallForecaster(&ActiveForecaster{Model: m, Forecaster: forecaster})
		},
	}, nil
}

// persist writes the artifact, then the model row. A failed row insert
// removes the orphaned artifact.
func (s *ModelService) persist(ctx context.Context, model *forecast.TrainedModel, data []byte) error {
	if err := s.artifacts.Put(ctx, model.ArtifactKey, data); err != nil {
		return fmt.Errorf("store artifact %s: %w", model.ArtifactKey, err)
	}
	if err := s.models.Save(ctx, model); err != nil {
		if derr := s.artifacts.Delete(ctx, model.ArtifactKey); derr != nil {
			s.logger.Warn("Removing orphaned artifact failed",
				zap.String("artifact_key", model.ArtifactKey), zap.Error(derr))
		}
		return fmt.Errorf("save model %s: %w", model.Version, err)
	}
	return nil
}

// activate flips the active flag in storage, swaps the registry slot and
// tells peer replicas. A failed broadcast is logged; peers catch up on their
// next reload.
func (s *ModelService) activate(ctx context.Context, model *forecast.TrainedModel, install func(*forecast.TrainedModel) bool) error {
	at := s.opts.now()
	if err := s.models.Activate(ctx, model.ID, at); err != nil {
		return fmt.Errorf("activate model %s: %w", model.Version, err)
	}
	model.MarkActive(at)
	install(model)
	s.opts.metrics.RecordActivation(ctx, string(model.Purpose))

	if err := s.publisher.PublishActivation(ctx, model.Purpose, model.ID); err != nil {
		logger.Ctx(ctx, s.logger).Warn("Activation broadcast failed",
			zap.String("purpose", string(model.Purpose)),
			zap.String("model_id", model.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// Activate makes a stored model the active one of its purpose. The artifact
// is decoded before anything changes so a broken artifact is never activated.
func (s *ModelService) Activate(ctx context.Context, id uuid.UUID) (*ModelResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "model", "activate")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrModelID, id.String())

	model, err := s.models.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	data, err := s.artifacts.Get(ctx, model.ArtifactKey)
	if err != nil {
		err = fmt.Errorf("load artifact %s: %w", model.ArtifactKey, err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	var install func(*forecast.TrainedModel) bool
	switch model.Purpose {
	case forecast.PurposePaymentPredictor:
		p, err := forecast.UnmarshalPaymentPredictor(data)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		install = func(m *forecast.TrainedModel) bool {
			return s.registry.InstallPredictor(&ActivePredictor{Model: m, Predictor: p})
		}
	case forecast.PurposeCashflowForecaster:
		f, err := forecast.UnmarshalTrendForecaster(data)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		install = func(m *forecast.TrainedModel) bool {
			return s.registry.InstallForecaster(&ActiveForecaster{Model: m, Forecaster: f})
		}
	default:
		telemetry.RecordError(span, forecast.ErrUnknownPurpose)
		return nil, forecast.ErrUnknownPurpose
	}

	if err := s.activate(ctx, model, install); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	logger.Ctx(ctx, s.logger).Info("Model activated",
		zap.String("purpose", string(model.Purpose)),
		zap.String("version", model.Version),
	)
	resp := ToModelResponse(model)
	return &resp, nil
}

// Delete removes an inactive model and its artifact.
func (s *ModelService) Delete(ctx context.Context, id uuid.UUID) error {
	model, err := s.models.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if model.IsActive {
		return shared.NewDomainError(forecast.CodeModelActive,
			fmt.Sprintf("Model %s is active; activate another %s model first", model.Version, model.Purpose))
	}
	if err := s.models.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete model %s: %w", model.Version, err)
	}
	if err := s.artifacts.Delete(ctx, model.ArtifactKey); err != nil {
		logger.Ctx(ctx, s.logger).Warn("Deleting artifact failed",
			zap.String("artifact_key", model.ArtifactKey), zap.Error(err))
	}
	return nil
}

// List returns models newest first, optionally for one purpose.
func (s *ModelService) List(ctx context.Context, purpose string) ([]ModelResponse, error) {
	var p forecast.Purpose
	if purpose != "" {
		parsed, err := forecast.ParsePurpose(purpose)
		if err != nil {
			return nil, err
		}
		p = parsed
	}
	models, err := s.models.FindAll(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return ToModelResponses(models), nil
}

// Get returns one model record
func (s *ModelService) Get(ctx context.Context, id uuid.UUID) (*ModelResponse, error) {
	model, err := s.models.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToModelResponse(model)
	return &resp, nil
}

// Active returns the active model of a purpose
func (s *ModelService) Active(ctx context.Context, purpose string) (*ModelResponse, error) {
	p, err := forecast.ParsePurpose(purpose)
	if err != nil {
		return nil, err
	}
	model, err := s.models.FindActive(ctx, p)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, forecast.NewModelNotTrainedError(p)
		}
		return nil, err
	}
	resp := ToModelResponse(model)
	return &resp, nil
}

// CheckTrainable reports early whether purpose has enough data to train,
// so a request can be refused before a job is queued.
func (s *ModelService) CheckTrainable(ctx context.Context, purpose forecast.Purpose) error {
	if purpose != forecast.PurposePaymentPredictor {
		return nil
	}
	n, err := s.invoices.CountByStatus(ctx, receivable.InvoiceStatusPaid)
	if err != nil {
		return fmt.Errorf("count paid invoices: %w", err)
	}
	if int(n) < s.trainingOpts.MinSamples {
		return forecast.NewInsufficientDataError(int(n), s.trainingOpts.MinSamples)
	}
	return nil
}
