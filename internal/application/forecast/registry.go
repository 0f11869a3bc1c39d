package forecast

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/domain/shared"
	"go.uber.org/zap"
)

// ActivePredictor is the loaded payment predictor of the active model
type ActivePredictor struct {
	Model     *forecast.TrainedModel
	Predictor *forecast.PaymentPredictor
}

// ActiveForecaster is the loaded trend forecaster of the active model
type ActiveForecaster struct {
	Model      *forecast.TrainedModel
	Forecaster *forecast.TrendForecaster
}

// Registry holds the active model of each purpose in memory. Reads never
// block; an install replaces the slot with compare-and-swap, so readers
// observe either the previous model or the new one.
type Registry struct {
	payment atomic.Pointer[ActivePredictor]
	trend   atomic.Pointer[ActiveForecaster]

	models    forecast.ModelRepository
	artifacts forecast.ArtifactStore
	logger    *zap.Logger
}

// NewRegistry creates an empty registry backed by the model table and artifact store
func NewRegistry(models forecast.ModelRepository, artifacts forecast.ArtifactStore, logger *zap.Logger) *Registry {
	return &Registry{
		models:    models,
		artifacts: artifacts,
		logger:    logger.Named("registry"),
	}
}

// Predictor returns the active payment predictor
func (r *Registry) Predictor() (*ActivePredictor, error) {
	if p := r.payment.Load(); p != nil {
		return p, nil
	}
	return nil, forecast.NewModelNotTrainedError(forecast.PurposePaymentPredictor)
}

// Forecaster returns the active trend forecaster
func (r *Registry) Forecaster() (*ActiveForecaster, error) {
	if f := r.trend.Load(); f != nil {
		return f, nil
	}
	return nil, forecast.NewModelNotTrainedError(forecast.PurposeCashflowForecaster)
}

// InstallPredictor makes p the active payment predictor unless the slot
// already holds a model activated later. It reports whether p was installed.
func (r *Registry) InstallPredictor(p *ActivePredictor) bool {
	return install(&r.payment, p, func(cur *ActivePredictor) *forecast.TrainedModel { return cur.Model })
}

// InstallForecaster makes f the active trend forecaster unless the slot
// already holds a model activated later. It reports whether f was installed.
func (r *Registry) InstallForecaster(f *ActiveForecaster) bool {
	return install(&r.trend, f, func(cur *ActiveForecaster) *forecast.TrainedModel { return cur.Model })
}

func install[T any](slot *atomic.Pointer[T], next *T, model func(*T) *forecast.TrainedModel) bool {
	incoming := model(next)
	for {
		cur := slot.Load()
		if cur != nil {
			held := model(cur)
			if held.ID == incoming.ID && !incoming.ActivatedAt.After(held.ActivatedAt) {
				return false
			}
			// a stale broadcast must not roll back a newer activation
			if held.ActivatedAt.After(incoming.ActivatedAt) {
				return false
			}
		}
		if slot.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Install decodes artifact for model and installs it in the slot of the model's purpose.
func (r *Registry) Install(model *forecast.TrainedModel, artifact []byte) (bool, error) {
	switch model.Purpose {
	case forecast.PurposePaymentPredictor:
		p, err := forecast.UnmarshalPaymentPredictor(artifact)
		if err != nil {
			return false, err
		}
		return r.InstallPredictor(&ActivePredictor{Model: model, Predictor: p}), nil
	case forecast.PurposeCashflowForecaster:
		f, err := forecast.UnmarshalTrendForecaster(artifact)
		if err != nil {
			return false, err
		}
		return r.InstallForecaster(&ActiveForecaster{Model: model, Forecaster: f}), nil
	}
	return false, forecast.ErrUnknownPurpose
}

// Reload fetches the active model of purpose from storage and installs it.
// A purpose with no active model leaves its slot untouched.
func (r *Registry) Reload(ctx context.Context, purpose forecast.Purpose) error {
	model, err := r.models.FindActive(ctx, purpose)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			r.logger.Info("No active model", zap.String("purpose", string(purpose)))
			return nil
		}
		return fmt.Errorf("find active %s model: %w", purpose, err)
	}

	data, err := r.artifacts.Get(ctx, model.ArtifactKey)
	if err != nil {
		return fmt.Errorf("load artifact %s: %w", model.ArtifactKey, err)
	}
	installed, err := r.Install(model, data)
	if err != nil {
		return fmt.Errorf("decode artifact %s: %w", model.ArtifactKey, err)
	}
	if installed {
		r.logger.Info("Model loaded",
			zap.String("purpose", string(purpose)),
			zap.String("version", model.Version),
			zap.String("model_id", model.ID.String()),
		)
	}
	return nil
}

// ReloadAll reloads every purpose, returning the joined errors of those that failed.
func (r *Registry) ReloadAll(ctx context.Context) error {
	var errs []error
	for _, purpose := range forecast.Purposes {
		if err := r.Reload(ctx, purpose); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SlotStatus describes what a registry slot currently serves
type SlotStatus struct {
	Purpose     forecast.Purpose `json:"purpose"`
	Loaded      bool             `json:"loaded"`
	ModelID     string           `json:"model_id,omitempty"`
	Version     string           `json:"version,omitempty"`
	ActivatedAt *time.Time       `json:"activated_at,omitempty"`
}

// Status reports the model loaded for every purpose
func (r *Registry) Status() []SlotStatus {
	out := make([]SlotStatus, 0, len(forecast.Purposes))
	for _, purpose := range forecast.Purposes {
		var model *forecast.TrainedModel
		switch purpose {
		case forecast.PurposePaymentPredictor:
			if p := r.payment.Load(); p != nil {
				model = p.Model
			}
		case forecast.PurposeCashflowForecaster:
			if f := r.trend.Load(); f != nil {
				model = f.Model
			}
		}
		s := SlotStatus{Purpose: purpose}
		if model != nil {
			at := model.ActivatedAt
			s.Loaded = true
			s.ModelID = model.ID.String()
			s.Version = model.Version
			s.ActivatedAt = &at
		}
		out = append(out, s)
	}
	return out
}
