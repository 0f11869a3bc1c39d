// Package cache fans model activations out to peer replicas and guards
// cluster-wide one-shot work with short-lived leases.
package cache

import (
	"context"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultActivationChannel is the pub/sub channel used when none is configured
const DefaultActivationChannel = "cashflow:model-activations"

// ActivationMessage announces that a model became the active one for its purpose
type ActivationMessage struct {
	Purpose   forecast.Purpose `json:"purpose"`
	ModelID   uuid.UUID        `json:"model_id"`
	Origin    string           `json:"origin,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// ActivationHandler reacts to a received activation
type ActivationHandler func(ctx context.Context, msg ActivationMessage)

// ActivationBus publishes activations and delivers them to subscribers.
// Subscribe blocks until ctx is cancelled or the bus is closed.
type ActivationBus interface {
	PublishActivation(ctx context.Context, purpose forecast.Purpose, modelID uuid.UUID) error
	Subscribe(ctx context.Context, handler ActivationHandler) error
	Close() error
}

// Reloader reinstalls the active model of a purpose from the database
type Reloader interface {
	Reload(ctx context.Context, purpose forecast.Purpose) error
}

// ReloadOnActivation returns a handler that reloads the announced purpose.
// Reloads are idempotent: the registry ignores activations it already holds.
func ReloadOnActivation(r Reloader, logger *zap.Logger, timeout time.Duration) ActivationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return func(ctx context.Context, msg ActivationMessage) {
		if _, err := forecast.ParsePurpose(string(msg.Purpose)); err != nil {
			logger.Warn("Ignoring activation for unknown purpose",
				zap.String("purpose", string(msg.Purpose)),
				zap.String("origin", msg.Origin))
			return
		}

		reloadCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := r.Reload(reloadCtx, msg.Purpose); err != nil {
			logger.Error("Failed to reload model after activation",
				zap.String("purpose", string(msg.Purpose)),
				zap.String("model_id", msg.ModelID.String()),
				zap.Error(err))
			return
		}
		logger.Info("Reloaded model after activation",
			zap.String("purpose", string(msg.Purpose)),
			zap.String("model_id", msg.ModelID.String()),
			zap.String("origin", msg.Origin))
	}
}
