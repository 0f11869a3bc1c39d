package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"go.uber.org/zap"
)

// LeaseStore grants a key to one caller for ttl across replicas
type LeaseStore interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// TrainableChecker refuses purposes that lack training data
type TrainableChecker interface {
	CheckTrainable(ctx context.Context, purpose forecast.Purpose) error
}

// RetrainTriggerConfig holds configuration for periodic retraining
type RetrainTriggerConfig struct {
	// Interval between retrains; zero disables the trigger
	Interval time.Duration

	// Purposes retrained on each tick
	Purposes []forecast.Purpose
}

// RetrainTrigger periodically enqueues training for every purpose.
// A lease per purpose and interval slot keeps replicas from enqueueing twice.
type RetrainTrigger struct {
	config    RetrainTriggerConfig
	scheduler *Scheduler
	leases    LeaseStore
	checker   TrainableChecker
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewRetrainTrigger creates a new retrain trigger; checker may be nil
func NewRetrainTrigger(
	config RetrainTriggerConfig,
	scheduler *Scheduler,
	leases LeaseStore,
	checker TrainableChecker,
	logger *zap.Logger,
) *RetrainTrigger {
	if len(config.Purposes) == 0 {
		config.Purposes = forecast.Purposes
	}
	return &RetrainTrigger{
		config:    config,
		scheduler: scheduler,
		leases:    leases,
		checker:   checker,
		logger:    logger,
		now:       time.Now,
	}
}

// Start starts the trigger loop. It is a no-op when the interval is zero.
func (c *RetrainTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	if c.config.Interval <= 0 {
		c.logger.Info("Periodic retraining is disabled")
		return nil
	}
	c.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Retrain trigger started", zap.Duration("interval", c.config.Interval))
	return nil
}

// Stop stops the trigger loop
func (c *RetrainTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Retrain trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RetrainTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick enqueues a retrain for every purpose whose lease for the current slot is free.
// It returns the jobs it queued.
func (c *RetrainTrigger) Tick(ctx context.Context) []TrainingJob {
	slot := c.now().UTC().Truncate(c.config.Interval).Unix()

	var queued []TrainingJob
	for _, purpose := range c.config.Purposes {
		log := c.logger.With(zap.String("purpose", string(purpose)))

		if c.checker != nil {
			if err := c.checker.CheckTrainable(ctx, purpose); err != nil {
				log.Info("Skipping periodic retrain", zap.Error(err))
				continue
			}
		}

		key := fmt.Sprintf("retrain:%s:%d", purpose, slot)
		acquired, err := c.leases.TryAcquire(ctx, key, c.config.Interval)
		if err != nil {
			log.Error("Failed to acquire retrain lease", zap.Error(err))
			continue
		}
		if !acquired {
			log.Debug("Retrain already claimed by another replica", zap.String("lease", key))
			continue
		}

		job, err := c.scheduler.Submit(purpose, TriggerSchedule, "scheduler")
		if err != nil {
			log.Error("Failed to enqueue periodic retrain", zap.Error(err))
			continue
		}
		queued = append(queued, job)
	}
	return queued
}
