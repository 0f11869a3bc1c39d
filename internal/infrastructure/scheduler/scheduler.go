package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trainer runs one blocking training for a purpose
type Trainer interface {
	Train(ctx context.Context, purpose forecast.Purpose) (*forecastapp.TrainingResult, error)
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	JobRetention      time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: 1,
		QueueSize:         16,
		JobTimeout:        30 * time.Minute,
		JobRetention:      24 * time.Hour,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = d.MaxConcurrentJobs
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.JobRetention <= 0 {
		c.JobRetention = d.JobRetention
	}
	return c
}

// Scheduler runs training jobs on a bounded worker pool and keeps
// their state pollable until the retention window passes.
type Scheduler struct {
	config  SchedulerConfig
	trainer Trainer
	logger  *zap.Logger
	now     func() time.Time

	queue     chan *TrainingJob
	jobs      map[uuid.UUID]*TrainingJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, trainer Trainer, logger *zap.Logger) *Scheduler {
	config = config.withDefaults()
	return &Scheduler{
		config:  config,
		trainer: trainer,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan *TrainingJob, config.QueueSize),
		jobs:    make(map[uuid.UUID]*TrainingJob),
	}
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := range s.config.MaxConcurrentJobs {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Training scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers to exit
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Training scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Training scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a training job for purpose. When a job for the same purpose
// is already pending or running, that job is returned instead of a new one.
func (s *Scheduler) Submit(purpose forecast.Purpose, trigger Trigger, requestedBy string) (TrainingJob, error) {
	if _, err := forecast.ParsePurpose(string(purpose)); err != nil {
		return TrainingJob{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return TrainingJob{}, ErrSchedulerNotRunning
	}
	s.pruneLocked()

	for _, existing := range s.jobs {
		if existing.Purpose == purpose && existing.InFlight() {
			s.logger.Debug("Training already queued",
				zap.String("job_id", existing.ID.String()),
				zap.String("purpose", string(purpose)))
			return existing.snapshot(), nil
		}
	}

	job := NewTrainingJob(purpose, trigger, requestedBy, s.now())
	select {
	case s.queue <- job:
	default:
		return TrainingJob{}, ErrJobQueueFull
	}
	s.jobs[job.ID] = job

	s.logger.Info("Training job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("purpose", string(purpose)),
		zap.String("trigger", string(trigger)),
	)
	return job.snapshot(), nil
}

// Get returns the current state of a job
func (s *Scheduler) Get(id uuid.UUID) (TrainingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	job, ok := s.jobs[id]
	if !ok {
		return TrainingJob{}, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// List returns every retained job, newest first
func (s *Scheduler) List() []TrainingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	out := make([]TrainingJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.snapshot())
	}
	slices.SortFunc(out, func(a, b TrainingJob) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// pruneLocked drops finished jobs older than the retention window
func (s *Scheduler) pruneLocked() {
	cutoff := s.now().Add(-s.config.JobRetention)
	for id, j := range s.jobs {
		if j.Finished() && j.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Worker started", zap.Int("worker_id", workerID))
	for {
		select {
		case <-ctx.Done():
			s.failQueued(ctx.Err())
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job := <-s.queue:
			s.processJob(ctx, job, workerID)
		}
	}
}

// failQueued marks jobs still waiting in the queue as failed on shutdown
func (s *Scheduler) failQueued(cause error) {
	for {
		select {
		case job := <-s.queue:
			s.mu.Lock()
			job.Fail(fmt.Errorf("scheduler stopped: %w", cause), s.now())
			s.mu.Unlock()
		default:
			return
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *TrainingJob, workerID int) {
	s.mu.Lock()
	job.Start(s.now())
	s.mu.Unlock()

	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("purpose", string(job.Purpose)),
	)
	log.Info("Processing training job")

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	result, err := s.trainer.Train(jobCtx, job.Purpose)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrJobTimeout, s.config.JobTimeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && result == nil {
		err = errors.New("trainer returned no result")
	}
	if err != nil {
		job.Fail(err, s.now())
		log.Error("Training job failed", zap.Error(err))
		return
	}
	job.Complete(result, s.now())
	log.Info("Training job completed",
		zap.String("model_id", result.Model.ID.String()),
		zap.String("version", result.Model.Version),
		zap.Duration("took", job.Duration()),
	)
}
