package scheduler

import "errors"

// Submission and lookup failures. The HTTP layer maps them to
// SERVICE_UNAVAILABLE, JOB_QUEUE_FULL and NOT_FOUND.
var (
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
	ErrJobQueueFull        = errors.New("job queue is full")
	ErrJobNotFound         = errors.New("job not found")
)

// ErrJobTimeout fails a training run that outlives Config.JobTimeout.
var ErrJobTimeout = errors.New("training job timed out")
