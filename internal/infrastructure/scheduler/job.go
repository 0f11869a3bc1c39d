package scheduler

import (
	"time"

	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/google/uuid"
)

// JobStatus represents the state of a training job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Trigger records why a job was queued
type Trigger string

const (
	TriggerAPI      Trigger = "api"
	TriggerSchedule Trigger = "schedule"
	TriggerCLI      Trigger = "cli"
)

// TrainingJob is one queued training run. Copies handed out by the
// scheduler are snapshots and never change after they are returned.
type TrainingJob struct {
	ID          uuid.UUID                   `json:"id"`
	Purpose     forecast.Purpose            `json:"purpose"`
	Trigger     Trigger                     `json:"trigger"`
	RequestedBy string                      `json:"requested_by,omitempty"`
	Status      JobStatus                   `json:"status"`
	Error       string                      `json:"error,omitempty"`
	ErrorCode   string                      `json:"error_code,omitempty"`
	Result      *forecastapp.TrainingResult `json:"result,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	StartedAt   *time.Time                  `json:"started_at,omitempty"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
}

// NewTrainingJob creates a pending job
func NewTrainingJob(purpose forecast.Purpose, trigger Trigger, requestedBy string, now time.Time) *TrainingJob {
	return &TrainingJob{
		ID:          uuid.New(),
		Purpose:     purpose,
		Trigger:     trigger,
		RequestedBy: requestedBy,
		Status:      JobStatusPending,
		CreatedAt:   now,
	}
}

// Start marks the job as running
func (j *TrainingJob) Start(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
	j.ErrorCode = ""
}

// Complete marks the job as successful
func (j *TrainingJob) Complete(result *forecastapp.TrainingResult, now time.Time) {
	j.Status = JobStatusCompleted
	j.Result = result
	j.CompletedAt = &now
}

// Fail marks the job as failed. Failed jobs are not retried.
func (j *TrainingJob) Fail(err error, now time.Time) {
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.ErrorCode = forecastapp.ErrorCode(err)
	j.CompletedAt = &now
}

// Finished reports whether the job reached a terminal state
func (j *TrainingJob) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// InFlight reports whether the job is waiting or running
func (j *TrainingJob) InFlight() bool {
	return !j.Finished()
}

// Duration is the run time of a finished job
func (j *TrainingJob) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

func (j *TrainingJob) snapshot() TrainingJob {
	return *j
}
