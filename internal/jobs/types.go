package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeProcessMessage extracts records from an inbox message and
	// appends them to the ledger.
	JobTypeProcessMessage JobType = "process_message"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ErrJobNotFound is returned by stores for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// ProcessMessageJob processes one saved inbox message.
type ProcessMessageJob struct {
	JobID string `json:"job_id"`

	// InboxPath is the saved message file.
	InboxPath string `json:"inbox_path"`

	// Sender is the phone number or name the message came from.
	Sender string `json:"sender"`

	// ReceivedAt is the message timestamp reported by the gateway.
	ReceivedAt time.Time `json:"received_at"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// Records is the number of ledger rows the job appended.
	Records int `json:"records"`

	// Snapshot is the ledger snapshot written by the job.
	Snapshot string `json:"snapshot,omitempty"`

	RetryCount int `json:"retry_count"`

	// MaxRetries is zero by default: a failed append is not retried
	// because the ledger may already hold the rows.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ProcessMessageJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ProcessMessageJob) GetType() JobType {
	return JobTypeProcessMessage
}

// GetStatus implements the Job interface.
func (j *ProcessMessageJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishProcessMessage(ctx context.Context, job *ProcessMessageJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs a handler for queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the job failed or,
// when retries remain, schedules a retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore keeps job state.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ProcessMessageJob) error

	// GetJob returns ErrJobNotFound for unknown IDs.
	GetJob(ctx context.Context, jobID string) (*ProcessMessageJob, error)

	// ListJobs returns jobs newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ProcessMessageJob, error)

	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Sender string
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
