package ports

import (
	"context"
	"time"

	"github.com/quern-dev/quern/pkg/job"
)

// EnqueueRequest carries everything needed to publish a job.
type EnqueueRequest struct {
	// JobID enforces uniqueness when set; a random id is generated when empty.
	JobID    string
	Queue    string
	Function string
	Args     map[string]any
	Meta     map[string]any

	// DeferUntil and DeferBy are mutually exclusive.
	DeferUntil time.Time
	DeferBy    time.Duration

	// Expires bounds how long the payload stays readable if no worker picks
	// the job up. Zero means scheduled delay + job.ExpiresExtra.
	Expires time.Duration
}

// Claimed is a job a worker has exclusive ownership of.
type Claimed struct {
	ID    string
	Queue string
	Def   job.Definition
	// Try is the 1-based attempt number for this execution.
	Try int
}

// QueuedJob pairs a job id with its stored definition, for introspection.
type QueuedJob struct {
	ID  string
	Def job.Definition
}

// Broker defines the interface for publishing, claiming and settling jobs.
type Broker interface {
	// Enqueue publishes a job. Returns job.ErrDuplicate if the id is already
	// live and job.ErrDeferConflict if both defer options are set.
	Enqueue(ctx context.Context, req EnqueueRequest) (string, error)

	// ClaimDue atomically moves up to limit due jobs from the queue to this
	// worker. Jobs whose payload has expired are dropped, not returned.
	ClaimDue(ctx context.Context, queue string, limit int, now time.Time) ([]Claimed, error)

	// Requeue puts a claimed job back on the queue to run at the given time,
	// preserving its payload and attempt counter. Used for retries.
	Requeue(ctx context.Context, queue, id string, at time.Time) error

	// Settle finishes a claimed job: the result is retained for keep
	// (dropped immediately when keep is zero) and all live keys are removed.
	Settle(ctx context.Context, id string, res job.Result, keep time.Duration) error

	// Abort removes a job from the queue before it is claimed.
	// Returns false if the job was already claimed or unknown.
	Abort(ctx context.Context, queue, id string) (bool, error)

	// Status reports where a job currently is.
	Status(ctx context.Context, queue, id string) (job.Status, error)

	// QueuedJobs lists the jobs currently sitting in the queue.
	QueuedJobs(ctx context.Context, queue string) ([]QueuedJob, error)

	// PendingCount returns the number of jobs in the queue.
	PendingCount(ctx context.Context, queue string) (int64, error)
}
