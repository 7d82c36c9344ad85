package quern

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/ports"
	"github.com/quern-dev/quern/pkg/registry"
)

// Task is a handle for a registered task, returned by App.RegisterTask.
type Task struct {
	app *App
	def registry.Task
}

// Name returns the registered task name.
func (t *Task) Name() string { return t.def.Name }

type delayOptions struct {
	jobID      string
	queue      string
	deferUntil time.Time
	deferBy    time.Duration
	expires    time.Duration
}

// DelayOption configures a single enqueue.
type DelayOption func(*delayOptions)

// WithJobID pins the job id, enforcing uniqueness: enqueueing an id that is
// already live returns job.ErrDuplicate.
func WithJobID(id string) DelayOption {
	return func(o *delayOptions) { o.jobID = id }
}

// WithQueue routes this job to a specific queue.
func WithQueue(queue string) DelayOption {
	return func(o *delayOptions) { o.queue = queue }
}

// WithDeferUntil schedules the job to run at a point in time.
func WithDeferUntil(at time.Time) DelayOption {
	return func(o *delayOptions) { o.deferUntil = at }
}

// WithDeferBy schedules the job to run after a delay.
func WithDeferBy(d time.Duration) DelayOption {
	return func(o *delayOptions) { o.deferBy = d }
}

// WithExpires overrides how long the job stays runnable if unclaimed.
func WithExpires(d time.Duration) DelayOption {
	return func(o *delayOptions) { o.expires = d }
}

// Delay enqueues a job for this task and returns a handle to it.
// The app must be connected.
func (t *Task) Delay(ctx context.Context, args map[string]any, opts ...DelayOption) (*Job, error) {
	a := t.app
	a.mu.Lock()
	queue := a.queue
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return nil, job.ErrNotConnected
	}

	var o delayOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.queue == "" {
		o.queue = t.def.Queue
	}
	if o.expires == 0 {
		o.expires = t.def.Expires
	}
	if o.expires == 0 {
		o.expires = a.defaultJobExpires
	}

	var meta map[string]any
	if a.onJobPrepublish != nil {
		meta = make(map[string]any)
		if err := a.onJobPrepublish(ctx, meta, t.def, args); err != nil {
			return nil, err
		}
		if len(meta) == 0 {
			meta = nil
		}
	}

	id, err := queue.Enqueue(ctx, ports.EnqueueRequest{
		JobID:      o.jobID,
		Queue:      o.queue,
		Function:   t.def.Name,
		Args:       args,
		Meta:       meta,
		DeferUntil: o.deferUntil,
		DeferBy:    o.deferBy,
		Expires:    o.expires,
	})
	if err != nil {
		return nil, err
	}
	return a.Job(id, o.queue), nil
}

// Apply runs the task inline, bypassing the queue. Prerun and postrun hooks
// still fire, so instrumented code behaves the same in both paths.
func (t *Task) Apply(ctx context.Context, args map[string]any) (any, error) {
	claimed := ports.Claimed{
		ID:    "inline-" + uuid.NewString(),
		Queue: t.def.Queue,
		Def: job.Definition{
			Function:    t.def.Name,
			Args:        args,
			EnqueueTime: time.Now().UTC(),
		},
		Try: 1,
	}

	if t.app.onJobPrerun != nil {
		if err := t.app.onJobPrerun(ctx, t.def, claimed); err != nil {
			return nil, err
		}
	}
	result, err := t.def.Handler(ctx, args)
	if t.app.onJobPostrun != nil {
		t.app.onJobPostrun(ctx, t.def, claimed, result, err)
	}
	return result, err
}

// Job is a handle to an enqueued job.
type Job struct {
	ID    string
	queue string
	app   *App
}

// Job returns a handle for an existing job id. An empty queue means the
// default queue.
func (a *App) Job(id, queue string) *Job {
	return &Job{ID: id, queue: queue, app: a}
}

// Status reports where the job currently is.
func (j *Job) Status(ctx context.Context) (job.Status, error) {
	q := j.app.Queue()
	if q == nil {
		return job.StatusNotFound, job.ErrNotConnected
	}
	return q.Status(ctx, j.queue, j.ID)
}

// Result returns the retained result. job.ErrNotFound until the job finishes
// (or after the retention window).
func (j *Job) Result(ctx context.Context) (job.Result, error) {
	q := j.app.Queue()
	if q == nil {
		return job.Result{}, job.ErrNotConnected
	}
	return q.GetResult(ctx, j.ID)
}

// Abort removes the job from the queue before a worker claims it.
func (j *Job) Abort(ctx context.Context) (bool, error) {
	q := j.app.Queue()
	if q == nil {
		return false, job.ErrNotConnected
	}
	return q.Abort(ctx, j.queue, j.ID)
}
