package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/ports"
	"github.com/quern-dev/quern/pkg/registry"
)

// Broker is what the pool needs from the queue backend.
type Broker interface {
	ports.Broker
	Heartbeat(ctx context.Context, workerID string, ttl time.Duration) error
}

// PrerunFunc runs before a job executes. A non-nil error fails the attempt
// (the job is retried or failed like a handler error).
type PrerunFunc func(ctx context.Context, task registry.Task, claimed ports.Claimed) error

// PostrunFunc runs after a job executes, successful or not.
type PostrunFunc func(ctx context.Context, task registry.Task, claimed ports.Claimed, result any, err error)

// Hooks bundles the lifecycle callbacks fired around job execution.
type Hooks struct {
	OnJobPrerun  PrerunFunc
	OnJobPostrun PostrunFunc
}

// Config holds configuration for the worker pool.
type Config struct {
	// ID identifies this worker instance in heartbeats and logs.
	// Defaults to hostname plus a random suffix.
	ID string

	// Concurrency determines how many jobs run at once.
	Concurrency int

	// PollInterval is how often the queue is polled for due jobs.
	PollInterval time.Duration

	// Queues lists the queues this worker consumes. Defaults to the default queue.
	Queues []string

	// MaxTries caps execution attempts for tasks that don't set their own.
	MaxTries int

	// RetryBackoff is the base delay before a retry; the delay grows
	// linearly with the attempt number.
	RetryBackoff time.Duration

	// KeepResult is the default result retention for tasks that don't set their own.
	KeepResult time.Duration

	// HeartbeatInterval is how often the worker refreshes its liveness key.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		PollInterval:      500 * time.Millisecond,
		MaxTries:          5,
		RetryBackoff:      time.Second,
		KeepResult:        time.Hour,
		HeartbeatInterval: 10 * time.Second,
	}
}

// Pool polls queues for due jobs and executes registered task handlers.
type Pool struct {
	broker  Broker
	locker  ports.DistributedLocker
	reg     *registry.Registry
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	hooks   Hooks
	cron    []CronJob
	clock   func() time.Time

	sem chan struct{}
	wg  sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// WithLocker enables distributed cron coordination across instances.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(p *Pool) { p.locker = locker }
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks Hooks) Option {
	return func(p *Pool) { p.hooks = hooks }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithCronJobs schedules recurring jobs on this pool.
func WithCronJobs(jobs ...CronJob) Option {
	return func(p *Pool) { p.cron = append(p.cron, jobs...) }
}

// WithClock overrides the time source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Pool) { p.clock = clock }
}

// New creates a worker pool consuming from the broker.
func New(broker Broker, reg *registry.Registry, cfg Config, opts ...Option) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = []string{job.DefaultQueue}
	}
	if cfg.ID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		cfg.ID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	p := &Pool{
		broker: broker,
		reg:    reg,
		cfg:    cfg,
		logger: slog.Default(),
		clock:  time.Now,
		sem:    make(chan struct{}, cfg.Concurrency),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the worker instance identifier.
func (p *Pool) ID() string { return p.cfg.ID }

// Run polls for jobs until the context is canceled, then drains in-flight
// jobs before returning.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker started",
		"worker_id", p.cfg.ID,
		"concurrency", p.cfg.Concurrency,
		"queues", p.cfg.Queues)

	for _, cj := range p.cron {
		if _, ok := p.reg.Get(cj.Task); !ok {
			return fmt.Errorf("cron job %q references unregistered task %q", cj.name(), cj.Task)
		}
	}
	p.startCron(ctx)

	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(p.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	p.beat(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping, draining in-flight jobs", "worker_id", p.cfg.ID)
			p.wg.Wait()
			p.logger.Info("worker stopped", "worker_id", p.cfg.ID)
			return ctx.Err()
		case <-heartbeat.C:
			p.beat(ctx)
		case <-poll.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Pool) beat(ctx context.Context) {
	// Heartbeat survives two intervals so a single missed tick is not a flap.
	if err := p.broker.Heartbeat(ctx, p.cfg.ID, 2*p.cfg.HeartbeatInterval); err != nil && ctx.Err() == nil {
		p.logger.Warn("failed to write heartbeat", "err", err)
	}
}

func (p *Pool) pollOnce(ctx context.Context) {
	for _, queue := range p.cfg.Queues {
		free := p.cfg.Concurrency - len(p.sem)
		if free <= 0 {
			return
		}
		claimed, err := p.broker.ClaimDue(ctx, queue, free, p.clock())
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("failed to claim jobs", "queue", queue, "err", err)
			}
			continue
		}
		if p.metrics != nil {
			if depth, err := p.broker.PendingCount(ctx, queue); err == nil {
				p.metrics.SetQueueDepth(queue, depth)
			}
		}
		for _, c := range claimed {
			p.sem <- struct{}{}
			p.wg.Add(1)
			go func(c ports.Claimed) {
				defer p.wg.Done()
				defer func() { <-p.sem }()
				p.process(ctx, c)
			}(c)
		}
	}
}

// process runs one claimed job through its full lifecycle: hooks, handler,
// retry or settle.
func (p *Pool) process(ctx context.Context, c ports.Claimed) {
	start := p.clock()
	log := p.logger.With("job_id", c.ID, "function", c.Def.Function, "try", c.Try)

	// Settlement must survive the run context: a job finishing while the
	// pool drains still records its outcome or gets requeued.
	settleCtx := context.WithoutCancel(ctx)

	task, ok := p.reg.Get(c.Def.Function)
	if !ok {
		log.Error("job references unregistered task")
		p.settle(settleCtx, c, task, nil, fmt.Errorf("task not registered: %s", c.Def.Function), start)
		return
	}

	maxTries := task.MaxTries
	if maxTries <= 0 {
		maxTries = p.cfg.MaxTries
	}

	execCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}
	execCtx = withMeta(execCtx, c.Def.Meta)

	result, err := p.execute(execCtx, task, c)

	if p.hooks.OnJobPostrun != nil {
		p.hooks.OnJobPostrun(ctx, task, c, result, err)
	}
	if p.metrics != nil {
		p.metrics.ObserveDuration(task.Name, p.clock().Sub(start))
	}

	if err == nil {
		log.Info("job complete", "duration", p.clock().Sub(start))
		p.settle(settleCtx, c, task, result, nil, start)
		return
	}

	if c.Try < maxTries {
		delay := time.Duration(c.Try) * p.cfg.RetryBackoff
		log.Warn("job failed, retrying", "err", err, "retry_in", delay)
		if p.metrics != nil {
			p.metrics.CountJob(task.Name, "retry")
		}
		if rqErr := p.broker.Requeue(settleCtx, c.Queue, c.ID, p.clock().Add(delay)); rqErr != nil {
			log.Error("failed to requeue job", "err", rqErr)
		}
		return
	}

	log.Error("job failed permanently", "err", err, "max_tries", maxTries)
	p.settle(settleCtx, c, task, nil, err, start)
}

// execute fires the prerun hook and the handler, converting panics to errors.
func (p *Pool) execute(ctx context.Context, task registry.Task, c ports.Claimed) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	if p.hooks.OnJobPrerun != nil {
		if err := p.hooks.OnJobPrerun(ctx, task, c); err != nil {
			return nil, fmt.Errorf("prerun hook rejected job: %w", err)
		}
	}
	return task.Handler(ctx, c.Def.Args)
}

func (p *Pool) settle(ctx context.Context, c ports.Claimed, task registry.Task, result any, execErr error, start time.Time) {
	res := job.Result{
		Definition: c.Def,
		JobID:      c.ID,
		Queue:      c.Queue,
		Success:    execErr == nil,
		Value:      result,
		StartTime:  start.UTC(),
		FinishTime: p.clock().UTC(),
	}
	if execErr != nil {
		res.Error = execErr.Error()
	}

	keep := task.KeepResult
	if keep <= 0 {
		keep = p.cfg.KeepResult
	}

	if err := p.broker.Settle(ctx, c.ID, res, keep); err != nil {
		p.logger.Error("failed to settle job", "job_id", c.ID, "err", err)
		return
	}
	if p.metrics != nil {
		status := "success"
		if execErr != nil {
			status = "failure"
		}
		p.metrics.CountJob(c.Def.Function, status)
	}
}

type metaKey struct{}

func withMeta(ctx context.Context, meta map[string]any) context.Context {
	if len(meta) == 0 {
		return ctx
	}
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns metadata attached by the prepublish hook, if any.
func MetaFromContext(ctx context.Context) map[string]any {
	meta, _ := ctx.Value(metaKey{}).(map[string]any)
	return meta
}
