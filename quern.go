package quern

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"

	redisadapter "github.com/quern-dev/quern/pkg/adapters/redis"
	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/registry"
	"github.com/quern-dev/quern/pkg/worker"
)

// Version is the library version, reported by the CLI and the HTTP API.
const Version = "0.1.0"

// PrepublishFunc runs before a job is enqueued. Values added to meta travel
// with the job and are readable in the handler via worker.MetaFromContext.
// A non-nil error aborts the enqueue.
type PrepublishFunc func(ctx context.Context, meta map[string]any, task registry.Task, args map[string]any) error

// App is the high-level entry point for the quern library. It owns the task
// registry and the Redis connection, and hands out Task handles for enqueueing.
type App struct {
	mu        sync.Mutex
	settings  redisadapter.Settings
	client    backend.UniversalClient
	queue     *redisadapter.Queue
	connected bool

	reg               *registry.Registry
	cron              []worker.CronJob
	defaultJobExpires time.Duration
	defaultKeepResult time.Duration
	logger            *slog.Logger

	onJobPrerun     worker.PrerunFunc
	onJobPostrun    worker.PostrunFunc
	onJobPrepublish PrepublishFunc
}

// Option defines a functional option for configuring the App.
type Option func(*App)

// WithRedisSettings sets the connection settings used by Connect.
func WithRedisSettings(s redisadapter.Settings) Option {
	return func(a *App) { a.settings = s }
}

// WithClient injects an existing Redis client. The app is considered
// connected from the start; Connect becomes a no-op.
func WithClient(client backend.UniversalClient) Option {
	return func(a *App) { a.client = client }
}

// WithDefaultJobExpires sets how long unclaimed jobs stay runnable when
// neither the task nor the enqueue call says otherwise. Default one day.
func WithDefaultJobExpires(d time.Duration) Option {
	return func(a *App) { a.defaultJobExpires = d }
}

// WithDefaultKeepResult sets the default result retention. Default one hour.
func WithDefaultKeepResult(d time.Duration) Option {
	return func(a *App) { a.defaultKeepResult = d }
}

// WithLogger sets a custom structured logger for the app.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithOnJobPrerun registers a hook fired before each job execution.
func WithOnJobPrerun(fn worker.PrerunFunc) Option {
	return func(a *App) { a.onJobPrerun = fn }
}

// WithOnJobPostrun registers a hook fired after each job execution.
func WithOnJobPostrun(fn worker.PostrunFunc) Option {
	return func(a *App) { a.onJobPostrun = fn }
}

// WithOnJobPrepublish registers a hook fired before each enqueue.
func WithOnJobPrepublish(fn PrepublishFunc) Option {
	return func(a *App) { a.onJobPrepublish = fn }
}

// New creates an App. Tasks are added with RegisterTask; nothing talks to
// Redis until Connect (or immediately, when a client is injected).
func New(opts ...Option) (*App, error) {
	a := &App{
		settings:          redisadapter.DefaultSettings(),
		reg:               registry.New(),
		defaultJobExpires: 24 * time.Hour,
		defaultKeepResult: time.Hour,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.defaultJobExpires <= 0 {
		return nil, &job.ConfigError{Field: "default_job_expires", Reason: "must be positive"}
	}
	if a.defaultKeepResult < 0 {
		return nil, &job.ConfigError{Field: "default_keep_result", Reason: "must not be negative"}
	}

	if a.client != nil {
		a.queue = redisadapter.NewFromClient(a.client)
		a.connected = true
	}
	return a, nil
}

// Connect dials Redis using the configured settings. Calling Connect on a
// connected app is a no-op.
func (a *App) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}

	client, err := redisadapter.Connect(ctx, a.settings, a.logger)
	if err != nil {
		return err
	}
	a.client = client
	a.queue = redisadapter.NewFromClient(client)
	a.connected = true
	return nil
}

// Disconnect closes the Redis connection. Calling Disconnect on a
// disconnected app is a no-op.
func (a *App) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	a.connected = false
	return a.client.Close()
}

// Connected reports whether the app can reach Redis.
func (a *App) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// Queue exposes the underlying broker, nil before Connect.
func (a *App) Queue() *redisadapter.Queue {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue
}

// Registry exposes the task registry.
func (a *App) Registry() *registry.Registry {
	return a.reg
}

// RegisterTask adds a task and returns a handle for enqueueing it.
func (a *App) RegisterTask(task registry.Task) (*Task, error) {
	if err := a.reg.Add(task); err != nil {
		return nil, err
	}
	return &Task{app: a, def: task}, nil
}

// AddCronJobs schedules recurring jobs. Every entry must reference a task
// that is already registered.
func (a *App) AddCronJobs(jobs ...worker.CronJob) error {
	for _, cj := range jobs {
		if _, ok := a.reg.Get(cj.Task); !ok {
			return fmt.Errorf("cron job references unregistered task %q, call RegisterTask first", cj.Task)
		}
		if cj.Interval <= 0 {
			return fmt.Errorf("cron job for task %q needs a positive interval", cj.Task)
		}
	}
	a.cron = append(a.cron, jobs...)
	return nil
}

// NewWorker builds a worker pool wired to this app: its registry, hooks,
// cron schedule and Redis connection.
func (a *App) NewWorker(cfg worker.Config, opts ...worker.Option) (*worker.Pool, error) {
	a.mu.Lock()
	queue := a.queue
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return nil, job.ErrNotConnected
	}

	base := []worker.Option{
		worker.WithLogger(a.logger),
		worker.WithLocker(redisadapter.NewLocker(queue.Client(), "")),
		worker.WithHooks(worker.Hooks{
			OnJobPrerun:  a.onJobPrerun,
			OnJobPostrun: a.onJobPostrun,
		}),
		worker.WithCronJobs(a.cron...),
	}
	if cfg.KeepResult <= 0 {
		cfg.KeepResult = a.defaultKeepResult
	}
	return worker.New(queue, a.reg, cfg, append(base, opts...)...), nil
}
