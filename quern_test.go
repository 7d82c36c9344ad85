package quern_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quern-dev/quern"
	"github.com/quern-dev/quern/internal/logging"
	"github.com/quern-dev/quern/internal/testutils"
	redisadapter "github.com/quern-dev/quern/pkg/adapters/redis"
	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/ports"
	"github.com/quern-dev/quern/pkg/registry"
	"github.com/quern-dev/quern/pkg/worker"
)

func echoHandler(ctx context.Context, args map[string]any) (any, error) {
	return args, nil
}

func newConnectedApp(t *testing.T, opts ...quern.Option) *quern.App {
	t.Helper()
	_, client := testutils.SetupRedis(t)
	app, err := quern.New(append([]quern.Option{
		quern.WithClient(client),
		quern.WithLogger(logging.NewNop()),
	}, opts...)...)
	require.NoError(t, err)
	return app
}

func TestApp_DelayRequiresConnection(t *testing.T) {
	app, err := quern.New(quern.WithLogger(logging.NewNop()))
	require.NoError(t, err)

	task, err := app.RegisterTask(registry.Task{Name: "send_email", Handler: echoHandler})
	require.NoError(t, err)

	_, err = task.Delay(context.Background(), nil)
	assert.ErrorIs(t, err, job.ErrNotConnected)
}

func TestApp_ConfigValidation(t *testing.T) {
	_, err := quern.New(quern.WithDefaultJobExpires(-time.Hour))
	var cfgErr *job.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "default_job_expires", cfgErr.Field)
}

func TestApp_DelayAndIntrospect(t *testing.T) {
	app := newConnectedApp(t)
	ctx := context.Background()

	task, err := app.RegisterTask(registry.Task{Name: "send_email", Handler: echoHandler})
	require.NoError(t, err)

	j, err := task.Delay(ctx, map[string]any{"user_id": float64(42)}, quern.WithJobID("welcome-42"))
	require.NoError(t, err)
	assert.Equal(t, "welcome-42", j.ID)

	status, err := j.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, status)

	queued, err := app.Queue().QueuedJobs(ctx, "")
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "send_email", queued[0].Def.Function)

	// The pinned id enforces uniqueness.
	_, err = task.Delay(ctx, nil, quern.WithJobID("welcome-42"))
	assert.ErrorIs(t, err, job.ErrDuplicate)

	aborted, err := j.Abort(ctx)
	require.NoError(t, err)
	assert.True(t, aborted)
}

func TestApp_DelayRoutesToTaskQueue(t *testing.T) {
	app := newConnectedApp(t)
	ctx := context.Background()

	task, err := app.RegisterTask(registry.Task{
		Name:    "index",
		Queue:   "quern:low",
		Handler: echoHandler,
	})
	require.NoError(t, err)

	_, err = task.Delay(ctx, nil)
	require.NoError(t, err)

	count, err := app.Queue().PendingCount(ctx, "quern:low")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestApp_PrepublishMetadata(t *testing.T) {
	app := newConnectedApp(t, quern.WithOnJobPrepublish(
		func(ctx context.Context, meta map[string]any, task registry.Task, args map[string]any) error {
			meta["trace_id"] = "abc"
			return nil
		}))
	ctx := context.Background()

	task, err := app.RegisterTask(registry.Task{Name: "traced", Handler: echoHandler})
	require.NoError(t, err)

	_, err = task.Delay(ctx, nil)
	require.NoError(t, err)

	queued, err := app.Queue().QueuedJobs(ctx, "")
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, map[string]any{"trace_id": "abc"}, queued[0].Def.Meta)
}

func TestApp_PrepublishCanAbortEnqueue(t *testing.T) {
	rejected := errors.New("tenant over quota")
	app := newConnectedApp(t, quern.WithOnJobPrepublish(
		func(ctx context.Context, meta map[string]any, task registry.Task, args map[string]any) error {
			return rejected
		}))

	task, err := app.RegisterTask(registry.Task{Name: "blocked", Handler: echoHandler})
	require.NoError(t, err)

	_, err = task.Delay(context.Background(), nil)
	assert.ErrorIs(t, err, rejected)
}

func TestApp_ConnectDisconnectIdempotent(t *testing.T) {
	mr, _ := testutils.SetupRedis(t)
	settings := redisadapter.DefaultSettings()
	settings.Addr = mr.Addr()

	app, err := quern.New(
		quern.WithRedisSettings(settings),
		quern.WithLogger(logging.NewNop()))
	require.NoError(t, err)
	assert.False(t, app.Connected())

	ctx := context.Background()
	require.NoError(t, app.Connect(ctx))
	require.NoError(t, app.Connect(ctx))
	assert.True(t, app.Connected())

	require.NoError(t, app.Disconnect())
	require.NoError(t, app.Disconnect())
	assert.False(t, app.Connected())
}

func TestApp_AddCronJobs(t *testing.T) {
	app := newConnectedApp(t)

	err := app.AddCronJobs(worker.CronJob{Task: "ghost", Interval: time.Minute})
	assert.ErrorContains(t, err, "unregistered task")

	_, err = app.RegisterTask(registry.Task{Name: "digest", Handler: echoHandler})
	require.NoError(t, err)

	assert.Error(t, app.AddCronJobs(worker.CronJob{Task: "digest"}))
	assert.NoError(t, app.AddCronJobs(worker.CronJob{Task: "digest", Interval: time.Minute}))
}

func TestApp_ApplyRunsInline(t *testing.T) {
	var prerun, postrun int
	app := newConnectedApp(t,
		quern.WithOnJobPrerun(func(ctx context.Context, task registry.Task, claimed ports.Claimed) error {
			prerun++
			return nil
		}),
		quern.WithOnJobPostrun(func(ctx context.Context, task registry.Task, claimed ports.Claimed, result any, err error) {
			postrun++
		}))

	task, err := app.RegisterTask(registry.Task{Name: "inline", Handler: echoHandler})
	require.NoError(t, err)

	result, err := task.Apply(context.Background(), map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, result)
	assert.Equal(t, 1, prerun)
	assert.Equal(t, 1, postrun)
}

func TestApp_WorkerEndToEnd(t *testing.T) {
	app := newConnectedApp(t)
	ctx := context.Background()

	task, err := app.RegisterTask(registry.Task{Name: "echo", Handler: echoHandler})
	require.NoError(t, err)

	cfg := worker.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	pool, err := app.NewWorker(cfg)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pool.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	j, err := task.Delay(ctx, map[string]any{"n": float64(1)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := j.Result(ctx)
		return err == nil && res.Success
	}, 3*time.Second, 10*time.Millisecond)
}

func TestApp_NewWorkerRequiresConnection(t *testing.T) {
	app, err := quern.New(quern.WithLogger(logging.NewNop()))
	require.NoError(t, err)

	_, err = app.NewWorker(worker.DefaultConfig())
	assert.ErrorIs(t, err, job.ErrNotConnected)
}
