package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quern-dev/quern/internal/logging"
	"github.com/quern-dev/quern/internal/testutils"
	redisadapter "github.com/quern-dev/quern/pkg/adapters/redis"
	"github.com/quern-dev/quern/pkg/registry"
	"github.com/quern-dev/quern/pkg/worker"
)

func TestPool_CronEnqueuesAndRuns(t *testing.T) {
	_, client := testutils.SetupRedis(t)
	q := redisadapter.NewFromClient(client)
	reg := registry.New()

	var runs atomic.Int32
	require.NoError(t, reg.Add(registry.Task{
		Name: "tick",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			runs.Add(1)
			return nil, nil
		},
	}))

	// No locker here: miniredis TTLs only advance via FastForward, which
	// would pin the cron lock forever. Lock coordination is covered below.
	pool := worker.New(q, reg, testConfig(),
		worker.WithLogger(logging.NewNop()),
		worker.WithCronJobs(worker.CronJob{
			Task:         "tick",
			Interval:     50 * time.Millisecond,
			RunAtStartup: true,
		}))
	startPool(t, pool)

	require.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPool_CronRejectsUnregisteredTask(t *testing.T) {
	_, client := testutils.SetupRedis(t)
	q := redisadapter.NewFromClient(client)
	reg := registry.New()

	pool := worker.New(q, reg, testConfig(),
		worker.WithLogger(logging.NewNop()),
		worker.WithCronJobs(worker.CronJob{Task: "ghost", Interval: time.Second}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := pool.Run(ctx)
	assert.ErrorContains(t, err, "unregistered task")
}

func TestPool_CronLockPreventsDoubleFiring(t *testing.T) {
	_, client := testutils.SetupRedis(t)
	locker := redisadapter.NewLocker(client, "")
	ctx := context.Background()

	// The scheduler's lock key: the first holder wins the tick, the TTL
	// outlives the interval so nobody else fires it.
	unlock, err := locker.TryLock(ctx, "cron:digest", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, unlock)

	second, err := locker.TryLock(ctx, "cron:digest", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second)
}
