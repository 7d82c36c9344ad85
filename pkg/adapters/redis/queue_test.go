package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quern-dev/quern/internal/testutils"
	redisadapter "github.com/quern-dev/quern/pkg/adapters/redis"
	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/ports"
)

func newTestQueue(t *testing.T, at time.Time) *redisadapter.Queue {
	t.Helper()
	_, client := testutils.SetupRedis(t)
	return redisadapter.NewFromClient(client, redisadapter.WithClock(func() time.Time { return at }))
}

func TestQueue_EnqueueAndClaim(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, ports.EnqueueRequest{
		Function: "send_email",
		Args:     map[string]any{"user_id": float64(42)},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status, err := q.Status(ctx, "", id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, status)

	count, err := q.PendingCount(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	claimed, err := q.ClaimDue(ctx, "", 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
	assert.Equal(t, "send_email", claimed[0].Def.Function)
	assert.Equal(t, map[string]any{"user_id": float64(42)}, claimed[0].Def.Args)
	assert.Equal(t, 1, claimed[0].Try)

	// A claim is a lease: the job is marked in progress but stays in the
	// queue until settled.
	status, err = q.Status(ctx, "", id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusInProgress, status)

	count, err = q.PendingCount(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	again, err := q.ClaimDue(ctx, "", 10, now)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestQueue_ExpiredLeaseIsReclaimable(t *testing.T) {
	now := time.Now()
	mr, client := testutils.SetupRedis(t)
	q := redisadapter.NewFromClient(client,
		redisadapter.WithClock(func() time.Time { return now }),
		redisadapter.WithInProgressTTL(50*time.Millisecond))
	ctx := context.Background()

	id, err := q.Enqueue(ctx, ports.EnqueueRequest{Function: "send_email"})
	require.NoError(t, err)

	claimed, err := q.ClaimDue(ctx, "", 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Try)

	// Held lease: nobody else gets the job.
	again, err := q.ClaimDue(ctx, "", 1, now)
	require.NoError(t, err)
	assert.Empty(t, again)

	// The worker crashes: its lease expires and the job runs again.
	mr.FastForward(100 * time.Millisecond)
	claimed, err = q.ClaimDue(ctx, "", 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
	assert.Equal(t, 2, claimed[0].Try)
}

func TestQueue_DuplicateJobID(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, ports.EnqueueRequest{Function: "sync", JobID: "nightly"})
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, ports.EnqueueRequest{Function: "sync", JobID: "nightly"})
	assert.ErrorIs(t, err, job.ErrDuplicate)
}

func TestQueue_DuplicateAgainstRetainedResult(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, ports.EnqueueRequest{Function: "sync", JobID: "nightly"})
	require.NoError(t, err)

	claimed, err := q.ClaimDue(ctx, "", 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	res := job.Result{Definition: claimed[0].Def, JobID: "nightly", Success: true}
	require.NoError(t, q.Settle(ctx, "nightly", res, time.Hour))

	// The retained result still blocks re-enqueue of the same id.
	_, err = q.Enqueue(ctx, ports.EnqueueRequest{Function: "sync", JobID: "nightly"})
	assert.ErrorIs(t, err, job.ErrDuplicate)
}

func TestQueue_DeferConflict(t *testing.T) {
	q := newTestQueue(t, time.Now())

	_, err := q.Enqueue(context.Background(), ports.EnqueueRequest{
		Function:   "sync",
		DeferUntil: time.Now().Add(time.Hour),
		DeferBy:    time.Minute,
	})
	assert.ErrorIs(t, err, job.ErrDeferConflict)
}

func TestQueue_DeferredJob(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, ports.EnqueueRequest{
		Function: "digest",
		DeferBy:  time.Minute,
	})
	require.NoError(t, err)

	status, err := q.Status(ctx, "", id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusDeferred, status)

	// Not due yet.
	claimed, err := q.ClaimDue(ctx, "", 10, now)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// Due after the deferral elapses.
	claimed, err = q.ClaimDue(ctx, "", 10, now.Add(61*time.Second))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
}

func TestQueue_RequeueIncrementsTry(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, ports.EnqueueRequest{Function: "flaky"})
	require.NoError(t, err)

	claimed, err := q.ClaimDue(ctx, "", 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Try)

	require.NoError(t, q.Requeue(ctx, "", id, now.Add(time.Millisecond)))

	claimed, err = q.ClaimDue(ctx, "", 1, now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Try)
}

func TestQueue_SettleRetainsResult(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, ports.EnqueueRequest{Function: "sum"})
	require.NoError(t, err)
	claimed, err := q.ClaimDue(ctx, "", 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	res := job.Result{
		Definition: claimed[0].Def,
		JobID:      id,
		Success:    true,
		Value:      float64(7),
		StartTime:  now.UTC(),
		FinishTime: now.Add(time.Second).UTC(),
	}
	require.NoError(t, q.Settle(ctx, id, res, time.Hour))

	status, err := q.Status(ctx, "", id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusComplete, status)

	got, err := q.GetResult(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, float64(7), got.Value)
	assert.Equal(t, "sum", got.Function)

	all, err := q.AllResults(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].JobID)

	require.NoError(t, q.DeleteResult(ctx, id))
	_, err = q.GetResult(ctx, id)
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestQueue_SettleWithoutRetention(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, ports.EnqueueRequest{Function: "fire_and_forget"})
	require.NoError(t, err)
	claimed, err := q.ClaimDue(ctx, "", 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, q.Settle(ctx, id, job.Result{JobID: id, Success: true}, 0))

	status, err := q.Status(ctx, "", id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusNotFound, status)
}

func TestQueue_Abort(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, ports.EnqueueRequest{Function: "sync"})
	require.NoError(t, err)

	aborted, err := q.Abort(ctx, "", id)
	require.NoError(t, err)
	assert.True(t, aborted)

	status, err := q.Status(ctx, "", id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusNotFound, status)

	// Aborting again reports false.
	aborted, err = q.Abort(ctx, "", id)
	require.NoError(t, err)
	assert.False(t, aborted)
}

func TestQueue_AbortDoesNotTouchLeasedJob(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, ports.EnqueueRequest{Function: "sync"})
	require.NoError(t, err)

	claimed, err := q.ClaimDue(ctx, "", 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	aborted, err := q.Abort(ctx, "", id)
	require.NoError(t, err)
	assert.False(t, aborted)

	status, err := q.Status(ctx, "", id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusInProgress, status)
}

func TestQueue_QueuedJobs(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, ports.EnqueueRequest{Function: "first", JobID: "a"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, ports.EnqueueRequest{Function: "second", JobID: "b", DeferBy: time.Minute})
	require.NoError(t, err)

	jobs, err := q.QueuedJobs(ctx, "")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, "first", jobs[0].Def.Function)
	assert.Equal(t, "b", jobs[1].ID)
	assert.Greater(t, jobs[1].Def.Score, jobs[0].Def.Score)
}

func TestQueue_CustomQueue(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, ports.EnqueueRequest{Function: "index", Queue: "quern:low"})
	require.NoError(t, err)

	// Nothing in the default queue.
	claimed, err := q.ClaimDue(ctx, "", 10, now)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = q.ClaimDue(ctx, "quern:low", 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
	assert.Equal(t, "quern:low", claimed[0].Queue)
}

func TestQueue_Heartbeats(t *testing.T) {
	now := time.Now()
	q := newTestQueue(t, now)
	ctx := context.Background()

	require.NoError(t, q.Heartbeat(ctx, "worker-1", time.Minute))
	require.NoError(t, q.Heartbeat(ctx, "worker-2", time.Minute))

	beats, err := q.Heartbeats(ctx)
	require.NoError(t, err)
	assert.Len(t, beats, 2)
	assert.Contains(t, beats, "worker-1")
	assert.Contains(t, beats, "worker-2")
}
