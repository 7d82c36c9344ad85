package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/ports"
)

// claimScript atomically leases a job: it sets the in-progress marker and
// bumps the attempt counter. The job stays in the sorted set until Settle so
// a crashed worker's lease expires and the job becomes claimable again.
var claimScript = backend.NewScript(`
if redis.call('zscore', KEYS[1], ARGV[1]) == false then
	return false
end
if redis.call('exists', KEYS[3]) == 1 then
	return false
end
local payload = redis.call('get', KEYS[2])
if payload == false then
	redis.call('zrem', KEYS[1], ARGV[1])
	redis.call('del', KEYS[4])
	return 'expired'
end
redis.call('set', KEYS[3], ARGV[2], 'px', ARGV[3])
local try = redis.call('incr', KEYS[4])
redis.call('pexpire', KEYS[4], ARGV[4])
return {payload, try}
`)

// ClaimDue leases up to limit due jobs to this worker. See ports.Broker.
func (q *Queue) ClaimDue(ctx context.Context, queue string, limit int, now time.Time) ([]ports.Claimed, error) {
	if queue == "" {
		queue = job.DefaultQueue
	}
	ids, err := q.client.ZRangeByScore(ctx, queue, &backend.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due jobs: %w", err)
	}

	claimed := make([]ports.Claimed, 0, len(ids))
	for _, id := range ids {
		keys := []string{queue, job.Key(id), job.InProgressKey(id), job.RetryKey(id)}
		argv := []any{
			id,
			strconv.FormatInt(now.UnixMilli(), 10),
			strconv.FormatInt(q.inProgressTTL.Milliseconds(), 10),
			strconv.FormatInt(job.ExpiresExtra.Milliseconds(), 10),
		}
		res, err := claimScript.Run(ctx, q.client, keys, argv...).Result()
		if errors.Is(err, backend.Nil) {
			// Leased by another worker, or settled since the range read.
			continue
		}
		if err != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", id, err)
		}

		switch v := res.(type) {
		case string:
			// Payload expired before anyone ran the job; drop it.
			continue
		case []any:
			payload, _ := v[0].(string)
			try, _ := v[1].(int64)
			def, err := job.Decode([]byte(payload))
			if err != nil {
				return claimed, fmt.Errorf("corrupt payload for job %s: %w", id, err)
			}
			def.JobTry = int(try)
			claimed = append(claimed, ports.Claimed{
				ID:    id,
				Queue: queue,
				Def:   def,
				Try:   int(try),
			})
		default:
			return claimed, fmt.Errorf("unexpected claim reply for job %s: %T", id, res)
		}
	}
	return claimed, nil
}

// Requeue schedules a claimed job to run again at the given time.
func (q *Queue) Requeue(ctx context.Context, queue, id string, at time.Time) error {
	if queue == "" {
		queue = job.DefaultQueue
	}
	pipe := q.client.Pipeline()
	pipe.ZAdd(ctx, queue, backend.Z{Score: float64(at.UnixMilli()), Member: id})
	// Keep the payload readable until well past the retry time.
	pipe.PExpireAt(ctx, job.Key(id), at.Add(job.ExpiresExtra))
	pipe.Del(ctx, job.InProgressKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", id, err)
	}
	return nil
}

// Settle finishes a claimed job and retains its result for keep.
func (q *Queue) Settle(ctx context.Context, id string, res job.Result, keep time.Duration) error {
	pipe := q.client.Pipeline()
	if keep > 0 {
		data, err := job.EncodeResult(res)
		if err != nil {
			return err
		}
		pipe.Set(ctx, job.ResultKey(id), data, keep)
	}
	queue := res.Queue
	if queue == "" {
		queue = job.DefaultQueue
	}
	pipe.ZRem(ctx, queue, id)
	pipe.Del(ctx, job.Key(id), job.InProgressKey(id), job.RetryKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to settle job %s: %w", id, err)
	}
	return nil
}

// abortScript removes a job only while nobody holds a lease on it.
var abortScript = backend.NewScript(`
if redis.call('exists', KEYS[2]) == 1 then
	return 0
end
if redis.call('zrem', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('del', KEYS[3], KEYS[4])
return 1
`)

// Abort removes a job from the queue before it is claimed.
func (q *Queue) Abort(ctx context.Context, queue, id string) (bool, error) {
	if queue == "" {
		queue = job.DefaultQueue
	}
	keys := []string{queue, job.InProgressKey(id), job.Key(id), job.RetryKey(id)}
	removed, err := abortScript.Run(ctx, q.client, keys, id).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to abort job %s: %w", id, err)
	}
	return removed == 1, nil
}

// Status reports where a job currently is. See ports.Broker.
func (q *Queue) Status(ctx context.Context, queue, id string) (job.Status, error) {
	if queue == "" {
		queue = job.DefaultQueue
	}
	if n, err := q.client.Exists(ctx, job.ResultKey(id)).Result(); err != nil {
		return job.StatusNotFound, err
	} else if n > 0 {
		return job.StatusComplete, nil
	}
	if n, err := q.client.Exists(ctx, job.InProgressKey(id)).Result(); err != nil {
		return job.StatusNotFound, err
	} else if n > 0 {
		return job.StatusInProgress, nil
	}

	score, err := q.client.ZScore(ctx, queue, id).Result()
	if errors.Is(err, backend.Nil) {
		return job.StatusNotFound, nil
	}
	if err != nil {
		return job.StatusNotFound, err
	}
	if int64(score) > q.clock().UnixMilli() {
		return job.StatusDeferred, nil
	}
	return job.StatusQueued, nil
}
