package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/ports"
)

// QueuedJobs lists jobs currently sitting in the queue, mostly useful when
// testing and for the HTTP introspection API.
func (q *Queue) QueuedJobs(ctx context.Context, queue string) ([]ports.QueuedJob, error) {
	if queue == "" {
		queue = job.DefaultQueue
	}
	members, err := q.client.ZRangeWithScores(ctx, queue, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list queue %s: %w", queue, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = job.Key(m.Member.(string))
	}
	payloads, err := q.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job payloads: %w", err)
	}

	jobs := make([]ports.QueuedJob, 0, len(members))
	for i, m := range members {
		raw, ok := payloads[i].(string)
		if !ok {
			// Payload expired but the queue entry lingers; skip it.
			continue
		}
		def, err := job.Decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		def.Score = int64(m.Score)
		jobs = append(jobs, ports.QueuedJob{ID: m.Member.(string), Def: def})
	}
	return jobs, nil
}

// PendingCount returns the number of jobs in the queue.
func (q *Queue) PendingCount(ctx context.Context, queue string) (int64, error) {
	if queue == "" {
		queue = job.DefaultQueue
	}
	return q.client.ZCard(ctx, queue).Result()
}

// GetResult retrieves the retained result for a job id.
func (q *Queue) GetResult(ctx context.Context, id string) (job.Result, error) {
	raw, err := q.client.Get(ctx, job.ResultKey(id)).Result()
	if errors.Is(err, backend.Nil) {
		return job.Result{}, job.ErrNotFound
	}
	if err != nil {
		return job.Result{}, fmt.Errorf("failed to get result for job %s: %w", id, err)
	}
	return job.DecodeResult([]byte(raw))
}

// AllResults returns every retained result, ordered by enqueue time.
func (q *Queue) AllResults(ctx context.Context) ([]job.Result, error) {
	var results []job.Result
	iter := q.client.Scan(ctx, 0, job.ResultKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), job.ResultKeyPrefix)
		res, err := q.GetResult(ctx, id)
		if errors.Is(err, job.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan results: %w", err)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].EnqueueTime.Before(results[j].EnqueueTime)
	})
	return results, nil
}

// DeleteResult drops a retained result.
func (q *Queue) DeleteResult(ctx context.Context, id string) error {
	return q.client.Del(ctx, job.ResultKey(id)).Err()
}

// Heartbeat records that a worker instance is alive for the given ttl.
func (q *Queue) Heartbeat(ctx context.Context, workerID string, ttl time.Duration) error {
	key := job.HealthCheckPrefix + workerID
	return q.client.Set(ctx, key, q.clock().UTC().Format(time.RFC3339), ttl).Err()
}

// Heartbeats lists worker instances with a live heartbeat.
func (q *Queue) Heartbeats(ctx context.Context) (map[string]string, error) {
	beats := make(map[string]string)
	iter := q.client.Scan(ctx, 0, job.HealthCheckPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := q.client.Get(ctx, key).Result()
		if errors.Is(err, backend.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		beats[strings.TrimPrefix(key, job.HealthCheckPrefix)] = val
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan heartbeats: %w", err)
	}
	return beats, nil
}
