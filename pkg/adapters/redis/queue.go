package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/ports"
)

// Queue implements ports.Broker and ports.Results on Redis.
//
// Queued jobs live in a sorted set scored by their scheduled start (unix ms)
// and stay there until settled; a claim is a lease, not a removal. The
// payload sits under its own key with an expiry, so a job that nobody picks
// up disappears on its own.
type Queue struct {
	client        backend.UniversalClient
	inProgressTTL time.Duration
	clock         func() time.Time
}

type Option func(*Queue)

// WithInProgressTTL sets how long a claim lease survives without the worker
// settling the job. After that the job is considered abandoned and becomes
// claimable again.
func WithInProgressTTL(ttl time.Duration) Option {
	return func(q *Queue) {
		q.inProgressTTL = ttl
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(q *Queue) {
		q.clock = clock
	}
}

// New creates a new Redis queue with options.
func New(address, password string, db int, opts ...Option) *Queue {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis queue from an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Queue {
	q := &Queue{
		client:        client,
		inProgressTTL: 5 * time.Minute,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Client exposes the underlying client for server info and health checks.
func (q *Queue) Client() backend.UniversalClient {
	return q.client
}

// Close closes the redis client.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue publishes a job. See ports.Broker.
func (q *Queue) Enqueue(ctx context.Context, req ports.EnqueueRequest) (string, error) {
	if req.Function == "" {
		return "", fmt.Errorf("enqueue: function name is required")
	}
	if !req.DeferUntil.IsZero() && req.DeferBy != 0 {
		return "", job.ErrDeferConflict
	}

	id := req.JobID
	if id == "" {
		id = uuid.NewString()
	}
	queue := req.Queue
	if queue == "" {
		queue = job.DefaultQueue
	}
	jobKey := job.Key(id)

	err := q.client.Watch(ctx, func(tx *backend.Tx) error {
		exists, err := tx.Exists(ctx, jobKey, job.ResultKey(id)).Result()
		if err != nil {
			return fmt.Errorf("failed to check job existence: %w", err)
		}
		if exists > 0 {
			return job.ErrDuplicate
		}

		enqueueTime := q.clock()
		enqueueMs := enqueueTime.UnixMilli()

		score := enqueueMs
		switch {
		case !req.DeferUntil.IsZero():
			score = req.DeferUntil.UnixMilli()
		case req.DeferBy != 0:
			score = enqueueMs + req.DeferBy.Milliseconds()
		}

		// The payload must outlive the scheduled start so a late worker can
		// still read it.
		expires := req.Expires
		if expires == 0 {
			expires = time.Duration(score-enqueueMs)*time.Millisecond + job.ExpiresExtra
		}

		payload, err := job.Encode(job.Definition{
			Function:    req.Function,
			Args:        req.Args,
			Meta:        req.Meta,
			EnqueueTime: enqueueTime.UTC(),
		})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, jobKey, payload, expires)
			pipe.ZAdd(ctx, queue, backend.Z{Score: float64(score), Member: id})
			return nil
		})
		return err
	}, jobKey)

	if err != nil {
		// The watched key changed under us: somebody enqueued the same id
		// between the existence check and the transaction.
		if errors.Is(err, backend.TxFailedErr) {
			return "", job.ErrDuplicate
		}
		return "", err
	}
	return id, nil
}
