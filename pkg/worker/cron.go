package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/ports"
)

// CronJob schedules a registered task to be enqueued on a fixed interval.
type CronJob struct {
	// Name identifies the schedule. Defaults to the task name.
	Name string
	// Task is the registered task to enqueue. Must exist in the registry.
	Task string
	// Args is passed to every enqueued job.
	Args map[string]any
	// Interval between firings. Must be positive.
	Interval time.Duration
	// Queue overrides the task's queue for scheduled runs.
	Queue string
	// RunAtStartup fires the job once immediately when the pool starts.
	RunAtStartup bool
}

func (c CronJob) name() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Task
}

// startCron launches one scheduling goroutine per cron entry. When a locker
// is configured, a tick fires on exactly one worker instance: the lock TTL
// spans the interval and is deliberately never released.
func (p *Pool) startCron(ctx context.Context) {
	for _, entry := range p.cron {
		if entry.Interval <= 0 {
			p.logger.Warn("skipping cron job with non-positive interval", "cron", entry.name())
			continue
		}
		p.wg.Add(1)
		go func(entry CronJob) {
			defer p.wg.Done()
			p.runCron(ctx, entry)
		}(entry)
	}
}

func (p *Pool) runCron(ctx context.Context, entry CronJob) {
	ticker := time.NewTicker(entry.Interval)
	defer ticker.Stop()

	if entry.RunAtStartup {
		p.fireCron(ctx, entry)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fireCron(ctx, entry)
		}
	}
}

func (p *Pool) fireCron(ctx context.Context, entry CronJob) {
	if p.locker != nil {
		unlock, err := p.locker.TryLock(ctx, "cron:"+entry.name(), entry.Interval)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("cron lock error", "cron", entry.name(), "err", err)
			}
			return
		}
		if unlock == nil {
			// Another instance fired this tick.
			return
		}
	}

	queue := entry.Queue
	if queue == "" {
		if task, ok := p.reg.Get(entry.Task); ok {
			queue = task.Queue
		}
	}

	// The tick-stamped id also dedupes against a slow previous run.
	id := fmt.Sprintf("cron:%s:%d", entry.name(), p.clock().Truncate(entry.Interval).UnixMilli())
	_, err := p.broker.Enqueue(ctx, ports.EnqueueRequest{
		JobID:    id,
		Queue:    queue,
		Function: entry.Task,
		Args:     entry.Args,
	})
	switch {
	case err == nil:
		p.logger.Debug("cron job enqueued", "cron", entry.name(), "job_id", id)
	case ctx.Err() != nil:
		// Shutting down.
	case errors.Is(err, job.ErrDuplicate):
		p.logger.Debug("cron tick already enqueued", "cron", entry.name(), "job_id", id)
	default:
		p.logger.Error("failed to enqueue cron job", "cron", entry.name(), "err", err)
	}
}
