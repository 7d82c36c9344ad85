/*
Package quern is a Redis-backed background job queue for Go services.

Producers enqueue named jobs, optionally deferred or uniquely keyed, into a
Redis sorted set. Worker processes claim due jobs, execute registered
handlers with per-task timeout and retry policy, and retain results for a
configurable window. A cron scheduler enqueues recurring jobs, coordinated
across instances with a distributed lock.

# Concept

An App owns the task registry and the Redis connection. Registering a task
returns a handle whose Delay method publishes jobs; the same registry drives
the worker pool, so producers and workers share one definition of every task.

# Usage

	app, err := quern.New(quern.WithRedisSettings(redis.DefaultSettings()))
	if err != nil {
		log.Fatal(err)
	}

	sendEmail, err := app.RegisterTask(registry.Task{
		Name:     "send_email",
		MaxTries: 3,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			// deliver the email...
			return "sent", nil
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := app.Connect(ctx); err != nil {
		log.Fatal(err)
	}
	defer app.Disconnect()

	// Producer side: enqueue a job, deferred by a minute.
	j, err := sendEmail.Delay(ctx, map[string]any{"user_id": 42},
		quern.WithDeferBy(time.Minute))
	if err != nil {
		log.Fatal(err)
	}
	log.Println("enqueued", j.ID)

	// Worker side (usually a separate process, `quern worker`):
	pool, err := app.NewWorker(worker.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	_ = pool.Run(ctx)
*/
package quern
