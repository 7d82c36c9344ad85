/*
Package ports defines the driven ports (interfaces) for the quern queue.

These interfaces decouple the application and worker pool from the Redis
implementation, allowing tests to substitute in-memory fakes and future
backends to be added without touching the core.

# Key Interfaces

  - Broker: enqueueing, claiming and settling jobs on a queue.
  - Results: persisting and reading retained job results.
  - DistributedLocker: cross-instance locking for cron single-firing.
*/
package ports
