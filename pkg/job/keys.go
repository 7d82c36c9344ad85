package job

import "time"

// Redis key layout. All keys live under the "quern:" namespace so a shared
// Redis instance can be inspected (and flushed) safely.
const (
	DefaultQueue      = "quern:queue"
	KeyPrefix         = "quern:job:"
	ResultKeyPrefix   = "quern:result:"
	InProgressPrefix  = "quern:in-progress:"
	RetryKeyPrefix    = "quern:retry:"
	HealthCheckPrefix = "quern:health-check:"
	CronLockPrefix    = "quern:cron:"
)

// ExpiresExtra is added to a job's scheduled start when computing the payload
// key expiry, so late workers can still read the payload of an overdue job.
const ExpiresExtra = 24 * time.Hour

// Key returns the payload key for a job id.
func Key(id string) string { return KeyPrefix + id }

// ResultKey returns the result key for a job id.
func ResultKey(id string) string { return ResultKeyPrefix + id }

// InProgressKey returns the claim marker key for a job id.
func InProgressKey(id string) string { return InProgressPrefix + id }

// RetryKey returns the attempt counter key for a job id.
func RetryKey(id string) string { return RetryKeyPrefix + id }
