package job

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a job id cannot be found in the queue or results.
var ErrNotFound = errors.New("job not found")

// ErrDuplicate is returned when enqueueing a job id that is already live
// (queued, in progress, or with a retained result).
var ErrDuplicate = errors.New("job with this id already exists")

// ErrNotConnected is returned when enqueueing through an app that has not
// been connected to Redis yet.
var ErrNotConnected = errors.New("app is not connected, call Connect first")

// ErrDeferConflict is returned when both DeferUntil and DeferBy are set on an enqueue.
var ErrDeferConflict = errors.New("use either DeferUntil or DeferBy or neither, not both")

// ConfigError reports invalid application configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Reason)
}
