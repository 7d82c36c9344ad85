package job

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status describes where a job currently is in its lifecycle.
type Status string

const (
	// StatusDeferred means the job is in the queue but its scheduled time is in the future.
	StatusDeferred Status = "deferred"
	// StatusQueued means the job is in the queue and due for execution.
	StatusQueued Status = "queued"
	// StatusInProgress means a worker has claimed the job and is running it.
	StatusInProgress Status = "in_progress"
	// StatusComplete means the job finished and a result is retained.
	StatusComplete Status = "complete"
	// StatusNotFound means the job is unknown: never enqueued, expired, or its result evicted.
	StatusNotFound Status = "not_found"
)

// Definition is the persisted form of an enqueued job.
type Definition struct {
	Function    string         `json:"function"`
	Args        map[string]any `json:"args,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	JobTry      int            `json:"job_try"`
	EnqueueTime time.Time      `json:"enqueue_time"`

	// Score is the queue sorted-set score (unix ms). Populated on reads,
	// not part of the payload.
	Score int64 `json:"-"`
}

// Result is the retained outcome of a finished job.
type Result struct {
	Definition

	JobID      string    `json:"job_id"`
	Queue      string    `json:"queue"`
	Success    bool      `json:"success"`
	Value      any       `json:"value,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartTime  time.Time `json:"start_time"`
	FinishTime time.Time `json:"finish_time"`
}

// Encode serializes a job definition for storage.
func Encode(def Definition) ([]byte, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job %q: %w", def.Function, err)
	}
	return data, nil
}

// Decode deserializes a stored job definition.
func Decode(data []byte) (Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return def, nil
}

// EncodeResult serializes a job result for storage.
func EncodeResult(res Result) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result for job %q: %w", res.JobID, err)
	}
	return data, nil
}

// DecodeResult deserializes a stored job result.
func DecodeResult(data []byte) (Result, error) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("failed to decode result: %w", err)
	}
	return res, nil
}
