package main

import (
	"context"
	"time"

	"github.com/quern-dev/quern"
	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/registry"
)

// Built-in diagnostic tasks so a fresh deployment can be smoke-tested
// end-to-end before any application tasks exist.
func registerBuiltinTasks(app *quern.App) error {
	tasks := []registry.Task{
		{
			Name: "quern.ping",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{"pong": true, "args": args}, nil
			},
		},
		{
			Name:    "quern.sleep",
			Timeout: time.Minute,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				var p struct {
					Ms int64 `json:"ms"`
				}
				if err := job.DecodeArgs(args, &p); err != nil {
					return nil, err
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(p.Ms) * time.Millisecond):
					return map[string]any{"slept_ms": p.Ms}, nil
				}
			},
		},
	}
	for _, t := range tasks {
		if _, err := app.RegisterTask(t); err != nil {
			return err
		}
	}
	return nil
}
