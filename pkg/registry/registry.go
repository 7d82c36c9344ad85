package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Handler defines the signature for a task implementation.
// It receives a context and the job's argument map, and returns a result or error.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Task describes a registered background task and its execution policy.
type Task struct {
	Name    string
	Handler Handler

	// KeepResult is how long the result is retained. Zero falls back to the
	// application default.
	KeepResult time.Duration
	// Timeout bounds a single execution attempt. Zero means no limit.
	Timeout time.Duration
	// MaxTries caps execution attempts. Zero falls back to the worker default.
	MaxTries int
	// Queue routes jobs of this task to a non-default queue.
	Queue string
	// Expires bounds how long an unclaimed job stays runnable.
	Expires time.Duration
}

// Registry manages the available tasks.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// New creates a new empty registry.
func New() *Registry {
	return &Registry{
		tasks: make(map[string]Task),
	}
}

// Add registers a task. Registering the same name twice is an error: two
// handlers silently shadowing each other across a worker fleet must not happen.
func (r *Registry) Add(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if task.Handler == nil {
		return fmt.Errorf("task %q has no handler", task.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.Name]; exists {
		return fmt.Errorf("task already registered: %s", task.Name)
	}
	r.tasks[task.Name] = task
	return nil
}

// Get looks up a task by name.
func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[name]
	return task, ok
}

// All returns the registered tasks sorted by name.
func (r *Registry) All() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tasks := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}
