package ports

import (
	"context"

	"github.com/quern-dev/quern/pkg/job"
)

// Results defines read access to retained job results.
type Results interface {
	// GetResult retrieves the retained result for a job id.
	// Returns job.ErrNotFound if no result is retained.
	GetResult(ctx context.Context, id string) (job.Result, error)

	// AllResults returns every retained result, ordered by enqueue time.
	AllResults(ctx context.Context) ([]job.Result, error)

	// DeleteResult drops a retained result.
	DeleteResult(ctx context.Context, id string) error
}
