package orchestrator

import (
	"context"
	"time"

	id "vitaex/pkg/domain"
)

// RunStore persists task runs keyed by correlation id.
type RunStore interface {
	Save(ctx context.Context, run Run) error

	// Load returns the run, or sentinel.ErrNotFound.
	Load(ctx context.Context, correlationID id.CorrelationID) (Run, error)

	// ListStale returns non-terminal runs in the given status not updated
	// since cutoff, for the sweeper.
	ListStale(ctx context.Context, status Status, cutoff time.Time) ([]Run, error)
}
