package oversight

import (
	"context"

	id "vitaex/pkg/domain"
)

// Store persists review records keyed by correlation id.
type Store interface {
	Save(ctx context.Context, review Review) error

	// Load returns the review for correlationID, or sentinel.ErrNotFound.
	Load(ctx context.Context, correlationID id.CorrelationID) (Review, error)

	// ListPending returns open reviews, oldest first.
	ListPending(ctx context.Context) ([]Review, error)
}
