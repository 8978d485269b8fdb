package audit

import (
	"context"

	id "vitaex/pkg/domain"
)

// Store is the append-only persistence contract. Implementations must never
// update or delete an entry.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByCorrelation(ctx context.Context, correlationID id.CorrelationID) ([]Entry, error)
	ListBySubject(ctx context.Context, subject id.SubjectID) ([]Entry, error)
}
