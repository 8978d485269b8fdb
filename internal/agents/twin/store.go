package twin

import (
	"context"

	id "vitaex/pkg/domain"
)

// Store persists twin snapshots, one per subject, last write wins.
type Store interface {
	Save(ctx context.Context, state State) error

	// Load returns the snapshot for subject, or sentinel.ErrNotFound.
	Load(ctx context.Context, subject id.SubjectID) (State, error)
}
