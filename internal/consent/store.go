package consent

import (
	"context"
	"time"

	id "vitaex/pkg/domain"
)

// Store persists grants. Save must atomically supersede the currently
// effective grant for (subject, purpose); the compare-and-swap on the
// effective row is what keeps the one-effective-grant invariant under
// concurrent writers.
type Store interface {
	// Save appends grant, marking any currently effective grant for the
	// same (subject, purpose) as superseded at grant.GrantedAt.
	Save(ctx context.Context, grant Grant) error

	// Effective returns the single effective grant for (subject, purpose)
	// at now, or sentinel.ErrNotFound.
	Effective(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, now time.Time) (Grant, error)

	// Revoke marks the effective grant revoked at revokedAt. Returns
	// sentinel.ErrNotFound when nothing is effective.
	Revoke(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, revokedAt time.Time) error

	// ListBySubject returns all grants for a subject, including superseded
	// and revoked rows, newest first.
	ListBySubject(ctx context.Context, subject id.SubjectID) ([]Grant, error)
}
