package consent

import (
	"time"

	id "vitaex/pkg/domain"
)

// Grant captures a subject's purpose- and scope-bound authorization. At most
// one grant per (subject, purpose) is effective at any instant: a new grant
// supersedes rather than stacks, and revocation is immediate. Superseded and
// revoked rows are retained for audit, never physically deleted.
type Grant struct {
	SubjectID    id.SubjectID
	Purpose      id.ConsentPurpose
	Scope        id.Scope
	GrantedAt    time.Time
	ExpiresAt    time.Time // zero means no expiry
	RevokedAt    *time.Time
	SupersededAt *time.Time
}

// IsEffective returns true when the grant authorizes processing at now.
func (g Grant) IsEffective(now time.Time) bool {
	if g.RevokedAt != nil && !g.RevokedAt.After(now) {
		return false
	}
	if g.SupersededAt != nil && !g.SupersededAt.After(now) {
		return false
	}
	if !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt) {
		return false
	}
	return true
}

// Decision is a consent check result with the reason a deny carries.
type Decision struct {
	Allow  bool
	Reason string
}

// Deny reasons surfaced in audit detail and run status.
const (
	ReasonNoGrant           = "no_effective_grant"
	ReasonRevoked           = "grant_revoked"
	ReasonExpired           = "grant_expired"
	ReasonScopeInsufficient = "scope_insufficient"
)
