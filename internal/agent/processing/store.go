package processing

import (
	"context"

	id "vitaex/pkg/domain"
)

// Store is the idempotency ledger agents consult before doing any work.
//
// Claim is the linearization point for exactly-once effects: concurrent
// deliveries of the same event to the same agent must resolve to one winner.
type Store interface {
	// Claim registers intent to process (agentID, eventID). When no record
	// exists it atomically creates a pending one with Attempts=1. When a
	// pending record exists (redelivery, or a crashed attempt) it
	// increments Attempts and returns the record. When a completed record
	// exists it returns that record together with sentinel.ErrDuplicate.
	Claim(ctx context.Context, agentID string, eventID id.EventID) (Record, error)

	// Complete marks the claimed record terminal, storing the encoded
	// result so duplicates can replay the original emissions.
	Complete(ctx context.Context, agentID string, eventID id.EventID, outcome Outcome, result []byte) error
}
