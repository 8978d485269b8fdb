package processing

import (
	"time"

	id "vitaex/pkg/domain"
)

// Outcome is the terminal state of one (agent, event) processing attempt
// series. Pending records belong to in-flight or crashed attempts and may be
// reclaimed; completed records are immutable.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Record is one row of the idempotency ledger. Exactly one record exists per
// (agent, event); redeliveries find it instead of re-running the handler.
type Record struct {
	AgentID     string
	EventID     id.EventID
	Attempts    int
	Outcome     Outcome
	Result      []byte // encoded emitted events, replayed on duplicate delivery
	ProcessedAt time.Time
}
