// Package orchestrator owns the task graph. It is the only component that
// emits stage request events, and it does so strictly after the consent gate
// admits the stage. Agents stay unaware of runs; the orchestrator stays
// unaware of agent internals.
package orchestrator

import (
	"encoding/json"
	"time"

	id "vitaex/pkg/domain"
)

// Status of one task run.
type Status string

const (
	StatusPending        Status = "pending"
	StatusWaitingConsent Status = "waiting_consent"
	StatusRunning        Status = "running"
	StatusBlocked        Status = "blocked_compliance"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusAbandoned      Status = "abandoned"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAbandoned
}

// Well-known run failure and abandonment reasons.
const (
	ReasonConsentDenied      = "ConsentDenied"
	ReasonComplianceRejected = "compliance_rejected"
	ReasonCancelled          = "cancelled"
	ReasonJoinTimeout        = "join_timeout"
	ReasonReviewExpired      = "review_expired"
)

// StageRecord is one completed stage in a run's history.
type StageRecord struct {
	Stage   string     `json:"stage"`
	EventID id.EventID `json:"event_id"`
	At      time.Time  `json:"at"`
}

// BlockedCompletion holds the completion the compliance gate rejected, so an
// approved review can resume exactly where the run stopped.
type BlockedCompletion struct {
	Stage   string          `json:"stage"`
	EventID id.EventID      `json:"event_id"`
	Payload json.RawMessage `json:"payload"`
}

// Run is the orchestrator's record of one correlation id.
type Run struct {
	CorrelationID id.CorrelationID `json:"correlation_id"`
	SubjectID     id.SubjectID     `json:"subject_id"`
	Graph         string           `json:"graph"`
	Status        Status           `json:"status"`
	Reason        string           `json:"reason,omitempty"`

	// Pending names stages whose request is out and completion not yet in.
	Pending []string `json:"pending,omitempty"`

	// History is append-only; Completions keeps each stage's completion
	// payload for join payload building.
	History     []StageRecord              `json:"history,omitempty"`
	Completions map[string]json.RawMessage `json:"completions,omitempty"`

	Blocked *BlockedCompletion `json:"blocked,omitempty"`

	// Trigger is the payload the run started with; entry stages and
	// payload builders read from it.
	Trigger json.RawMessage `json:"trigger,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completed reports whether stage already finished in this run.
func (r *Run) Completed(stage string) bool {
	for _, rec := range r.History {
		if rec.Stage == stage {
			return true
		}
	}
	return false
}

// InFlight reports whether stage has an outstanding request.
func (r *Run) InFlight(stage string) bool {
	for _, s := range r.Pending {
		if s == stage {
			return true
		}
	}
	return false
}

func (r *Run) removePending(stage string) {
	out := r.Pending[:0]
	for _, s := range r.Pending {
		if s != stage {
			out = append(out, s)
		}
	}
	r.Pending = out
}
