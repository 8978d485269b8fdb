package audit

import (
	"time"

	id "vitaex/pkg/domain"
)

// Decision records the outcome an audited action reached.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionError Decision = "error"
)

// Entry is one append-only audit record. Entries are never edited or removed;
// together they are the sole source of truth for who approved what and when.
type Entry struct {
	ID            id.EventID
	CorrelationID id.CorrelationID
	Actor         string
	Action        string
	SubjectID     id.SubjectID
	Timestamp     time.Time
	Decision      Decision
	Detail        map[string]any
}

// Well-known audit actions. Agents and the orchestrator use these so the
// audit trail stays queryable without free-text matching.
const (
	ActionConsentGranted    = "consent_granted"
	ActionConsentRevoked    = "consent_revoked"
	ActionConsentChecked    = "consent_checked"
	ActionAgentProcessed    = "agent_processed"
	ActionAgentFailed       = "agent_failed"
	ActionDuplicateAbsorbed = "duplicate_absorbed"
	ActionRunAdmitted       = "run_admitted"
	ActionRunAdvanced       = "run_advanced"
	ActionRunAbandoned      = "run_abandoned"
	ActionRunFailed         = "run_failed"
	ActionRunCompleted      = "run_completed"
	ActionRunBlocked        = "run_blocked_compliance"
	ActionRunResumed        = "run_resumed"
	ActionCompletionIgnored = "completion_ignored"
	ActionReviewOpened      = "review_opened"
	ActionReviewDecided     = "review_decided"
	ActionComplianceChecked = "compliance_checked"
)
