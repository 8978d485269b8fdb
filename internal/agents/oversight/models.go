// Package oversight keeps a practitioner in the loop. Content the compliance
// gate blocks waits here as a review record; only an explicit practitioner
// decision moves it on, and a configured number of approvals is needed to
// release it.
package oversight

import (
	"time"

	id "vitaex/pkg/domain"
)

// Status of one review record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Action is one practitioner's recorded decision.
type Action struct {
	Reviewer string    `json:"reviewer"`
	Approve  bool      `json:"approve"`
	Comment  string    `json:"comment,omitempty"`
	At       time.Time `json:"at"`
}

// Review is the record for one blocked run. One review exists per
// correlation id; re-opening an existing review is a no-op.
type Review struct {
	CorrelationID     id.CorrelationID `json:"correlation_id"`
	SubjectID         id.SubjectID     `json:"subject_id"`
	Stage             string           `json:"stage"`
	Content           string           `json:"content"`
	Findings          []string         `json:"findings"`
	RequiredApprovals int              `json:"required_approvals"`
	Actions           []Action         `json:"actions"`
	Status            Status           `json:"status"`
	OpenedAt          time.Time        `json:"opened_at"`
	DecidedAt         *time.Time       `json:"decided_at,omitempty"`
}

// Approvals counts approving actions.
func (r Review) Approvals() int {
	var n int
	for _, a := range r.Actions {
		if a.Approve {
			n++
		}
	}
	return n
}

// HasReviewed reports whether reviewer already acted on this review.
func (r Review) HasReviewed(reviewer string) bool {
	for _, a := range r.Actions {
		if a.Reviewer == reviewer {
			return true
		}
	}
	return false
}
