package oversight

import (
	"context"
	"errors"
	"fmt"

	"vitaex/internal/audit"
	"vitaex/internal/event"
	"vitaex/internal/eventlog"
	id "vitaex/pkg/domain"
	domainerrors "vitaex/pkg/domain-errors"
	"vitaex/pkg/platform/sentinel"
	"vitaex/pkg/requestcontext"
)

// ReviewRequest is the payload of protocol.review.requested.
type ReviewRequest struct {
	Stage    string   `json:"stage"`
	Content  string   `json:"content"`
	Findings []string `json:"findings"`
}

// DecisionPayload is the payload of protocol.review.updated.
type DecisionPayload struct {
	Status    Status `json:"status"`
	Reviewer  string `json:"reviewer"`
	Approvals int    `json:"approvals"`
	Required  int    `json:"required"`
	Comment   string `json:"comment,omitempty"`
}

// Service owns review records. The agent half opens them from review request
// events; the Decide half is called by the HTTP surface and publishes the
// decision event the orchestrator consumes.
type Service struct {
	store    Store
	log      eventlog.Log
	audit    *audit.Publisher
	required int
}

func NewService(store Store, log eventlog.Log, auditPub *audit.Publisher, required int) *Service {
	if required < 1 {
		required = 1
	}
	return &Service{store: store, log: log, audit: auditPub, required: required}
}

// Open creates the review record for a blocked run. Idempotent per
// correlation id, so redelivered review requests do not reset progress.
func (s *Service) Open(ctx context.Context, ev event.Event) (Review, error) {
	existing, err := s.store.Load(ctx, ev.CorrelationID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return Review{}, fmt.Errorf("load review: %w", err)
	}

	var req ReviewRequest
	if err := ev.DecodePayload(&req); err != nil {
		return Review{}, err
	}

	review := Review{
		CorrelationID:     ev.CorrelationID,
		SubjectID:         ev.SubjectID,
		Stage:             req.Stage,
		Content:           req.Content,
		Findings:          req.Findings,
		RequiredApprovals: s.required,
		Status:            StatusPending,
		OpenedAt:          ev.OccurredAt.UTC(),
	}
	if err := s.store.Save(ctx, review); err != nil {
		return Review{}, fmt.Errorf("save review: %w", err)
	}

	if err := s.audit.Emit(ctx, audit.Entry{
		CorrelationID: ev.CorrelationID,
		Actor:         "oversight",
		Action:        audit.ActionReviewOpened,
		SubjectID:     ev.SubjectID,
		Decision:      audit.DecisionAllow,
		Detail: map[string]any{
			"stage":    req.Stage,
			"findings": req.Findings,
			"required": s.required,
		},
	}); err != nil {
		return Review{}, err
	}
	return review, nil
}

// Decide records one practitioner action. A rejection closes the review
// immediately; approvals close it once the required count is reached. Every
// terminal transition publishes protocol.review.updated exactly once.
func (s *Service) Decide(ctx context.Context, correlationID id.CorrelationID, reviewer string, approve bool, comment string) (Review, error) {
	if reviewer == "" {
		return Review{}, domainerrors.New(domainerrors.CodeInvalidInput, "reviewer is required")
	}

	review, err := s.store.Load(ctx, correlationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Review{}, domainerrors.New(domainerrors.CodeNotFound, "no review open for this run")
	}
	if err != nil {
		return Review{}, fmt.Errorf("load review: %w", err)
	}
	if review.Status != StatusPending {
		return Review{}, domainerrors.New(domainerrors.CodeInvalidState, fmt.Sprintf("review already %s", review.Status))
	}
	if review.HasReviewed(reviewer) {
		return Review{}, domainerrors.New(domainerrors.CodeConflict, fmt.Sprintf("reviewer %s already acted on this review", reviewer))
	}

	now := requestcontext.Now(ctx)
	review.Actions = append(review.Actions, Action{Reviewer: reviewer, Approve: approve, Comment: comment, At: now})

	switch {
	case !approve:
		review.Status = StatusRejected
		review.DecidedAt = &now
	case review.Approvals() >= review.RequiredApprovals:
		review.Status = StatusApproved
		review.DecidedAt = &now
	}

	if err := s.store.Save(ctx, review); err != nil {
		return Review{}, fmt.Errorf("save review: %w", err)
	}

	decision := audit.DecisionAllow
	if !approve {
		decision = audit.DecisionDeny
	}
	if err := s.audit.Emit(ctx, audit.Entry{
		CorrelationID: correlationID,
		Actor:         reviewer,
		Action:        audit.ActionReviewDecided,
		SubjectID:     review.SubjectID,
		Decision:      decision,
		Detail: map[string]any{
			"approve":   approve,
			"status":    string(review.Status),
			"approvals": review.Approvals(),
			"required":  review.RequiredApprovals,
		},
	}); err != nil {
		return Review{}, err
	}

	if review.Status != StatusPending {
		if err := s.publishDecision(ctx, review, reviewer, comment); err != nil {
			return Review{}, err
		}
	}
	return review, nil
}

// Pending lists open reviews for the practitioner queue.
func (s *Service) Pending(ctx context.Context) ([]Review, error) {
	return s.store.ListPending(ctx)
}

// Review returns one review record.
func (s *Service) Review(ctx context.Context, correlationID id.CorrelationID) (Review, error) {
	review, err := s.store.Load(ctx, correlationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Review{}, domainerrors.New(domainerrors.CodeNotFound, "no review open for this run")
	}
	return review, err
}

func (s *Service) publishDecision(ctx context.Context, review Review, reviewer, comment string) error {
	outcome := event.OutcomeSuccess
	if review.Status == StatusRejected {
		outcome = event.OutcomeFailed
	}
	ev, err := event.New(event.TopicProtocolReviewUpdated, event.TypeProtocolReviewDecided, review.SubjectID, review.CorrelationID, DecisionPayload{
		Status:    review.Status,
		Reviewer:  reviewer,
		Approvals: review.Approvals(),
		Required:  review.RequiredApprovals,
		Comment:   comment,
	})
	if err != nil {
		return err
	}
	ev.Outcome = outcome
	ev.Reason = string(review.Status)
	if err := s.log.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish review decision: %w", err)
	}
	return nil
}
