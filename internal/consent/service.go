package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vitaex/internal/audit"
	"vitaex/internal/platform/metrics"
	id "vitaex/pkg/domain"
	domainerrors "vitaex/pkg/domain-errors"
	"vitaex/pkg/platform/sentinel"
	"vitaex/pkg/requestcontext"
)

// Service is the single authority for consent decisions. Every grant,
// revocation and check flows through it so the audit trail and the cache
// stay consistent with the ledger.
type Service struct {
	store   Store
	cache   Cache
	audit   *audit.Publisher
	metrics *metrics.Metrics
}

func NewService(store Store, cache Cache, auditPub *audit.Publisher, m *metrics.Metrics) *Service {
	return &Service{store: store, cache: cache, audit: auditPub, metrics: m}
}

// Grant records a new grant, superseding any effective one for the same
// (subject, purpose). A zero expiresIn means the grant does not expire.
func (s *Service) Grant(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, scope id.Scope, expiresIn time.Duration) (Grant, error) {
	if !purpose.IsValid() {
		return Grant{}, domainerrors.New(domainerrors.CodeInvalidConsent, fmt.Sprintf("unknown consent purpose %q", purpose))
	}
	if len(scope) == 0 {
		return Grant{}, domainerrors.New(domainerrors.CodeInvalidConsent, "consent scope must name at least one data category")
	}

	now := requestcontext.Now(ctx)
	grant := Grant{
		SubjectID: subject,
		Purpose:   purpose,
		Scope:     scope,
		GrantedAt: now,
	}
	if expiresIn > 0 {
		grant.ExpiresAt = now.Add(expiresIn)
	}
	if err := s.store.Save(ctx, grant); err != nil {
		return Grant{}, fmt.Errorf("save grant: %w", err)
	}
	s.cache.Invalidate(ctx, subject, purpose)

	if err := s.audit.Emit(ctx, audit.Entry{
		CorrelationID: requestcontext.CorrelationID(ctx),
		Actor:         requestcontext.Actor(ctx),
		Action:        audit.ActionConsentGranted,
		SubjectID:     subject,
		Decision:      audit.DecisionAllow,
		Detail: map[string]any{
			"purpose": purpose.String(),
			"scope":   scope.Strings(),
		},
	}); err != nil {
		return Grant{}, err
	}
	return grant, nil
}

// Revoke withdraws the effective grant for (subject, purpose). The effect is
// immediate: checks after Revoke returns must deny, which is why the cache is
// invalidated before the audit write rather than after.
func (s *Service) Revoke(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose) error {
	if !purpose.IsValid() {
		return domainerrors.New(domainerrors.CodeInvalidConsent, fmt.Sprintf("unknown consent purpose %q", purpose))
	}

	err := s.store.Revoke(ctx, subject, purpose, requestcontext.Now(ctx))
	if errors.Is(err, sentinel.ErrNotFound) {
		return domainerrors.New(domainerrors.CodeNotFound, "no effective grant to revoke")
	}
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	s.cache.Invalidate(ctx, subject, purpose)

	return s.audit.Emit(ctx, audit.Entry{
		CorrelationID: requestcontext.CorrelationID(ctx),
		Actor:         requestcontext.Actor(ctx),
		Action:        audit.ActionConsentRevoked,
		SubjectID:     subject,
		Decision:      audit.DecisionAllow,
		Detail:        map[string]any{"purpose": purpose.String()},
	})
}

// Check decides whether processing required scope under purpose is
// authorized for subject right now. Denies carry a reason; every check is
// audited, cached or not.
func (s *Service) Check(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, required id.Scope) (Decision, error) {
	scopeKey := ScopeKey(required)
	decision, cached := s.cache.Get(ctx, subject, purpose, scopeKey)
	if !cached {
		var err error
		decision, err = s.evaluate(ctx, subject, purpose, required)
		if err != nil {
			return Decision{}, err
		}
		s.cache.Set(ctx, subject, purpose, scopeKey, decision)
	}

	outcome := audit.DecisionDeny
	metricOutcome := "deny"
	if decision.Allow {
		outcome = audit.DecisionAllow
		metricOutcome = "allow"
	}
	if s.metrics != nil {
		s.metrics.ConsentChecks.WithLabelValues(purpose.String(), metricOutcome).Inc()
	}

	detail := map[string]any{
		"purpose":        purpose.String(),
		"required_scope": required.Strings(),
	}
	if !decision.Allow {
		detail["reason"] = decision.Reason
	}
	if err := s.audit.Emit(ctx, audit.Entry{
		CorrelationID: requestcontext.CorrelationID(ctx),
		Actor:         requestcontext.Actor(ctx),
		Action:        audit.ActionConsentChecked,
		SubjectID:     subject,
		Decision:      outcome,
		Detail:        detail,
	}); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// ListBySubject exposes the full grant history for a subject.
func (s *Service) ListBySubject(ctx context.Context, subject id.SubjectID) ([]Grant, error) {
	return s.store.ListBySubject(ctx, subject)
}

func (s *Service) evaluate(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, required id.Scope) (Decision, error) {
	now := requestcontext.Now(ctx)
	grant, err := s.store.Effective(ctx, subject, purpose, now)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Decision{Allow: false, Reason: s.denyReason(ctx, subject, purpose, now)}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load effective grant: %w", err)
	}
	if !grant.Scope.Contains(required) {
		return Decision{Allow: false, Reason: ReasonScopeInsufficient}, nil
	}
	return Decision{Allow: true}, nil
}

// denyReason distinguishes "never granted" from "was granted, then revoked
// or expired" so audit entries and run statuses stay explainable. Best
// effort: a history read failure falls back to the generic reason.
func (s *Service) denyReason(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, now time.Time) string {
	grants, err := s.store.ListBySubject(ctx, subject)
	if err != nil {
		return ReasonNoGrant
	}
	for _, g := range grants {
		if g.Purpose != purpose || g.SupersededAt != nil {
			continue
		}
		if g.RevokedAt != nil && !g.RevokedAt.After(now) {
			return ReasonRevoked
		}
		if !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt) {
			return ReasonExpired
		}
	}
	return ReasonNoGrant
}
