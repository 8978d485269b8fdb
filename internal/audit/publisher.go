package audit

import (
	"context"
	"log/slog"
	"time"

	"vitaex/internal/event"
	"vitaex/internal/eventlog"
	id "vitaex/pkg/domain"
)

// Publisher captures structured audit entries. It is append-only and uses the
// store layer for persistence so tests can swap sinks easily. Audit writes
// are fail-closed for the caller: an Emit error must fail the operation that
// produced it, because an unaudited transition may not become observable.
type Publisher struct {
	store  Store
	mirror eventlog.Log
	logger *slog.Logger
}

func NewPublisher(store Store, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, logger: logger}
}

// MirrorTo additionally publishes every appended entry onto the audit topic
// so downstream sinks can tail the trail without database access. The store
// stays the record: a mirror publish failure is logged, never surfaced.
func (p *Publisher) MirrorTo(log eventlog.Log) {
	p.mirror = log
}

// Emit appends one entry, filling id and timestamp when unset.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.ID.IsNil() {
		entry.ID = id.NewEventID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}
	if err := p.store.Append(ctx, entry); err != nil {
		p.logger.ErrorContext(ctx, "audit append failed",
			"action", entry.Action,
			"correlation_id", entry.CorrelationID.String(),
			"error", err,
		)
		return err
	}
	p.mirrorEntry(ctx, entry)
	return nil
}

func (p *Publisher) mirrorEntry(ctx context.Context, entry Entry) {
	if p.mirror == nil {
		return
	}
	ev, err := event.New(event.TopicAuditEvents, "audit.entry", entry.SubjectID, entry.CorrelationID, entry)
	if err == nil {
		err = p.mirror.Publish(ctx, ev)
	}
	if err != nil {
		p.logger.WarnContext(ctx, "audit mirror publish failed",
			"action", entry.Action,
			"error", err,
		)
	}
}

// ListByCorrelation returns the ordered trail for one run.
func (p *Publisher) ListByCorrelation(ctx context.Context, correlationID id.CorrelationID) ([]Entry, error) {
	return p.store.ListByCorrelation(ctx, correlationID)
}

// ListBySubject returns the ordered trail for one subject across runs.
func (p *Publisher) ListBySubject(ctx context.Context, subject id.SubjectID) ([]Entry, error) {
	return p.store.ListBySubject(ctx, subject)
}
