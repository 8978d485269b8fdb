package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vitaex/internal/agent/processing"
	"vitaex/internal/audit"
	"vitaex/internal/event"
	"vitaex/internal/eventlog"
	"vitaex/internal/platform/metrics"
	"vitaex/pkg/platform/sentinel"
)

// Completion reasons the runtime stamps on failure events. The orchestrator
// maps them onto run status transitions.
const (
	ReasonRetryExhausted   = "retry_exhausted"
	ReasonPermanentFailure = "permanent_failure"
)

var tracer = otel.Tracer("vitaex/agent")

// RetryPolicy bounds one stage's attempt series. All values come from
// configuration; nothing here is hard-coded.
type RetryPolicy struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	HandleTimeout time.Duration
}

// Runtime wraps one Handler with the execution contract every agent shares:
// claim the event in the idempotency ledger, run the handler under a timeout,
// persist the result, publish the emissions, audit the outcome. Duplicates
// replay the persisted emissions without re-running the handler.
type Runtime struct {
	handler Handler
	ledger  processing.Store
	log     eventlog.Log
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	policy  RetryPolicy
}

func NewRuntime(handler Handler, ledger processing.Store, log eventlog.Log, auditPub *audit.Publisher, m *metrics.Metrics, logger *slog.Logger, policy RetryPolicy) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		handler: handler,
		ledger:  ledger,
		log:     log,
		audit:   auditPub,
		metrics: m,
		logger:  logger.With("agent", handler.ID()),
		policy:  policy,
	}
}

// Process is the eventlog handler for every topic the agent consumes.
// Returning nil commits the delivery; returning an error forces redelivery,
// which is how transient failures get retried.
func (r *Runtime) Process(ctx context.Context, ev event.Event) error {
	ctx, span := tracer.Start(ctx, r.handler.ID()+".process", trace.WithAttributes(
		attribute.String("event.id", ev.ID.String()),
		attribute.String("event.topic", ev.Topic),
		attribute.String("correlation.id", ev.CorrelationID.String()),
	))
	defer span.End()

	rec, err := r.ledger.Claim(ctx, r.handler.ID(), ev.ID)
	if errors.Is(err, sentinel.ErrDuplicate) {
		return r.absorbDuplicate(ctx, ev, rec)
	}
	if err != nil {
		span.SetStatus(codes.Error, "claim failed")
		return fmt.Errorf("claim event %s: %w", ev.ID, err)
	}

	if rec.Attempts > r.policy.MaxAttempts {
		return r.exhaust(ctx, ev, ReasonRetryExhausted)
	}
	if rec.Attempts > 1 {
		if r.metrics != nil {
			r.metrics.StageRetries.Inc()
		}
		if err := r.backoff(ctx, rec.Attempts); err != nil {
			return err
		}
	}

	started := time.Now()
	result, err := r.safeHandle(ctx, ev)
	if r.metrics != nil {
		r.metrics.HandleDuration.WithLabelValues(r.handler.ID()).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		return r.fail(ctx, ev, rec, err)
	}
	return r.succeed(ctx, ev, result)
}

// safeHandle runs the handler under the configured timeout, converting a
// panic into a permanent error so one poisoned event cannot wedge the
// consumer in a crash loop.
func (r *Runtime) safeHandle(ctx context.Context, ev event.Event) (result Result, err error) {
	hctx, cancel := context.WithTimeout(ctx, r.policy.HandleTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", rec))
		}
	}()
	return r.handler.Handle(hctx, ev)
}

func (r *Runtime) succeed(ctx context.Context, ev event.Event, result Result) error {
	encoded, err := json.Marshal(result.Events)
	if err != nil {
		return fmt.Errorf("encode result of %s: %w", ev.ID, err)
	}
	if err := r.ledger.Complete(ctx, r.handler.ID(), ev.ID, processing.OutcomeSucceeded, encoded); err != nil {
		return fmt.Errorf("complete event %s: %w", ev.ID, err)
	}
	if err := r.publishAll(ctx, result.Events); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.EventsConsumed.WithLabelValues(ev.Topic, "success").Inc()
	}
	return r.audit.Emit(ctx, audit.Entry{
		CorrelationID: ev.CorrelationID,
		Actor:         r.handler.ID(),
		Action:        audit.ActionAgentProcessed,
		SubjectID:     ev.SubjectID,
		Decision:      audit.DecisionAllow,
		Detail: map[string]any{
			"event_id": ev.ID.String(),
			"topic":    ev.Topic,
			"emitted":  len(result.Events),
		},
	})
}

func (r *Runtime) fail(ctx context.Context, ev event.Event, rec processing.Record, handleErr error) error {
	class := "transient"
	if IsPermanent(handleErr) {
		class = "permanent"
	}
	if r.metrics != nil {
		r.metrics.AgentFailures.WithLabelValues(r.handler.ID(), class).Inc()
	}
	r.logger.ErrorContext(ctx, "agent handle failed",
		"event_id", ev.ID.String(),
		"topic", ev.Topic,
		"attempt", rec.Attempts,
		"class", class,
		"error", handleErr,
	)
	if err := r.audit.Emit(ctx, audit.Entry{
		CorrelationID: ev.CorrelationID,
		Actor:         r.handler.ID(),
		Action:        audit.ActionAgentFailed,
		SubjectID:     ev.SubjectID,
		Decision:      audit.DecisionError,
		Detail: map[string]any{
			"event_id": ev.ID.String(),
			"topic":    ev.Topic,
			"attempt":  rec.Attempts,
			"class":    class,
			"error":    handleErr.Error(),
		},
	}); err != nil {
		return err
	}

	if IsPermanent(handleErr) {
		return r.exhaust(ctx, ev, ReasonPermanentFailure)
	}
	if rec.Attempts >= r.policy.MaxAttempts {
		return r.exhaust(ctx, ev, ReasonRetryExhausted)
	}
	// Not yet at the cap: leave the delivery uncommitted so the log
	// redelivers and Claim counts the next attempt.
	return handleErr
}

// exhaust gives up on the event: record the failure, tell the orchestrator
// via a failure completion, and commit the delivery so the log moves on.
func (r *Runtime) exhaust(ctx context.Context, ev event.Event, reason string) error {
	var emissions []event.Event
	if emit := r.emitTopicFor(ev.Topic); emit != "" {
		completion, err := event.NewCompletion(emit, r.handler.ID()+".failed", ev, event.OutcomeFailed, reason, nil)
		if err != nil {
			return err
		}
		emissions = append(emissions, completion)
	}

	encoded, err := json.Marshal(emissions)
	if err != nil {
		return fmt.Errorf("encode failure result of %s: %w", ev.ID, err)
	}
	if err := r.ledger.Complete(ctx, r.handler.ID(), ev.ID, processing.OutcomeFailed, encoded); err != nil && !errors.Is(err, sentinel.ErrInvalidState) {
		return fmt.Errorf("complete failed event %s: %w", ev.ID, err)
	}
	if err := r.publishAll(ctx, emissions); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.EventsConsumed.WithLabelValues(ev.Topic, "failed").Inc()
	}
	r.logger.WarnContext(ctx, "agent gave up on event",
		"event_id", ev.ID.String(),
		"topic", ev.Topic,
		"reason", reason,
	)
	return nil
}

// absorbDuplicate handles a redelivery of an already-completed event. The
// persisted emissions are republished with their original event ids, so
// downstream consumers dedupe them the same way; the handler never reruns.
func (r *Runtime) absorbDuplicate(ctx context.Context, ev event.Event, rec processing.Record) error {
	var emissions []event.Event
	if len(rec.Result) > 0 {
		if err := json.Unmarshal(rec.Result, &emissions); err != nil {
			return fmt.Errorf("decode persisted result of %s: %w", ev.ID, err)
		}
	}
	if err := r.publishAll(ctx, emissions); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.DuplicatesAbsorbed.WithLabelValues(r.handler.ID()).Inc()
	}
	return r.audit.Emit(ctx, audit.Entry{
		CorrelationID: ev.CorrelationID,
		Actor:         r.handler.ID(),
		Action:        audit.ActionDuplicateAbsorbed,
		SubjectID:     ev.SubjectID,
		Decision:      audit.DecisionAllow,
		Detail: map[string]any{
			"event_id": ev.ID.String(),
			"topic":    ev.Topic,
			"outcome":  string(rec.Outcome),
		},
	})
}

func (r *Runtime) publishAll(ctx context.Context, events []event.Event) error {
	for _, out := range events {
		if err := r.log.Publish(ctx, out); err != nil {
			return fmt.Errorf("publish %s to %s: %w", out.ID, out.Topic, err)
		}
		if r.metrics != nil {
			r.metrics.EventsPublished.WithLabelValues(out.Topic).Inc()
		}
	}
	return nil
}

func (r *Runtime) emitTopicFor(consumed string) string {
	for _, route := range r.handler.Routes() {
		if route.Consume == consumed {
			return route.Emit
		}
	}
	return ""
}

// backoff sleeps the configured exponential delay before attempt n. The
// delay doubles per attempt from BackoffBase up to BackoffCap.
func (r *Runtime) backoff(ctx context.Context, attempt int) error {
	delay := r.policy.BackoffBase
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= r.policy.BackoffCap {
			delay = r.policy.BackoffCap
			break
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
