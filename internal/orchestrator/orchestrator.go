package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vitaex/internal/audit"
	"vitaex/internal/compliance"
	"vitaex/internal/consent"
	"vitaex/internal/event"
	"vitaex/internal/eventlog"
	"vitaex/internal/platform/metrics"
	id "vitaex/pkg/domain"
	domainerrors "vitaex/pkg/domain-errors"
	"vitaex/pkg/platform/sentinel"
	"vitaex/pkg/requestcontext"
)

var tracer = otel.Tracer("vitaex/orchestrator")

// Orchestrator drives task runs through the static graph table. It is the
// single writer of stage request events; every admission passes the consent
// gate first, and every transition lands in the audit log.
type Orchestrator struct {
	graphs    map[string]Graph
	byTrigger map[string]string

	store   RunStore
	consent *consent.Service
	log     eventlog.Log
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger

	joinTimeout  time.Duration
	reviewExpiry time.Duration

	mu    sync.Mutex
	locks map[id.CorrelationID]*runLock
}

func New(graphs map[string]Graph, store RunStore, consentSvc *consent.Service, log eventlog.Log, auditPub *audit.Publisher, m *metrics.Metrics, logger *slog.Logger, joinTimeout, reviewExpiry time.Duration) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	byTrigger := make(map[string]string)
	for name, graph := range graphs {
		if err := graph.Validate(); err != nil {
			return nil, err
		}
		if graph.TriggerTopic != "" {
			if other, dup := byTrigger[graph.TriggerTopic]; dup {
				return nil, fmt.Errorf("trigger topic %s claimed by both %s and %s", graph.TriggerTopic, other, name)
			}
			byTrigger[graph.TriggerTopic] = name
		}
	}
	return &Orchestrator{
		graphs:       graphs,
		byTrigger:    byTrigger,
		store:        store,
		consent:      consentSvc,
		log:          log,
		audit:        auditPub,
		metrics:      m,
		logger:       logger.With("component", "orchestrator"),
		joinTimeout:  joinTimeout,
		reviewExpiry: reviewExpiry,
		locks:        make(map[id.CorrelationID]*runLock),
	}, nil
}

// Topics lists everything the orchestrator consumes: trigger topics,
// completion topics of all graphs, and review decisions.
func (o *Orchestrator) Topics() []string {
	seen := map[string]bool{event.TopicProtocolReviewUpdated: true}
	for _, graph := range o.graphs {
		if graph.TriggerTopic != "" {
			seen[graph.TriggerTopic] = true
		}
		for _, stage := range graph.Stages {
			seen[stage.CompletionTopic] = true
		}
	}
	out := make([]string, 0, len(seen))
	for topic := range seen {
		out = append(out, topic)
	}
	return out
}

// Process is the eventlog handler: triggers admit runs, completions advance
// them, review decisions resolve blocked ones.
func (o *Orchestrator) Process(ctx context.Context, ev event.Event) error {
	ctx, span := tracer.Start(ctx, "orchestrator.process", trace.WithAttributes(
		attribute.String("event.topic", ev.Topic),
		attribute.String("correlation.id", ev.CorrelationID.String()),
	))
	defer span.End()

	// Services downstream (consent checks in particular) audit with the
	// correlation id and actor they find on the context.
	ctx = requestcontext.WithCorrelationID(ctx, ev.CorrelationID)
	ctx = requestcontext.WithActor(ctx, "orchestrator")

	if ev.Topic == event.TopicProtocolReviewUpdated {
		return o.handleReviewDecision(ctx, ev)
	}
	if graphName, ok := o.byTrigger[ev.Topic]; ok {
		return o.handleTrigger(ctx, graphName, ev)
	}
	return o.handleCompletion(ctx, ev)
}

// StartRun admits a new run for graphName. Entry stages are consent-checked
// before any request event leaves the orchestrator; a denial abandons the
// run before an agent ever sees work.
func (o *Orchestrator) StartRun(ctx context.Context, graphName string, correlationID id.CorrelationID, subject id.SubjectID, trigger json.RawMessage) (Run, error) {
	graph, ok := o.graphs[graphName]
	if !ok {
		return Run{}, domainerrors.New(domainerrors.CodeBadRequest, fmt.Sprintf("unknown task graph %q", graphName))
	}
	ctx = requestcontext.WithCorrelationID(ctx, correlationID)

	unlock := o.lockRun(correlationID)
	defer unlock()

	if existing, err := o.store.Load(ctx, correlationID); err == nil {
		// Redelivered trigger: the run already exists, nothing to do.
		return existing, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return Run{}, fmt.Errorf("load run: %w", err)
	}

	now := requestcontext.Now(ctx)
	run := Run{
		CorrelationID: correlationID,
		SubjectID:     subject,
		Graph:         graphName,
		Status:        StatusPending,
		Completions:   make(map[string]json.RawMessage),
		Trigger:       trigger,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.audit.Emit(ctx, audit.Entry{
		CorrelationID: correlationID,
		Actor:         "orchestrator",
		Action:        audit.ActionRunAdmitted,
		SubjectID:     subject,
		Decision:      audit.DecisionAllow,
		Detail:        map[string]any{"graph": graphName},
	}); err != nil {
		return Run{}, err
	}

	for _, entry := range graph.Entry {
		if err := o.admitStage(ctx, &run, graph.Stages[entry]); err != nil {
			return Run{}, err
		}
		if run.Status.Terminal() {
			break
		}
	}
	if !run.Status.Terminal() {
		o.setStatus(ctx, &run, StatusRunning, "")
	}
	if err := o.store.Save(ctx, run); err != nil {
		return Run{}, fmt.Errorf("save run: %w", err)
	}
	return run, nil
}

// Run returns the run record for a correlation id.
func (o *Orchestrator) Run(ctx context.Context, correlationID id.CorrelationID) (Run, error) {
	run, err := o.store.Load(ctx, correlationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Run{}, domainerrors.New(domainerrors.CodeNotFound, "no run for this correlation id")
	}
	return run, err
}

// Cancel abandons a non-terminal run. Late completions for it are ignored
// from then on.
func (o *Orchestrator) Cancel(ctx context.Context, correlationID id.CorrelationID) (Run, error) {
	unlock := o.lockRun(correlationID)
	defer unlock()

	run, err := o.store.Load(ctx, correlationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Run{}, domainerrors.New(domainerrors.CodeNotFound, "no run for this correlation id")
	}
	if err != nil {
		return Run{}, fmt.Errorf("load run: %w", err)
	}
	if run.Status.Terminal() {
		return Run{}, domainerrors.New(domainerrors.CodeInvalidState, fmt.Sprintf("run already %s", run.Status))
	}

	o.setStatus(ctx, &run, StatusAbandoned, ReasonCancelled)
	if err := o.store.Save(ctx, run); err != nil {
		return Run{}, fmt.Errorf("save run: %w", err)
	}
	return run, nil
}

func (o *Orchestrator) handleTrigger(ctx context.Context, graphName string, ev event.Event) error {
	_, err := o.StartRun(ctx, graphName, ev.CorrelationID, ev.SubjectID, ev.Payload)
	return err
}

func (o *Orchestrator) handleCompletion(ctx context.Context, ev event.Event) error {
	unlock := o.lockRun(ev.CorrelationID)
	defer unlock()

	run, err := o.store.Load(ctx, ev.CorrelationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		o.logger.WarnContext(ctx, "completion for unknown run",
			"topic", ev.Topic, "correlation_id", ev.CorrelationID.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	if run.Status.Terminal() {
		return o.ignoreCompletion(ctx, &run, ev, "run not running")
	}

	graph := o.graphs[run.Graph]
	stage, ok := graph.StageByCompletion(ev.Topic)
	if !ok || !run.InFlight(stage.Name) {
		return o.ignoreCompletion(ctx, &run, ev, "no matching in-flight stage")
	}

	if run.Status == StatusBlocked {
		// A sibling branch finished while the run waits on review. Record
		// it so the join can fire after resume, but admit nothing new.
		return o.recordDeferred(ctx, &run, stage, ev)
	}

	if ev.Outcome == event.OutcomeFailed {
		reason := ev.Reason
		if reason == "" {
			reason = "stage_failed"
		}
		o.setStatus(ctx, &run, StatusFailed, reason)
		return o.saveRun(ctx, run)
	}

	if stage.Gated {
		finding := compliance.Inspect(string(ev.Payload))
		if !finding.Passed {
			return o.block(ctx, &run, stage, ev, finding)
		}
	}

	if err := o.advance(ctx, &run, stage, ev.ID, ev.Payload); err != nil {
		return err
	}
	return o.saveRun(ctx, run)
}

// recordDeferred stores a completion that arrived while the run is blocked.
// Failed or noncompliant siblings are not stacked on top of an open review;
// they surface again through the join timeout if the review approves.
func (o *Orchestrator) recordDeferred(ctx context.Context, run *Run, stage Stage, ev event.Event) error {
	if ev.Outcome == event.OutcomeFailed {
		return o.ignoreCompletion(ctx, run, ev, "run blocked, sibling failed")
	}
	if stage.Gated {
		if finding := compliance.Inspect(string(ev.Payload)); !finding.Passed {
			return o.ignoreCompletion(ctx, run, ev, "run blocked, sibling noncompliant")
		}
	}
	run.removePending(stage.Name)
	run.History = append(run.History, StageRecord{Stage: stage.Name, EventID: ev.ID, At: requestcontext.Now(ctx)})
	if run.Completions == nil {
		run.Completions = make(map[string]json.RawMessage)
	}
	run.Completions[stage.Name] = ev.Payload
	if err := o.audit.Emit(ctx, audit.Entry{
		CorrelationID: run.CorrelationID,
		Actor:         "orchestrator",
		Action:        audit.ActionRunAdvanced,
		SubjectID:     run.SubjectID,
		Decision:      audit.DecisionAllow,
		Detail:        map[string]any{"stage": stage.Name, "deferred": true},
	}); err != nil {
		return err
	}
	return o.saveRun(ctx, *run)
}

// advance records the stage completion and admits every next stage whose
// join inputs are all present.
func (o *Orchestrator) advance(ctx context.Context, run *Run, stage Stage, eventID id.EventID, payload json.RawMessage) error {
	run.removePending(stage.Name)
	run.History = append(run.History, StageRecord{Stage: stage.Name, EventID: eventID, At: requestcontext.Now(ctx)})
	if run.Completions == nil {
		run.Completions = make(map[string]json.RawMessage)
	}
	run.Completions[stage.Name] = payload

	graph := o.graphs[run.Graph]
	for _, nextName := range stage.Next {
		if run.Status.Terminal() {
			break
		}
		next := graph.Stages[nextName]
		if run.Completed(next.Name) || run.InFlight(next.Name) {
			continue
		}
		if !o.joinReady(run, next) {
			continue
		}
		if err := o.admitStage(ctx, run, next); err != nil {
			return err
		}
	}

	if !run.Status.Terminal() && len(run.Pending) == 0 {
		o.setStatus(ctx, run, StatusCompleted, "")
	}
	return nil
}

// joinReady reports whether every WaitFor input of stage has completed.
// The completing upstream stage itself is already in history by the time
// this runs, so both arrival orders work.
func (o *Orchestrator) joinReady(run *Run, stage Stage) bool {
	for _, wait := range stage.WaitFor {
		if !run.Completed(wait) {
			return false
		}
	}
	return true
}

// admitStage runs the consent gate and, on allow, emits the stage request.
// A denial abandons the whole run: partial pipelines are worse than none for
// auditability.
func (o *Orchestrator) admitStage(ctx context.Context, run *Run, stage Stage) error {
	if stage.Consent != nil {
		o.setStatus(ctx, run, StatusWaitingConsent, "")
		decision, err := o.consent.Check(ctx, run.SubjectID, stage.Consent.Purpose, stage.Consent.Scope)
		if err != nil {
			return fmt.Errorf("consent check for stage %s: %w", stage.Name, err)
		}
		if !decision.Allow {
			o.setStatus(ctx, run, StatusAbandoned, ReasonConsentDenied)
			return nil
		}
	}
	o.setStatus(ctx, run, StatusRunning, "")

	payload := any(run.Trigger)
	if stage.Payload != nil {
		built, err := stage.Payload(run)
		if err != nil {
			return fmt.Errorf("build payload for stage %s: %w", stage.Name, err)
		}
		payload = built
	}

	req, err := event.New(stage.RequestTopic, stage.RequestType, run.SubjectID, run.CorrelationID, payload)
	if err != nil {
		return err
	}
	if err := o.log.Publish(ctx, req); err != nil {
		return fmt.Errorf("publish %s request: %w", stage.Name, err)
	}
	if o.metrics != nil {
		o.metrics.EventsPublished.WithLabelValues(stage.RequestTopic).Inc()
	}
	run.Pending = append(run.Pending, stage.Name)

	return o.audit.Emit(ctx, audit.Entry{
		CorrelationID: run.CorrelationID,
		Actor:         "orchestrator",
		Action:        audit.ActionRunAdvanced,
		SubjectID:     run.SubjectID,
		Decision:      audit.DecisionAllow,
		Detail:        map[string]any{"stage": stage.Name, "request_topic": stage.RequestTopic},
	})
}

// block moves the run to blocked_compliance: a compliance alert goes out, a
// practitioner review is opened, and nothing advances until the review
// decides.
func (o *Orchestrator) block(ctx context.Context, run *Run, stage Stage, ev event.Event, finding compliance.Finding) error {
	run.Blocked = &BlockedCompletion{Stage: stage.Name, EventID: ev.ID, Payload: ev.Payload}
	o.setStatus(ctx, run, StatusBlocked, "")
	if o.metrics != nil {
		o.metrics.ComplianceBlocks.Inc()
	}

	findings := append([]string(nil), finding.Matches...)
	if finding.MissingDisclaimer {
		findings = append(findings, "missing_disclaimer")
	}

	alert, err := event.NewCompletion(event.TopicComplianceAlert, "compliance.rejected", ev, event.OutcomeFailed, "compliance_gate", map[string]any{
		"stage":    stage.Name,
		"findings": findings,
	})
	if err != nil {
		return err
	}
	if err := o.log.Publish(ctx, alert); err != nil {
		return fmt.Errorf("publish compliance alert: %w", err)
	}

	review, err := event.New(event.TopicProtocolReviewRequested, "protocol.review", run.SubjectID, run.CorrelationID, map[string]any{
		"stage":    stage.Name,
		"content":  string(ev.Payload),
		"findings": findings,
	})
	if err != nil {
		return err
	}
	if err := o.log.Publish(ctx, review); err != nil {
		return fmt.Errorf("publish review request: %w", err)
	}

	return o.saveRun(ctx, *run)
}

// handleReviewDecision resolves a blocked run: approval resumes it from the
// blocked completion, rejection fails it. This is the only path out of
// blocked_compliance.
func (o *Orchestrator) handleReviewDecision(ctx context.Context, ev event.Event) error {
	unlock := o.lockRun(ev.CorrelationID)
	defer unlock()

	run, err := o.store.Load(ctx, ev.CorrelationID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.Status != StatusBlocked || run.Blocked == nil {
		return o.ignoreCompletion(ctx, &run, ev, "run not blocked")
	}

	// Only a practitioner decision may release a blocked run. An agent
	// failure completion lands on the same topic and must leave the run
	// blocked rather than fail it.
	if ev.Type != event.TypeProtocolReviewDecided {
		return o.ignoreCompletion(ctx, &run, ev, "not a reviewer decision")
	}
	var decision struct {
		Reviewer string `json:"reviewer"`
	}
	if err := ev.DecodePayload(&decision); err != nil || decision.Reviewer == "" {
		return o.ignoreCompletion(ctx, &run, ev, "decision without reviewer")
	}

	if ev.Outcome != event.OutcomeSuccess {
		run.Blocked = nil
		o.setStatus(ctx, &run, StatusFailed, ReasonComplianceRejected)
		return o.saveRun(ctx, run)
	}

	blocked := *run.Blocked
	run.Blocked = nil
	o.setStatus(ctx, &run, StatusRunning, "")
	if err := o.audit.Emit(ctx, audit.Entry{
		CorrelationID: run.CorrelationID,
		Actor:         "orchestrator",
		Action:        audit.ActionRunResumed,
		SubjectID:     run.SubjectID,
		Decision:      audit.DecisionAllow,
		Detail:        map[string]any{"stage": blocked.Stage},
	}); err != nil {
		return err
	}

	graph := o.graphs[run.Graph]
	if err := o.advance(ctx, &run, graph.Stages[blocked.Stage], blocked.EventID, blocked.Payload); err != nil {
		return err
	}
	return o.saveRun(ctx, run)
}

// Sweep abandons runs that outlived their timeouts. Called on a ticker.
func (o *Orchestrator) Sweep(ctx context.Context, now time.Time) error {
	if o.joinTimeout > 0 {
		if err := o.sweepStatus(ctx, StatusRunning, now.Add(-o.joinTimeout), ReasonJoinTimeout); err != nil {
			return err
		}
	}
	if o.reviewExpiry > 0 {
		if err := o.sweepStatus(ctx, StatusBlocked, now.Add(-o.reviewExpiry), ReasonReviewExpired); err != nil {
			return err
		}
	}
	return nil
}

// RunSweeper ticks Sweep until ctx is cancelled.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := o.Sweep(ctx, now); err != nil {
				o.logger.ErrorContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}

func (o *Orchestrator) sweepStatus(ctx context.Context, status Status, cutoff time.Time, reason string) error {
	stale, err := o.store.ListStale(ctx, status, cutoff)
	if err != nil {
		return fmt.Errorf("list stale %s runs: %w", status, err)
	}
	for _, run := range stale {
		unlock := o.lockRun(run.CorrelationID)
		current, err := o.store.Load(ctx, run.CorrelationID)
		if err != nil || current.Status != status || !current.UpdatedAt.Before(cutoff) {
			unlock()
			continue
		}
		o.setStatus(ctx, &current, StatusAbandoned, reason)
		err = o.saveRun(ctx, current)
		unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) ignoreCompletion(ctx context.Context, run *Run, ev event.Event, why string) error {
	return o.audit.Emit(ctx, audit.Entry{
		CorrelationID: run.CorrelationID,
		Actor:         "orchestrator",
		Action:        audit.ActionCompletionIgnored,
		SubjectID:     run.SubjectID,
		Decision:      audit.DecisionDeny,
		Detail: map[string]any{
			"topic":    ev.Topic,
			"event_id": ev.ID.String(),
			"why":      why,
			"status":   string(run.Status),
		},
	})
}

// setStatus applies a transition, recording metrics and the terminal audit
// entries. Intermediate running/waiting transitions are metered but only
// terminal and blocked states get their own audit actions; admissions and
// advances are audited where they happen.
func (o *Orchestrator) setStatus(ctx context.Context, run *Run, status Status, reason string) {
	if run.Status == status && run.Reason == reason {
		return
	}
	run.Status = status
	run.Reason = reason
	run.UpdatedAt = requestcontext.Now(ctx)
	if o.metrics != nil {
		o.metrics.RunTransitions.WithLabelValues(string(status)).Inc()
	}

	var action string
	switch status {
	case StatusAbandoned:
		action = audit.ActionRunAbandoned
	case StatusFailed:
		action = audit.ActionRunFailed
	case StatusCompleted:
		action = audit.ActionRunCompleted
	case StatusBlocked:
		action = audit.ActionRunBlocked
	default:
		return
	}
	decision := audit.DecisionDeny
	if status == StatusCompleted {
		decision = audit.DecisionAllow
	}
	if err := o.audit.Emit(ctx, audit.Entry{
		CorrelationID: run.CorrelationID,
		Actor:         "orchestrator",
		Action:        action,
		SubjectID:     run.SubjectID,
		Decision:      decision,
		Detail:        map[string]any{"reason": reason},
	}); err != nil {
		o.logger.ErrorContext(ctx, "audit of run transition failed",
			"action", action,
			"correlation_id", run.CorrelationID.String(),
			"error", err,
		)
	}
}

func (o *Orchestrator) saveRun(ctx context.Context, run Run) error {
	if err := o.store.Save(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// runLock is a per-correlation mutex with a holder count so the locks map
// can drop entries once the last holder releases.
type runLock struct {
	mu   sync.Mutex
	refs int
}

// lockRun serializes transitions per correlation id. The map entry lives only
// while someone holds or waits on the lock.
func (o *Orchestrator) lockRun(correlationID id.CorrelationID) func() {
	o.mu.Lock()
	lock, ok := o.locks[correlationID]
	if !ok {
		lock = &runLock{}
		o.locks[correlationID] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		o.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.locks, correlationID)
		}
		o.mu.Unlock()
	}
}
