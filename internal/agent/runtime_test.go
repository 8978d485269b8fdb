package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitaex/internal/agent/processing"
	"vitaex/internal/audit"
	"vitaex/internal/event"
	"vitaex/internal/eventlog"
	id "vitaex/pkg/domain"
)

// recordingLog captures published events for assertions.
type recordingLog struct {
	mu     sync.Mutex
	events []event.Event
}

func (l *recordingLog) Publish(_ context.Context, ev event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *recordingLog) Subscribe(context.Context, string, []string, eventlog.Handler) error {
	return nil
}
func (l *recordingLog) Health(context.Context) error { return nil }
func (l *recordingLog) Close() error                 { return nil }

func (l *recordingLog) published() []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event.Event(nil), l.events...)
}

// countingHandler emits one completion per handled event and counts runs.
type countingHandler struct {
	mu    sync.Mutex
	runs  int
	fails int // fail this many leading attempts with a transient error
	err   error
}

func (h *countingHandler) ID() string { return "counting" }

func (h *countingHandler) Routes() []Route {
	return []Route{{Consume: "stage.requested", Emit: "stage.completed"}}
}

func (h *countingHandler) Handle(_ context.Context, ev event.Event) (Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs++
	if h.err != nil {
		return Result{}, h.err
	}
	if h.runs <= h.fails {
		return Result{}, errors.New("transient backend outage")
	}
	completion, err := event.NewCompletion("stage.completed", "stage.done", ev, event.OutcomeSuccess, "", nil)
	if err != nil {
		return Result{}, err
	}
	return Result{Events: []event.Event{completion}}, nil
}

func (h *countingHandler) runCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BackoffBase:   time.Millisecond,
		BackoffCap:    4 * time.Millisecond,
		HandleTimeout: time.Second,
	}
}

func newTestRuntime(h Handler) (*Runtime, *recordingLog, *audit.InMemoryStore) {
	log := &recordingLog{}
	auditStore := audit.NewInMemoryStore()
	rt := NewRuntime(h, processing.NewInMemoryStore(), log, audit.NewPublisher(auditStore, nil), nil, nil, testPolicy())
	return rt, log, auditStore
}

func requestEvent(t *testing.T) event.Event {
	t.Helper()
	ev, err := event.New("stage.requested", "stage.request", id.SubjectID("subj-1"), id.NewCorrelationID(), map[string]any{"n": 1})
	require.NoError(t, err)
	return ev
}

func TestRuntime_RedeliveriesProduceOneEffect(t *testing.T) {
	handler := &countingHandler{}
	rt, log, auditStore := newTestRuntime(handler)
	ev := requestEvent(t)

	const deliveries = 5
	for range deliveries {
		require.NoError(t, rt.Process(context.Background(), ev))
	}

	assert.Equal(t, 1, handler.runCount())

	// Every delivery republishes the same completion, with the same event
	// id, so downstream dedup collapses them.
	published := log.published()
	require.Len(t, published, deliveries)
	for _, out := range published {
		assert.Equal(t, published[0].ID, out.ID)
		assert.Equal(t, "stage.completed", out.Topic)
		assert.Equal(t, event.OutcomeSuccess, out.Outcome)
	}

	entries, err := auditStore.ListByCorrelation(context.Background(), ev.CorrelationID)
	require.NoError(t, err)
	var processed, absorbed int
	for _, e := range entries {
		switch e.Action {
		case audit.ActionAgentProcessed:
			processed++
		case audit.ActionDuplicateAbsorbed:
			absorbed++
		}
	}
	assert.Equal(t, 1, processed)
	assert.Equal(t, deliveries-1, absorbed)
}

func TestRuntime_TransientFailureRetriesThenSucceeds(t *testing.T) {
	handler := &countingHandler{fails: 2}
	rt, log, _ := newTestRuntime(handler)
	ev := requestEvent(t)

	// First two deliveries fail transiently; the log would redeliver.
	require.Error(t, rt.Process(context.Background(), ev))
	require.Error(t, rt.Process(context.Background(), ev))
	require.NoError(t, rt.Process(context.Background(), ev))

	assert.Equal(t, 3, handler.runCount())
	published := log.published()
	require.Len(t, published, 1)
	assert.Equal(t, event.OutcomeSuccess, published[0].Outcome)
}

func TestRuntime_RetryCapEmitsFailureCompletion(t *testing.T) {
	handler := &countingHandler{err: errors.New("backend still down")}
	rt, log, auditStore := newTestRuntime(handler)
	ev := requestEvent(t)

	require.Error(t, rt.Process(context.Background(), ev))
	require.Error(t, rt.Process(context.Background(), ev))
	// Third attempt hits the cap: the delivery commits and a failure
	// completion is published instead of another retry.
	require.NoError(t, rt.Process(context.Background(), ev))

	assert.Equal(t, 3, handler.runCount())
	published := log.published()
	require.Len(t, published, 1)
	assert.Equal(t, "stage.completed", published[0].Topic)
	assert.Equal(t, event.OutcomeFailed, published[0].Outcome)
	assert.Equal(t, ReasonRetryExhausted, published[0].Reason)

	entries, err := auditStore.ListByCorrelation(context.Background(), ev.CorrelationID)
	require.NoError(t, err)
	var failed int
	for _, e := range entries {
		if e.Action == audit.ActionAgentFailed {
			failed++
		}
	}
	assert.Equal(t, 3, failed)
}

func TestRuntime_PermanentFailureSkipsRetries(t *testing.T) {
	handler := &countingHandler{err: Permanent(errors.New("malformed payload"))}
	rt, log, _ := newTestRuntime(handler)
	ev := requestEvent(t)

	require.NoError(t, rt.Process(context.Background(), ev))

	assert.Equal(t, 1, handler.runCount())
	published := log.published()
	require.Len(t, published, 1)
	assert.Equal(t, event.OutcomeFailed, published[0].Outcome)
	assert.Equal(t, ReasonPermanentFailure, published[0].Reason)
}

type panickyHandler struct{ countingHandler }

func (h *panickyHandler) ID() string { return "panicky" }

func (h *panickyHandler) Handle(context.Context, event.Event) (Result, error) {
	panic("nil map write")
}

func TestRuntime_HandlerPanicIsPermanent(t *testing.T) {
	rt, log, _ := newTestRuntime(&panickyHandler{})
	ev := requestEvent(t)

	require.NoError(t, rt.Process(context.Background(), ev))

	published := log.published()
	require.Len(t, published, 1)
	assert.Equal(t, event.OutcomeFailed, published[0].Outcome)
	assert.Equal(t, ReasonPermanentFailure, published[0].Reason)

	// A redelivery of the poisoned event is absorbed without re-running.
	require.NoError(t, rt.Process(context.Background(), ev))
	require.Len(t, log.published(), 2)
}
