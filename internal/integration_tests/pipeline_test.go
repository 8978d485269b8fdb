// Package integrationtests drives the whole pipeline in one process: real
// agents, real orchestrator, in-memory event log and stores. These are the
// scenarios the system exists for, end to end.
package integrationtests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitaex/internal/agent"
	"vitaex/internal/agent/processing"
	"vitaex/internal/agents/curator"
	"vitaex/internal/agents/ingestion"
	"vitaex/internal/agents/knowledge"
	"vitaex/internal/agents/oversight"
	"vitaex/internal/agents/protocol"
	"vitaex/internal/agents/simulation"
	"vitaex/internal/agents/twin"
	"vitaex/internal/audit"
	"vitaex/internal/consent"
	"vitaex/internal/event"
	"vitaex/internal/eventlog"
	"vitaex/internal/generation"
	"vitaex/internal/orchestrator"
	"vitaex/internal/platform/metrics"
	"vitaex/internal/storage/graphstore"
	"vitaex/internal/storage/timeseries"
	"vitaex/internal/storage/vector"
	id "vitaex/pkg/domain"
	"vitaex/pkg/testutil"
)

type stack struct {
	log        *eventlog.Memory
	orch       *orchestrator.Orchestrator
	consent    *consent.Service
	reviews    *oversight.Service
	auditStore *audit.InMemoryStore
	twins      twin.Store
}

// newStack wires every agent over the in-memory log and starts consuming.
// generate overrides the protocol generator when non-nil.
func newStack(t *testing.T, generate generation.Func) *stack {
	t.Helper()
	log := eventlog.NewMemory(nil)
	auditStore := audit.NewInMemoryStore()
	auditPub := audit.NewPublisher(auditStore, nil)
	m := metrics.New(prometheus.NewRegistry())

	consentSvc := consent.NewService(consent.NewInMemoryStore(), consent.NewMemoryCache(time.Minute), auditPub, m)
	reviewSvc := oversight.NewService(oversight.NewInMemoryStore(), log, auditPub, 1)

	series := timeseries.NewInMemoryStore()
	graph := graphstore.NewInMemoryStore()
	vectors := vector.NewInMemoryStore()
	twins := twin.NewInMemoryStore()

	policy := agent.RetryPolicy{
		MaxAttempts:   3,
		BackoffBase:   time.Millisecond,
		BackoffCap:    5 * time.Millisecond,
		HandleTimeout: 5 * time.Second,
	}
	registry := agent.NewRegistry(log, processing.NewInMemoryStore(), auditPub, m, nil, policy, "test")
	for _, h := range []agent.Handler{
		ingestion.New(series),
		knowledge.New(graph, vectors),
		twin.New(series, twins),
		simulation.New(twins),
		protocol.New(vectors, graph, generate),
		curator.New(),
		oversight.NewAgent(reviewSvc),
	} {
		require.NoError(t, registry.Register(h))
	}

	orch, err := orchestrator.New(orchestrator.DefaultGraphs(), orchestrator.NewInMemoryRunStore(),
		consentSvc, log, auditPub, m, nil, time.Minute, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = log.Close()
	})
	go func() { _ = registry.Start(ctx) }()
	go func() { _ = log.Subscribe(ctx, "test-orchestrator", orch.Topics(), orch.Process) }()
	// Give the subscriptions a beat to register; the memory log does not
	// retain events published before a subscription exists.
	time.Sleep(20 * time.Millisecond)

	return &stack{log: log, orch: orch, consent: consentSvc, reviews: reviewSvc, auditStore: auditStore, twins: twins}
}

func (s *stack) grantAll(t *testing.T, subject id.SubjectID) {
	t.Helper()
	ctx := context.Background()
	_, err := s.consent.Grant(ctx, subject, id.PurposeDataProcessing,
		id.NewScope(id.CategoryWearables, id.CategoryLabs), 0)
	require.NoError(t, err)
	_, err = s.consent.Grant(ctx, subject, id.PurposePersonalization,
		id.NewScope(id.CategorySimulations, id.CategoryProtocols, id.CategoryRecommendations), 0)
	require.NoError(t, err)
}

func (s *stack) waitForStatus(t *testing.T, correlationID id.CorrelationID, want orchestrator.Status) orchestrator.Run {
	t.Helper()
	var run orchestrator.Run
	testutil.Eventually(t, 10*time.Second, func() bool {
		var err error
		run, err = s.orch.Run(context.Background(), correlationID)
		return err == nil && run.Status == want
	})
	return run
}

func TestWearableBatchRunsWholePipeline(t *testing.T) {
	s := newStack(t, nil)
	subject := id.SubjectID("member-001")
	s.grantAll(t, subject)

	raw, err := event.New(event.TopicIngestionRaw, "ingestion.raw", subject, id.NewCorrelationID(),
		ingestion.RawSignal{
			Source: "oura",
			Kind:   "wearable",
			Samples: []ingestion.RawSample{
				{Metric: "hrv", Value: 61},
				{Metric: "resting_hr", Value: 52},
				{Metric: "sleep_efficiency", Value: 0.88},
				{Metric: "active_minutes", Value: 42},
			},
		})
	require.NoError(t, err)
	require.NoError(t, s.log.Publish(context.Background(), raw))

	run := s.waitForStatus(t, raw.CorrelationID, orchestrator.StatusCompleted)

	for _, stage := range []string{"standardize", "twin_update", "simulate", "protocol_generate", "recommend"} {
		assert.True(t, run.Completed(stage), "stage %s did not complete", stage)
	}

	// The twin snapshot exists and reflects the ingested metrics.
	state, err := s.twins.Load(context.Background(), subject)
	require.NoError(t, err)
	assert.Greater(t, state.Vitality, 0.0)

	entries, err := s.auditStore.ListByCorrelation(context.Background(), raw.CorrelationID)
	require.NoError(t, err)
	actions := make(map[string]int)
	decisions := make(map[audit.Decision]int)
	for _, e := range entries {
		actions[e.Action]++
		decisions[e.Decision]++
	}
	assert.NotZero(t, actions[audit.ActionConsentChecked])
	assert.NotZero(t, actions[audit.ActionAgentProcessed])
	assert.NotZero(t, actions[audit.ActionRunAdvanced])
	assert.Equal(t, 1, actions[audit.ActionRunCompleted])
	assert.Zero(t, decisions[audit.DecisionDeny])
}

func TestProtocolRunWithoutConsentNeverReachesAnAgent(t *testing.T) {
	s := newStack(t, nil)
	subject := id.SubjectID("member-002")

	run, err := s.orch.StartRun(context.Background(), "protocol", id.NewCorrelationID(), subject,
		[]byte(`{"goal":"Improve deep sleep"}`))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusAbandoned, run.Status)
	assert.Equal(t, orchestrator.ReasonConsentDenied, run.Reason)

	entries, err := s.auditStore.ListByCorrelation(context.Background(), run.CorrelationID)
	require.NoError(t, err)
	var sawDeniedCheck, sawAgentWork bool
	for _, e := range entries {
		if e.Action == audit.ActionConsentChecked && e.Decision == audit.DecisionDeny {
			sawDeniedCheck = true
		}
		if e.Action == audit.ActionAgentProcessed {
			sawAgentWork = true
		}
	}
	assert.True(t, sawDeniedCheck)
	assert.False(t, sawAgentWork)
}

func TestNoncompliantProtocolIsReviewedAndReleased(t *testing.T) {
	// A generator that slips into medical language; the disclaimer the agent
	// appends does not save it from the prohibited-phrase scan.
	generate := func(_ context.Context, req generation.Request) (string, error) {
		return fmt.Sprintf("This protocol will cure %s.", req.Goal), nil
	}
	s := newStack(t, generate)
	subject := id.SubjectID("member-003")
	var run orchestrator.Run

	testutil.Given(t, "a consented member and a generator producing medical claims", func(t *testing.T) {
		s.grantAll(t, subject)

		var err error
		run, err = s.orch.StartRun(context.Background(), "protocol", id.NewCorrelationID(), subject,
			[]byte(`{"goal":"chronic fatigue","focus":["recovery"]}`))
		require.NoError(t, err)
	})

	testutil.When(t, "the generated protocol reaches the compliance gate", func(t *testing.T) {
		s.waitForStatus(t, run.CorrelationID, orchestrator.StatusBlocked)

		testutil.Then(t, "a pending review is opened with the flagged content", func(t *testing.T) {
			var review oversight.Review
			testutil.Eventually(t, 10*time.Second, func() bool {
				var err error
				review, err = s.reviews.Review(context.Background(), run.CorrelationID)
				return err == nil
			})
			assert.Equal(t, oversight.StatusPending, review.Status)
			assert.Contains(t, review.Content, "cure")
		})
	})

	testutil.When(t, "a practitioner approves the review", func(t *testing.T) {
		_, err := s.reviews.Decide(context.Background(), run.CorrelationID, "dr-osei", true, "wellness framing acceptable")
		require.NoError(t, err)

		testutil.Then(t, "the run resumes and completes", func(t *testing.T) {
			s.waitForStatus(t, run.CorrelationID, orchestrator.StatusCompleted)
		})
	})
}

func TestRejectedReviewFailsTheRun(t *testing.T) {
	generate := func(context.Context, generation.Request) (string, error) {
		return "Guaranteed to diagnose and treat anything.", nil
	}
	s := newStack(t, generate)
	subject := id.SubjectID("member-004")
	s.grantAll(t, subject)

	run, err := s.orch.StartRun(context.Background(), "protocol", id.NewCorrelationID(), subject,
		[]byte(`{"goal":"energy"}`))
	require.NoError(t, err)

	s.waitForStatus(t, run.CorrelationID, orchestrator.StatusBlocked)
	testutil.Eventually(t, 10*time.Second, func() bool {
		_, err := s.reviews.Review(context.Background(), run.CorrelationID)
		return err == nil
	})

	_, err = s.reviews.Decide(context.Background(), run.CorrelationID, "dr-osei", false, "medical claims")
	require.NoError(t, err)

	got := s.waitForStatus(t, run.CorrelationID, orchestrator.StatusFailed)
	assert.Equal(t, orchestrator.ReasonComplianceRejected, got.Reason)
}
