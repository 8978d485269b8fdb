package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	EventsPublished    *prometheus.CounterVec
	EventsConsumed     *prometheus.CounterVec
	DuplicatesAbsorbed *prometheus.CounterVec
	AgentFailures      *prometheus.CounterVec
	ConsentChecks      *prometheus.CounterVec
	RunTransitions     *prometheus.CounterVec
	StageRetries       prometheus.Counter
	ComplianceBlocks   prometheus.Counter
	HandleDuration     *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on reg. Pass a fresh
// registry in tests to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_events_published_total",
			Help: "Events published to the event log, by topic.",
		}, []string{"topic"}),
		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_events_consumed_total",
			Help: "Events consumed from the event log, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		DuplicatesAbsorbed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_duplicates_absorbed_total",
			Help: "Redelivered events absorbed by the idempotency check, by agent.",
		}, []string{"agent"}),
		AgentFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_agent_failures_total",
			Help: "Agent handler failures, by agent and class (transient/permanent).",
		}, []string{"agent", "class"}),
		ConsentChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_consent_checks_total",
			Help: "Consent checks, by purpose and decision.",
		}, []string{"purpose", "decision"}),
		RunTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vitaex_run_transitions_total",
			Help: "Task run state transitions, by target status.",
		}, []string{"status"}),
		StageRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "vitaex_stage_retries_total",
			Help: "Stage attempts beyond the first.",
		}),
		ComplianceBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "vitaex_compliance_blocks_total",
			Help: "Outputs rejected by the compliance gate.",
		}),
		HandleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitaex_agent_handle_seconds",
			Help:    "Agent handler duration in seconds, by agent.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent"}),
	}
}
