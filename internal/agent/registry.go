package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"vitaex/internal/agent/processing"
	"vitaex/internal/audit"
	"vitaex/internal/eventlog"
	"vitaex/internal/platform/metrics"
)

// Registry owns the full set of agents for one deployment. All agents are
// registered before Start; there is no dynamic discovery. Each agent consumes
// through its own consumer group, so every agent sees every event on its
// topics exactly once per group.
type Registry struct {
	log       eventlog.Log
	ledger    processing.Store
	audit     *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	policy    RetryPolicy
	baseGroup string

	runtimes []*Runtime
	ids      map[string]bool
	running  atomic.Bool
}

func NewRegistry(log eventlog.Log, ledger processing.Store, auditPub *audit.Publisher, m *metrics.Metrics, logger *slog.Logger, policy RetryPolicy, baseGroup string) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		log:       log,
		ledger:    ledger,
		audit:     auditPub,
		metrics:   m,
		logger:    logger,
		policy:    policy,
		baseGroup: baseGroup,
		ids:       make(map[string]bool),
	}
}

// Register adds an agent. Registration after Start and duplicate agent ids
// are wiring bugs, reported as errors rather than silently tolerated.
func (r *Registry) Register(h Handler) error {
	if r.running.Load() {
		return fmt.Errorf("register %s: registry already started", h.ID())
	}
	if r.ids[h.ID()] {
		return fmt.Errorf("register %s: duplicate agent id", h.ID())
	}
	if len(h.Routes()) == 0 {
		return fmt.Errorf("register %s: agent has no routes", h.ID())
	}
	r.ids[h.ID()] = true
	r.runtimes = append(r.runtimes, NewRuntime(h, r.ledger, r.log, r.audit, r.metrics, r.logger, r.policy))
	return nil
}

// Start subscribes every registered agent and blocks until ctx is cancelled
// or a subscription fails. Each agent gets its own consumer group derived
// from the base group, so agents sharing a topic each receive every event.
func (r *Registry) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("registry already started")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, rt := range r.runtimes {
		topics := make([]string, 0, len(rt.handler.Routes()))
		for _, route := range rt.handler.Routes() {
			topics = append(topics, route.Consume)
		}
		group := r.baseGroup + "-" + rt.handler.ID()
		r.logger.Info("starting agent",
			"agent", rt.handler.ID(),
			"group", group,
			"topics", topics,
		)
		g.Go(func() error {
			if err := r.log.Subscribe(ctx, group, topics, rt.Process); err != nil && ctx.Err() == nil {
				return fmt.Errorf("agent %s subscription: %w", rt.handler.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Ready reports whether the registry has been started.
func (r *Registry) Ready() bool {
	return r.running.Load()
}

// AgentIDs lists registered agents, for the readiness endpoint.
func (r *Registry) AgentIDs() []string {
	out := make([]string, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		out = append(out, rt.handler.ID())
	}
	return out
}
