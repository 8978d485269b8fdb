package oversight

import (
	"context"

	"vitaex/internal/agent"
	"vitaex/internal/event"
)

// Agent is the event-facing half of the service: it opens a review record for
// every review request the orchestrator emits. Decisions arrive out of band
// through the HTTP surface, so opening emits nothing.
type Agent struct {
	svc *Service
}

func NewAgent(svc *Service) *Agent {
	return &Agent{svc: svc}
}

func (a *Agent) ID() string { return "oversight" }

func (a *Agent) Routes() []agent.Route {
	return []agent.Route{{Consume: event.TopicProtocolReviewRequested, Emit: event.TopicProtocolReviewUpdated}}
}

func (a *Agent) Handle(ctx context.Context, ev event.Event) (agent.Result, error) {
	if _, err := a.svc.Open(ctx, ev); err != nil {
		return agent.Result{}, err
	}
	return agent.Result{}, nil
}
