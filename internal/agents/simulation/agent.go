// Package simulation answers what-if questions against the twin's vitality
// baseline. The model is deliberately small and interpretable: fixed
// per-lever coefficients, clamped output, no learned parameters.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"vitaex/internal/agent"
	"vitaex/internal/agents/twin"
	"vitaex/internal/compliance"
	"vitaex/internal/event"
	"vitaex/pkg/platform/sentinel"
)

// Per-lever coefficients of the projection model. An hour of extra sleep or
// activity moves vitality by 0.05; full stress reduction moves it by 0.07.
const (
	sleepCoefficient    = 0.05
	activityCoefficient = 0.05
	stressCoefficient   = 0.07

	// hrvPerVitality converts a vitality delta into an expected HRV shift
	// in milliseconds.
	hrvPerVitality = 15.0
)

// Scenario is the payload of a simulation request. Deltas are minutes per
// day; StressReduction is a fraction of current stress in [0,1].
type Scenario struct {
	BaselineVitality float64 `json:"baseline_vitality,omitempty"`
	SleepDelta       float64 `json:"sleep_delta_minutes"`
	ActivityDelta    float64 `json:"activity_delta_minutes"`
	StressReduction  float64 `json:"stress_reduction"`
}

// Projection is the completion payload.
type Projection struct {
	BaselineVitality  float64 `json:"baseline_vitality"`
	ProjectedVitality float64 `json:"projected_vitality"`
	VitalityDelta     float64 `json:"vitality_delta"`
	HRVDelta          float64 `json:"hrv_delta_ms"`
	Narrative         string  `json:"narrative"`
}

// Agent projects scenarios against the stored twin baseline.
type Agent struct {
	twins twin.Store
}

func New(twins twin.Store) *Agent {
	return &Agent{twins: twins}
}

func (a *Agent) ID() string { return "simulation" }

func (a *Agent) Routes() []agent.Route {
	return []agent.Route{{Consume: event.TopicSimulationRequested, Emit: event.TopicSimulationCompleted}}
}

func (a *Agent) Handle(ctx context.Context, ev event.Event) (agent.Result, error) {
	var scenario Scenario
	if err := ev.DecodePayload(&scenario); err != nil {
		return agent.Result{}, agent.Permanent(err)
	}
	if scenario.StressReduction < 0 || scenario.StressReduction > 1 {
		return agent.Result{}, agent.Permanent(fmt.Errorf("stress reduction %v outside [0,1]", scenario.StressReduction))
	}

	baseline := scenario.BaselineVitality
	if baseline <= 0 {
		state, err := a.twins.Load(ctx, ev.SubjectID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			baseline = 0.5
		case err != nil:
			return agent.Result{}, fmt.Errorf("load twin baseline: %w", err)
		default:
			baseline = state.Vitality
		}
	}

	projected := baseline +
		scenario.SleepDelta/60*sleepCoefficient +
		scenario.ActivityDelta/60*activityCoefficient +
		scenario.StressReduction*stressCoefficient
	projected = math.Max(0, math.Min(1, projected))

	delta := projected - baseline
	projection := Projection{
		BaselineVitality:  baseline,
		ProjectedVitality: projected,
		VitalityDelta:     delta,
		HRVDelta:          delta * hrvPerVitality,
		Narrative: compliance.WithDisclaimer(fmt.Sprintf(
			"If sustained, this scenario may move vitality from %.2f to %.2f (HRV shift around %+.1f ms).",
			baseline, projected, delta*hrvPerVitality,
		)),
	}

	completion, err := event.NewCompletion(
		event.TopicSimulationCompleted, "simulation.projected", ev,
		event.OutcomeSuccess, "", projection,
	)
	if err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Events: []event.Event{completion}}, nil
}
