package twin

import (
	"context"
	"fmt"
	"time"

	"vitaex/internal/agent"
	"vitaex/internal/event"
	"vitaex/internal/storage/timeseries"
)

// trendWindow is how far back trend classification looks.
const trendWindow = 30 * 24 * time.Hour

// trendThreshold is the relative change that separates stable from moving.
const trendThreshold = 0.05

// twinMetrics is every canonical metric the twin tracks, weighted or not.
var twinMetrics = []string{
	"hrv", "rhr", "sleep_hours", "sleep_efficiency",
	"activity_minutes", "recovery_score", "stress_level",
	"crp", "hba1c", "vitamin_d",
}

// UpdatedPayload is the completion payload of a twin update.
type UpdatedPayload struct {
	State State `json:"state"`
}

// Agent rebuilds a subject's twin from the timeseries store.
type Agent struct {
	series timeseries.Store
	store  Store
}

func New(series timeseries.Store, store Store) *Agent {
	return &Agent{series: series, store: store}
}

func (a *Agent) ID() string { return "twin" }

func (a *Agent) Routes() []agent.Route {
	return []agent.Route{{Consume: event.TopicTwinUpdateRequested, Emit: event.TopicTwinUpdateCompleted}}
}

func (a *Agent) Handle(ctx context.Context, ev event.Event) (agent.Result, error) {
	if ev.SubjectID.IsZero() {
		return agent.Result{}, agent.Permanent(fmt.Errorf("twin update without subject"))
	}

	latestMeasurements, err := a.series.Latest(ctx, ev.SubjectID, twinMetrics)
	if err != nil {
		return agent.Result{}, fmt.Errorf("load latest metrics: %w", err)
	}
	latest := make(map[string]float64, len(latestMeasurements))
	for metric, m := range latestMeasurements {
		latest[metric] = m.Value
	}

	vitality, contributions := vitalityScore(latest)
	now := ev.OccurredAt.UTC()

	trends := make(map[string]Trend)
	for metric := range latest {
		trend, err := a.trendFor(ctx, ev, metric, now)
		if err != nil {
			return agent.Result{}, err
		}
		trends[metric] = trend
	}

	state := State{
		SubjectID:     ev.SubjectID,
		Metrics:       latest,
		Vitality:      vitality,
		Contributions: contributions,
		BioAgeDelta:   bioAgeDelta(latest),
		Trends:        trends,
		UpdatedAt:     now,
	}
	if err := a.store.Save(ctx, state); err != nil {
		return agent.Result{}, fmt.Errorf("save twin state: %w", err)
	}

	completion, err := event.NewCompletion(
		event.TopicTwinUpdateCompleted, "twin.updated", ev,
		event.OutcomeSuccess, "", UpdatedPayload{State: state},
	)
	if err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Events: []event.Event{completion}}, nil
}

// trendFor compares the first and second half means of the window. Inverted
// metrics flip direction so "improving" always means better for the subject.
func (a *Agent) trendFor(ctx context.Context, ev event.Event, metric string, now time.Time) (Trend, error) {
	samples, err := a.series.Range(ctx, ev.SubjectID, metric, now.Add(-trendWindow), now.Add(time.Second))
	if err != nil {
		return "", fmt.Errorf("load %s trend window: %w", metric, err)
	}
	if len(samples) < 4 {
		return TrendStable, nil
	}

	half := len(samples) / 2
	earlier := mean(samples[:half])
	later := mean(samples[half:])
	if earlier == 0 {
		return TrendStable, nil
	}

	change := (later - earlier) / earlier
	if bound, ok := metricBounds[metric]; ok && bound.Inverted {
		change = -change
	}
	switch {
	case change > trendThreshold:
		return TrendImproving, nil
	case change < -trendThreshold:
		return TrendDeclining, nil
	default:
		return TrendStable, nil
	}
}

func mean(samples []timeseries.Measurement) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples))
}
