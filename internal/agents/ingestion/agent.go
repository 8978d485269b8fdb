// Package ingestion standardizes raw wearable and lab signals into canonical
// measurements. Vendor payloads never travel past this agent; everything
// downstream sees canonical metric names and units only.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"vitaex/internal/agent"
	"vitaex/internal/event"
	"vitaex/internal/storage/timeseries"
)

// RawSample is one vendor-shaped reading inside a raw signal batch.
type RawSample struct {
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RawSignal is the payload of a standardize request.
type RawSignal struct {
	Source  string      `json:"source"`
	Kind    string      `json:"kind"` // wearable | lab | questionnaire
	Samples []RawSample `json:"samples"`
}

// StandardizedPayload is the completion payload: the canonical measurements
// that were persisted.
type StandardizedPayload struct {
	Source       string                   `json:"source"`
	Measurements []timeseries.Measurement `json:"measurements"`
}

// canonical maps vendor metric names onto the canonical catalogue. The map is
// the standardization boundary: adding a vendor means adding rows here, not
// touching consumers.
var canonical = map[string]struct {
	Metric string
	Unit   string
}{
	"hrv":              {"hrv", "ms"},
	"hrv_rmssd":        {"hrv", "ms"},
	"rmssd":            {"hrv", "ms"},
	"resting_hr":       {"rhr", "bpm"},
	"hr_rest":          {"rhr", "bpm"},
	"rhr":              {"rhr", "bpm"},
	"sleep_duration":   {"sleep_hours", "h"},
	"sleep_hours":      {"sleep_hours", "h"},
	"sleep_eff":        {"sleep_efficiency", "ratio"},
	"sleep_efficiency": {"sleep_efficiency", "ratio"},
	"active_minutes":   {"activity_minutes", "min"},
	"activity":         {"activity_minutes", "min"},
	"recovery":         {"recovery_score", "score"},
	"recovery_score":   {"recovery_score", "score"},
	"stress":           {"stress_level", "score"},
	"stress_level":     {"stress_level", "score"},
	"crp":              {"crp", "mg/L"},
	"hba1c":            {"hba1c", "%"},
	"vitamin_d":        {"vitamin_d", "ng/mL"},
}

// Agent standardizes and persists raw signals.
type Agent struct {
	store timeseries.Store
}

func New(store timeseries.Store) *Agent {
	return &Agent{store: store}
}

func (a *Agent) ID() string { return "ingestion" }

func (a *Agent) Routes() []agent.Route {
	return []agent.Route{{Consume: event.TopicStandardizeRequested, Emit: event.TopicIngestionStandardized}}
}

func (a *Agent) Handle(ctx context.Context, ev event.Event) (agent.Result, error) {
	var signal RawSignal
	if err := ev.DecodePayload(&signal); err != nil {
		return agent.Result{}, agent.Permanent(err)
	}
	if len(signal.Samples) == 0 {
		return agent.Result{}, agent.Permanent(fmt.Errorf("raw signal from %q has no samples", signal.Source))
	}

	measurements := make([]timeseries.Measurement, 0, len(signal.Samples))
	var skipped []string
	for _, sample := range signal.Samples {
		mapping, ok := canonical[sample.Metric]
		if !ok {
			skipped = append(skipped, sample.Metric)
			continue
		}
		recordedAt := sample.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = ev.OccurredAt
		}
		measurements = append(measurements, timeseries.Measurement{
			SubjectID:  ev.SubjectID,
			Metric:     mapping.Metric,
			Value:      sample.Value,
			Unit:       mapping.Unit,
			Source:     signal.Source,
			RecordedAt: recordedAt.UTC(),
		})
	}
	if len(measurements) == 0 {
		return agent.Result{}, agent.Permanent(fmt.Errorf("no recognizable metrics in signal from %q (skipped %v)", signal.Source, skipped))
	}

	if err := a.store.Append(ctx, measurements); err != nil {
		return agent.Result{}, fmt.Errorf("persist measurements: %w", err)
	}

	completion, err := event.NewCompletion(
		event.TopicIngestionStandardized, "ingestion.standardized", ev,
		event.OutcomeSuccess, "",
		StandardizedPayload{Source: signal.Source, Measurements: measurements},
	)
	if err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Events: []event.Event{completion}}, nil
}
