package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitaex/internal/agent"
	"vitaex/internal/event"
	"vitaex/internal/storage/timeseries"
	id "vitaex/pkg/domain"
)

func standardizeRequest(t *testing.T, signal RawSignal) event.Event {
	t.Helper()
	ev, err := event.New(event.TopicStandardizeRequested, "ingestion.standardize", id.SubjectID("subj-1"), id.NewCorrelationID(), signal)
	require.NoError(t, err)
	return ev
}

func TestAgent_StandardizesVendorMetrics(t *testing.T) {
	store := timeseries.NewInMemoryStore()
	a := New(store)
	at := time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)

	result, err := a.Handle(context.Background(), standardizeRequest(t, RawSignal{
		Source: "oura",
		Kind:   "wearable",
		Samples: []RawSample{
			{Metric: "hrv_rmssd", Value: 62, Unit: "ms", RecordedAt: at},
			{Metric: "hr_rest", Value: 55, Unit: "bpm", RecordedAt: at},
			{Metric: "sleep_duration", Value: 7.4, Unit: "h", RecordedAt: at},
			{Metric: "step_cadence", Value: 120, RecordedAt: at}, // unknown, skipped
		},
	}))
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	completion := result.Events[0]
	assert.Equal(t, event.TopicIngestionStandardized, completion.Topic)
	assert.Equal(t, event.OutcomeSuccess, completion.Outcome)

	var payload StandardizedPayload
	require.NoError(t, completion.DecodePayload(&payload))
	require.Len(t, payload.Measurements, 3)

	hrv, err := store.Range(context.Background(), "subj-1", "hrv", at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, hrv, 1)
	assert.Equal(t, 62.0, hrv[0].Value)
	assert.Equal(t, "ms", hrv[0].Unit)
}

func TestAgent_EmptySignalIsPermanent(t *testing.T) {
	a := New(timeseries.NewInMemoryStore())

	_, err := a.Handle(context.Background(), standardizeRequest(t, RawSignal{Source: "oura"}))
	require.Error(t, err)
	assert.True(t, agent.IsPermanent(err))
}

func TestAgent_AllUnknownMetricsIsPermanent(t *testing.T) {
	a := New(timeseries.NewInMemoryStore())

	_, err := a.Handle(context.Background(), standardizeRequest(t, RawSignal{
		Source:  "mystery-band",
		Samples: []RawSample{{Metric: "chakra_flux", Value: 9}},
	}))
	require.Error(t, err)
	assert.True(t, agent.IsPermanent(err))
}
