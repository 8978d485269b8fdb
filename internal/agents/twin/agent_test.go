package twin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitaex/internal/event"
	"vitaex/internal/storage/timeseries"
	id "vitaex/pkg/domain"
)

func TestVitalityScore_WeightedComposite(t *testing.T) {
	// All metrics at their best bound score 1.0 regardless of weights.
	score, contributions := vitalityScore(map[string]float64{
		"hrv":              120,
		"sleep_efficiency": 1.0,
		"activity_minutes": 90,
		"recovery_score":   100,
		"stress_level":     0,
		"rhr":              40,
	})
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.Len(t, contributions, 6)
}

func TestVitalityScore_MissingMetricsRenormalize(t *testing.T) {
	// Only HRV present, midway through its band: composite equals its
	// normalized score, not a quarter of it.
	score, _ := vitalityScore(map[string]float64{"hrv": 70})
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestVitalityScore_NoMetricsDefaults(t *testing.T) {
	score, contributions := vitalityScore(nil)
	assert.Equal(t, defaultVitality, score)
	assert.Empty(t, contributions)
}

func TestVitalityScore_InvertedMetrics(t *testing.T) {
	// High stress scores low.
	low, _ := vitalityScore(map[string]float64{"stress_level": 90})
	high, _ := vitalityScore(map[string]float64{"stress_level": 10})
	assert.Less(t, low, high)
}

func TestBioAgeDelta(t *testing.T) {
	assert.Equal(t, 0.0, bioAgeDelta(nil))
	assert.Equal(t, 5.0, bioAgeDelta(map[string]float64{"crp": 4, "hba1c": 6.0, "vitamin_d": 15}))
	assert.Equal(t, -3.0, bioAgeDelta(map[string]float64{"crp": 0.5, "hba1c": 5.0, "vitamin_d": 50}))
	assert.Equal(t, 0.0, bioAgeDelta(map[string]float64{"crp": 2, "hba1c": 5.5, "vitamin_d": 30}))
}

func seedSeries(t *testing.T, series timeseries.Store, subject id.SubjectID, metric string, base time.Time, values []float64) {
	t.Helper()
	var batch []timeseries.Measurement
	for i, v := range values {
		batch = append(batch, timeseries.Measurement{
			SubjectID:  subject,
			Metric:     metric,
			Value:      v,
			Source:     "oura",
			RecordedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		})
	}
	require.NoError(t, series.Append(context.Background(), batch))
}

func TestAgent_RebuildsStateAndTrends(t *testing.T) {
	series := timeseries.NewInMemoryStore()
	store := NewInMemoryStore()
	a := New(series, store)

	subject := id.SubjectID("subj-1")
	now := time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)
	base := now.Add(-20 * 24 * time.Hour)

	seedSeries(t, series, subject, "hrv", base, []float64{50, 52, 55, 60, 64, 68})
	seedSeries(t, series, subject, "rhr", base, []float64{60, 60, 58, 56, 55, 54})
	seedSeries(t, series, subject, "crp", base, []float64{4.2})

	ev, err := event.New(event.TopicTwinUpdateRequested, "twin.update", subject, id.NewCorrelationID(), nil)
	require.NoError(t, err)
	ev.OccurredAt = now

	result, err := a.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, event.TopicTwinUpdateCompleted, result.Events[0].Topic)

	state, err := store.Load(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, 68.0, state.Metrics["hrv"])
	assert.Equal(t, 2.0, state.BioAgeDelta)
	assert.Equal(t, TrendImproving, state.Trends["hrv"])
	// Falling resting heart rate is an improvement.
	assert.Equal(t, TrendImproving, state.Trends["rhr"])
	assert.Greater(t, state.Vitality, 0.0)

	var payload UpdatedPayload
	require.NoError(t, result.Events[0].DecodePayload(&payload))
	assert.Equal(t, state.Vitality, payload.State.Vitality)
}

func TestAgent_NoDataStillProducesState(t *testing.T) {
	a := New(timeseries.NewInMemoryStore(), NewInMemoryStore())

	ev, err := event.New(event.TopicTwinUpdateRequested, "twin.update", "subj-empty", id.NewCorrelationID(), nil)
	require.NoError(t, err)

	result, err := a.Handle(context.Background(), ev)
	require.NoError(t, err)

	var payload UpdatedPayload
	require.NoError(t, result.Events[0].DecodePayload(&payload))
	assert.Equal(t, defaultVitality, payload.State.Vitality)
}
