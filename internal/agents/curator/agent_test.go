package curator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitaex/internal/agent"
	"vitaex/internal/compliance"
	"vitaex/internal/event"
	id "vitaex/pkg/domain"
)

func recommendationRequest(t *testing.T, req Request) event.Event {
	t.Helper()
	ev, err := event.New(event.TopicRecommendationRequested, "recommendation.request", "subj-1", id.NewCorrelationID(), req)
	require.NoError(t, err)
	return ev
}

func TestAgent_MatchesByFocusTags(t *testing.T) {
	a := New()

	result, err := a.Handle(context.Background(), recommendationRequest(t, Request{
		Focus: []string{"sleep", "stress"},
	}))
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	var recs Recommendations
	require.NoError(t, result.Events[0].DecodePayload(&recs))
	require.NotEmpty(t, recs.Products)
	assert.LessOrEqual(t, len(recs.Products), maxRecommendations)
	assert.Equal(t, compliance.Disclaimer, recs.Disclaimer)

	// Both-tag products outrank single-tag products.
	assert.Contains(t, []string{"supp-ashwagandha", "supp-mag-gly"}, recs.Products[0].SKU)
}

func TestAgent_GoalWordsAlsoMatch(t *testing.T) {
	a := New()

	result, err := a.Handle(context.Background(), recommendationRequest(t, Request{
		Goal: "build cardio_fitness this spring",
	}))
	require.NoError(t, err)

	var recs Recommendations
	require.NoError(t, result.Events[0].DecodePayload(&recs))
	require.NotEmpty(t, recs.Products)

	var skus []string
	for _, p := range recs.Products {
		skus = append(skus, p.SKU)
	}
	assert.Contains(t, skus, "gear-hr-strap")
}

func TestAgent_NoMatchReturnsEmptyList(t *testing.T) {
	a := New()

	result, err := a.Handle(context.Background(), recommendationRequest(t, Request{
		Focus: []string{"telepathy"},
	}))
	require.NoError(t, err)

	var recs Recommendations
	require.NoError(t, result.Events[0].DecodePayload(&recs))
	assert.Empty(t, recs.Products)
}

func TestAgent_RationalesPassGate(t *testing.T) {
	a := New()

	result, err := a.Handle(context.Background(), recommendationRequest(t, Request{
		Focus: []string{"sleep", "recovery", "energy", "cardio_fitness", "stress"},
	}))
	require.NoError(t, err)

	var recs Recommendations
	require.NoError(t, result.Events[0].DecodePayload(&recs))
	for _, p := range recs.Products {
		finding := compliance.Inspect(compliance.WithDisclaimer(p.Rationale))
		assert.True(t, finding.Passed, "product %s rationale: %v", p.SKU, finding.Matches)
	}
}

func TestAgent_EmptyRequestIsPermanent(t *testing.T) {
	a := New()

	_, err := a.Handle(context.Background(), recommendationRequest(t, Request{}))
	require.Error(t, err)
	assert.True(t, agent.IsPermanent(err))
}
