package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitaex/internal/agent"
	"vitaex/internal/agents/knowledge"
	"vitaex/internal/compliance"
	"vitaex/internal/event"
	"vitaex/internal/generation"
	"vitaex/internal/storage/graphstore"
	"vitaex/internal/storage/vector"
	id "vitaex/pkg/domain"
)

func seedKnowledge(t *testing.T, graph graphstore.Store, vec vector.Store) {
	t.Helper()
	importer := knowledge.New(graph, vec)
	ev, err := event.New(event.TopicKnowledgeImportRequested, "knowledge.import", "", id.NewCorrelationID(), knowledge.ImportRequest{
		References: []knowledge.Reference{
			{
				ID:            "pmid-1001",
				Title:         "Magnesium and sleep quality",
				Summary:       "Magnesium supplementation associated with better sleep efficiency.",
				Interventions: []string{"magnesium"},
				Outcomes:      []string{"sleep_quality"},
				Weight:        0.7,
			},
			{
				ID:            "pmid-2002",
				Title:         "Zone 2 training and resting heart rate",
				Summary:       "Regular aerobic base training lowers resting heart rate.",
				Interventions: []string{"zone2_training"},
				Outcomes:      []string{"cardio_fitness"},
				Weight:        0.6,
			},
		},
	})
	require.NoError(t, err)
	_, err = importer.Handle(context.Background(), ev)
	require.NoError(t, err)
}

func generateRequest(t *testing.T, req Request) event.Event {
	t.Helper()
	ev, err := event.New(event.TopicProtocolGenerateRequested, "protocol.generate", id.SubjectID("subj-1"), id.NewCorrelationID(), req)
	require.NoError(t, err)
	return ev
}

func TestAgent_GeneratesReferencedDraft(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := vector.NewInMemoryStore()
	seedKnowledge(t, graph, vec)
	a := New(vec, graph, nil)

	result, err := a.Handle(context.Background(), generateRequest(t, Request{
		Goal:  "Improve sleep quality with magnesium",
		Focus: []string{"sleep_quality"},
	}))
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, event.TopicProtocolGenerateCompleted, result.Events[0].Topic)

	var draft Draft
	require.NoError(t, result.Events[0].DecodePayload(&draft))
	assert.Contains(t, draft.Text, compliance.Disclaimer)
	require.NotEmpty(t, draft.References)

	ids := make(map[string]bool)
	for _, ref := range draft.References {
		ids[ref.ID] = true
	}
	assert.True(t, ids["pmid-1001"], "graph-linked reference must be retrieved")
}

func TestAgent_DeduplicatesHybridRetrieval(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := vector.NewInMemoryStore()
	seedKnowledge(t, graph, vec)
	a := New(vec, graph, nil)

	result, err := a.Handle(context.Background(), generateRequest(t, Request{
		Goal:  "Magnesium and sleep quality",
		Focus: []string{"sleep_quality"},
	}))
	require.NoError(t, err)

	var draft Draft
	require.NoError(t, result.Events[0].DecodePayload(&draft))

	seen := make(map[string]int)
	for _, ref := range draft.References {
		seen[ref.ID]++
	}
	for refID, n := range seen {
		assert.Equal(t, 1, n, "reference %s duplicated", refID)
	}
}

func TestAgent_CustomGeneratorStillGetsDisclaimer(t *testing.T) {
	graph := graphstore.NewInMemoryStore()
	vec := vector.NewInMemoryStore()
	a := New(vec, graph, func(context.Context, generation.Request) (string, error) {
		return "Evening wind-down routine.", nil
	})

	result, err := a.Handle(context.Background(), generateRequest(t, Request{Goal: "Sleep better"}))
	require.NoError(t, err)

	var draft Draft
	require.NoError(t, result.Events[0].DecodePayload(&draft))
	assert.Contains(t, draft.Text, compliance.Disclaimer)
}

func TestAgent_MissingGoalIsPermanent(t *testing.T) {
	a := New(vector.NewInMemoryStore(), graphstore.NewInMemoryStore(), nil)

	_, err := a.Handle(context.Background(), generateRequest(t, Request{Goal: "   "}))
	require.Error(t, err)
	assert.True(t, agent.IsPermanent(err))
}
