// Package knowledge imports research references into the knowledge graph and
// the embedding store. Imports are idempotent: reference ids are stable, so a
// replayed batch upserts the same nodes, edges and vectors.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"vitaex/internal/agent"
	"vitaex/internal/event"
	"vitaex/internal/generation"
	"vitaex/internal/storage/graphstore"
	"vitaex/internal/storage/vector"
)

// EmbeddingDim is the dimension every stored embedding uses.
const EmbeddingDim = 64

// Reference is one research item in an import request.
type Reference struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Interventions []string `json:"interventions"`
	Outcomes      []string `json:"outcomes"`
	Weight        float64  `json:"weight"`
}

// ImportRequest is the payload of knowledge.import.requested.
type ImportRequest struct {
	References []Reference `json:"references"`
}

// ImportedPayload is the completion payload.
type ImportedPayload struct {
	Imported int `json:"imported"`
	Nodes    int `json:"nodes"`
	Edges    int `json:"edges"`
}

type Agent struct {
	graph  graphstore.Store
	vector vector.Store
}

func New(graph graphstore.Store, vec vector.Store) *Agent {
	return &Agent{graph: graph, vector: vec}
}

func (a *Agent) ID() string { return "knowledge" }

func (a *Agent) Routes() []agent.Route {
	return []agent.Route{{Consume: event.TopicKnowledgeImportRequested, Emit: event.TopicKnowledgeImportCompleted}}
}

func (a *Agent) Handle(ctx context.Context, ev event.Event) (agent.Result, error) {
	var req ImportRequest
	if err := ev.DecodePayload(&req); err != nil {
		return agent.Result{}, agent.Permanent(err)
	}
	if len(req.References) == 0 {
		return agent.Result{}, agent.Permanent(fmt.Errorf("import request carries no references"))
	}

	now := ev.OccurredAt.UTC()
	var nodes, edges int
	docs := make([]vector.Document, 0, len(req.References))

	for _, ref := range req.References {
		if ref.ID == "" {
			return agent.Result{}, agent.Permanent(fmt.Errorf("reference without id in import request"))
		}
		weight := ref.Weight
		if weight <= 0 || weight > 1 {
			weight = 0.5
		}

		refNode := graphstore.Node{
			ID:        "ref:" + ref.ID,
			Kind:      graphstore.KindReference,
			Label:     ref.Title,
			UpdatedAt: now,
		}
		if err := a.graph.UpsertNode(ctx, refNode); err != nil {
			return agent.Result{}, fmt.Errorf("upsert reference node: %w", err)
		}
		nodes++

		for _, intervention := range ref.Interventions {
			if err := a.upsertLinked(ctx, refNode.ID, intervention, graphstore.KindIntervention, "evidence_for", weight, now, &nodes, &edges); err != nil {
				return agent.Result{}, err
			}
		}
		for _, outcome := range ref.Outcomes {
			if err := a.upsertLinked(ctx, refNode.ID, outcome, graphstore.KindOutcome, "reports", weight, now, &nodes, &edges); err != nil {
				return agent.Result{}, err
			}
		}
		for _, intervention := range ref.Interventions {
			for _, outcome := range ref.Outcomes {
				edge := graphstore.Edge{
					FromID:    graphstore.KindIntervention + ":" + intervention,
					ToID:      graphstore.KindOutcome + ":" + outcome,
					Relation:  "supports",
					Weight:    weight,
					UpdatedAt: now,
				}
				if err := a.graph.UpsertEdge(ctx, edge); err != nil {
					return agent.Result{}, fmt.Errorf("upsert supports edge: %w", err)
				}
				edges++
			}
		}

		docs = append(docs, vector.Document{
			ID:   ref.ID,
			Text: ref.Title + "\n" + ref.Summary,
			Metadata: map[string]string{
				"title": ref.Title,
			},
			Embedding: generation.Embed(ref.Title+" "+ref.Summary, EmbeddingDim),
		})
	}

	if err := a.vector.Upsert(ctx, docs); err != nil {
		return agent.Result{}, fmt.Errorf("upsert embeddings: %w", err)
	}

	payload := ImportedPayload{Imported: len(req.References), Nodes: nodes, Edges: edges}
	completed, err := event.NewCompletion(event.TopicKnowledgeImportCompleted, "knowledge.imported", ev, event.OutcomeSuccess, "", payload)
	if err != nil {
		return agent.Result{}, err
	}
	graphUpdated, err := event.NewCompletion(event.TopicGraphUpdated, "graph.updated", ev, event.OutcomeSuccess, "", payload)
	if err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Events: []event.Event{completed, graphUpdated}}, nil
}

func (a *Agent) upsertLinked(ctx context.Context, refNodeID, label, kind, relation string, weight float64, now time.Time, nodes, edges *int) error {
	node := graphstore.Node{
		ID:        kind + ":" + label,
		Kind:      kind,
		Label:     label,
		UpdatedAt: now,
	}
	if err := a.graph.UpsertNode(ctx, node); err != nil {
		return fmt.Errorf("upsert %s node: %w", kind, err)
	}
	*nodes++
	edge := graphstore.Edge{
		FromID:    refNodeID,
		ToID:      node.ID,
		Relation:  relation,
		Weight:    weight,
		UpdatedAt: now,
	}
	if err := a.graph.UpsertEdge(ctx, edge); err != nil {
		return fmt.Errorf("upsert %s edge: %w", relation, err)
	}
	*edges++
	return nil
}
