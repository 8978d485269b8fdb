// Package protocol turns a wellness goal into a referenced protocol draft.
// Retrieval is hybrid: embedding similarity over the reference store plus a
// graph walk from the focus outcomes, deduplicated by reference id. The text
// itself comes from the pluggable generation function.
package protocol

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"vitaex/internal/agent"
	"vitaex/internal/agents/knowledge"
	"vitaex/internal/compliance"
	"vitaex/internal/event"
	"vitaex/internal/generation"
	"vitaex/internal/storage/graphstore"
	"vitaex/internal/storage/vector"
)

// retrievalLimit caps how many embedding hits feed the generator.
const retrievalLimit = 5

// Request is the payload of protocol.generate.requested.
type Request struct {
	Goal  string   `json:"goal"`
	Focus []string `json:"focus"`
}

// Draft is the completion payload. Text always carries the disclaimer; the
// compliance gate downstream still judges it before anything reaches the
// subject.
type Draft struct {
	Goal       string                 `json:"goal"`
	Text       string                 `json:"text"`
	References []generation.Reference `json:"references"`
}

type Agent struct {
	vector   vector.Store
	graph    graphstore.Store
	generate generation.Func
}

func New(vec vector.Store, graph graphstore.Store, generate generation.Func) *Agent {
	if generate == nil {
		generate = generation.Deterministic
	}
	return &Agent{vector: vec, graph: graph, generate: generate}
}

func (a *Agent) ID() string { return "protocol" }

func (a *Agent) Routes() []agent.Route {
	return []agent.Route{{Consume: event.TopicProtocolGenerateRequested, Emit: event.TopicProtocolGenerateCompleted}}
}

func (a *Agent) Handle(ctx context.Context, ev event.Event) (agent.Result, error) {
	var req Request
	if err := ev.DecodePayload(&req); err != nil {
		return agent.Result{}, agent.Permanent(err)
	}
	if strings.TrimSpace(req.Goal) == "" {
		return agent.Result{}, agent.Permanent(fmt.Errorf("protocol request without goal"))
	}

	references, err := a.retrieve(ctx, req)
	if err != nil {
		return agent.Result{}, err
	}

	text, err := a.generate(ctx, generation.Request{
		Subject:    ev.SubjectID,
		Goal:       req.Goal,
		Focus:      req.Focus,
		References: references,
	})
	if err != nil {
		return agent.Result{}, fmt.Errorf("generate protocol: %w", err)
	}
	text = compliance.WithDisclaimer(text)

	completion, err := event.NewCompletion(
		event.TopicProtocolGenerateCompleted, "protocol.generated", ev,
		event.OutcomeSuccess, "",
		Draft{Goal: req.Goal, Text: text, References: references},
	)
	if err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Events: []event.Event{completion}}, nil
}

// retrieve merges embedding hits for the goal text with graph evidence for
// the focus outcomes. Graph-sourced hits score by edge weight; a reference
// found both ways keeps its higher score.
func (a *Agent) retrieve(ctx context.Context, req Request) ([]generation.Reference, error) {
	byID := make(map[string]generation.Reference)

	query := req.Goal + " " + strings.Join(req.Focus, " ")
	matches, err := a.vector.Nearest(ctx, generation.Embed(query, knowledge.EmbeddingDim), retrievalLimit)
	if err != nil {
		return nil, fmt.Errorf("embedding retrieval: %w", err)
	}
	for _, m := range matches {
		byID[m.Document.ID] = generation.Reference{
			ID:      m.Document.ID,
			Title:   m.Document.Metadata["title"],
			Summary: m.Document.Text,
			Score:   m.Score,
		}
	}

	for _, focus := range req.Focus {
		edges, nodes, err := a.graph.Neighborhood(ctx, graphstore.KindOutcome+":"+focus)
		if err != nil {
			return nil, fmt.Errorf("graph retrieval for %s: %w", focus, err)
		}
		labels := make(map[string]string, len(nodes))
		for _, n := range nodes {
			labels[n.ID] = n.Label
		}
		for _, e := range edges {
			refID, ok := strings.CutPrefix(e.FromID, "ref:")
			if !ok {
				continue
			}
			existing, seen := byID[refID]
			if !seen || e.Weight > existing.Score {
				byID[refID] = generation.Reference{
					ID:      refID,
					Title:   labels[e.FromID],
					Summary: existing.Summary,
					Score:   e.Weight,
				}
			}
		}
	}

	out := make([]generation.Reference, 0, len(byID))
	for _, ref := range byID {
		out = append(out, ref)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
