// Package graphstore persists the research knowledge graph: interventions,
// biomarkers, outcomes and the evidence edges between them.
package graphstore

import (
	"context"
	"time"
)

// Node kinds in the knowledge graph.
const (
	KindIntervention = "intervention"
	KindBiomarker    = "biomarker"
	KindOutcome      = "outcome"
	KindReference    = "reference"
)

// Node is one graph vertex. ID is caller-assigned and stable, so re-importing
// the same reference upserts rather than duplicates.
type Node struct {
	ID         string
	Kind       string
	Label      string
	Properties map[string]string
	UpdatedAt  time.Time
}

// Edge is a directed, labeled relation between nodes. Weight carries evidence
// strength in [0,1].
type Edge struct {
	FromID    string
	ToID      string
	Relation  string
	Weight    float64
	UpdatedAt time.Time
}

// Store upserts and queries the graph. No traversal logic beyond a one-hop
// neighborhood lives here.
type Store interface {
	UpsertNode(ctx context.Context, node Node) error
	UpsertEdge(ctx context.Context, edge Edge) error

	// Node returns the node by id, or sentinel.ErrNotFound.
	Node(ctx context.Context, nodeID string) (Node, error)

	// Neighborhood returns all edges touching nodeID together with the
	// nodes on their far ends.
	Neighborhood(ctx context.Context, nodeID string) ([]Edge, []Node, error)
}
