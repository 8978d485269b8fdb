package graphstore

import (
	"context"
	"sort"
	"sync"

	"vitaex/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]Node
	edges map[string]Edge // from|relation|to -> edge
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nodes: make(map[string]Node),
		edges: make(map[string]Edge),
	}
}

func edgeKey(e Edge) string {
	return e.FromID + "|" + e.Relation + "|" + e.ToID
}

func (s *InMemoryStore) UpsertNode(_ context.Context, node Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = node
	return nil
}

func (s *InMemoryStore) UpsertEdge(_ context.Context, edge Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edgeKey(edge)] = edge
	return nil
}

func (s *InMemoryStore) Node(_ context.Context, nodeID string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[nodeID]
	if !ok {
		return Node{}, sentinel.ErrNotFound
	}
	return node, nil
}

func (s *InMemoryStore) Neighborhood(_ context.Context, nodeID string) ([]Edge, []Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []Edge
	seen := make(map[string]bool)
	var nodes []Node
	for _, e := range s.edges {
		if e.FromID != nodeID && e.ToID != nodeID {
			continue
		}
		edges = append(edges, e)
		far := e.FromID
		if far == nodeID {
			far = e.ToID
		}
		if node, ok := s.nodes[far]; ok && !seen[far] {
			seen[far] = true
			nodes = append(nodes, node)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edgeKey(edges[i]) < edgeKey(edges[j]) })
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return edges, nodes, nil
}
