package graphstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vitaex/pkg/platform/sentinel"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertNode(ctx context.Context, node Node) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO graph_nodes (id, kind, label, properties, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
			SET kind = EXCLUDED.kind,
			    label = EXCLUDED.label,
			    properties = EXCLUDED.properties,
			    updated_at = EXCLUDED.updated_at`,
		node.ID, node.Kind, node.Label, node.Properties, node.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert graph node %s: %w", node.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertEdge(ctx context.Context, edge Edge) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO graph_edges (from_id, to_id, relation, weight, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (from_id, to_id, relation) DO UPDATE
			SET weight = EXCLUDED.weight,
			    updated_at = EXCLUDED.updated_at`,
		edge.FromID, edge.ToID, edge.Relation, edge.Weight, edge.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert graph edge %s-%s: %w", edge.FromID, edge.ToID, err)
	}
	return nil
}

func (s *PostgresStore) Node(ctx context.Context, nodeID string) (Node, error) {
	var node Node
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, label, properties, updated_at
		FROM graph_nodes WHERE id = $1`, nodeID,
	).Scan(&node.ID, &node.Kind, &node.Label, &node.Properties, &node.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Node{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Node{}, fmt.Errorf("load graph node %s: %w", nodeID, err)
	}
	return node, nil
}

func (s *PostgresStore) Neighborhood(ctx context.Context, nodeID string) ([]Edge, []Node, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT from_id, to_id, relation, weight, updated_at
		FROM graph_edges
		WHERE from_id = $1 OR to_id = $1
		ORDER BY from_id, relation, to_id`, nodeID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("load neighborhood of %s: %w", nodeID, err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.FromID, &e.ToID, &e.Relation, &e.Weight, &e.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan graph edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	nodeRows, err := s.pool.Query(ctx, `
		SELECT DISTINCT n.id, n.kind, n.label, n.properties, n.updated_at
		FROM graph_nodes n
		JOIN graph_edges e ON (n.id = e.from_id OR n.id = e.to_id)
		WHERE (e.from_id = $1 OR e.to_id = $1) AND n.id <> $1
		ORDER BY n.id`, nodeID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("load neighbors of %s: %w", nodeID, err)
	}
	defer nodeRows.Close()

	var nodes []Node
	for nodeRows.Next() {
		var n Node
		if err := nodeRows.Scan(&n.ID, &n.Kind, &n.Label, &n.Properties, &n.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan graph node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return edges, nodes, nodeRows.Err()
}
