package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore stores embeddings in a pgvector column. The nearest query
// uses the cosine distance operator; score reported back is 1 - distance.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range docs {
		batch.Queue(`
			INSERT INTO reference_embeddings (id, text, metadata, embedding)
			VALUES ($1, $2, $3, $4::vector)
			ON CONFLICT (id) DO UPDATE
				SET text = EXCLUDED.text,
				    metadata = EXCLUDED.metadata,
				    embedding = EXCLUDED.embedding`,
			d.ID, d.Text, d.Metadata, encodeVector(d.Embedding),
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range docs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert embedding: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Nearest(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, text, metadata, embedding::text,
		       1 - (embedding <=> $1::vector) AS score
		FROM reference_embeddings
		ORDER BY embedding <=> $1::vector
		LIMIT $2`,
		encodeVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("nearest embeddings: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var encoded string
		if err := rows.Scan(&m.Document.ID, &m.Document.Text, &m.Document.Metadata, &encoded, &m.Score); err != nil {
			return nil, fmt.Errorf("scan embedding match: %w", err)
		}
		m.Document.Embedding, err = decodeVector(encoded)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// encodeVector renders the pgvector text literal, e.g. [0.1,0.2].
func encodeVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func decodeVector(s string) ([]float32, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("decode vector literal: %w", err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
