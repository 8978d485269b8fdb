package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
)

// PostgresRunStore keeps runs as jsonb rows with status and updated_at
// mirrored into columns so the sweeper query stays indexable.
type PostgresRunStore struct {
	pool *pgxpool.Pool
}

func NewPostgresRunStore(pool *pgxpool.Pool) *PostgresRunStore {
	return &PostgresRunStore{pool: pool}
}

func (s *PostgresRunStore) Save(ctx context.Context, run Run) error {
	encoded, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO task_runs (correlation_id, status, updated_at, record)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (correlation_id) DO UPDATE
			SET status = EXCLUDED.status,
			    updated_at = EXCLUDED.updated_at,
			    record = EXCLUDED.record`,
		run.CorrelationID.String(), string(run.Status), run.UpdatedAt.UTC(), encoded,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) Load(ctx context.Context, correlationID id.CorrelationID) (Run, error) {
	var encoded []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM task_runs WHERE correlation_id = $1`,
		correlationID.String(),
	).Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("load run: %w", err)
	}
	var run Run
	if err := json.Unmarshal(encoded, &run); err != nil {
		return Run{}, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}

func (s *PostgresRunStore) ListStale(ctx context.Context, status Status, cutoff time.Time) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT record FROM task_runs
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC`,
		string(status), cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list stale runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var encoded []byte
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var run Run
		if err := json.Unmarshal(encoded, &run); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
