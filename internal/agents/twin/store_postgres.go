package twin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
)

// PostgresStore keeps snapshots as jsonb rows keyed by subject. The twin is a
// rebuildable read model, so a plain upsert is enough.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, state State) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode twin state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO twin_states (subject_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id) DO UPDATE
			SET state = EXCLUDED.state,
			    updated_at = EXCLUDED.updated_at`,
		state.SubjectID.String(), encoded, state.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save twin state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, subject id.SubjectID) (State, error) {
	var encoded []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM twin_states WHERE subject_id = $1`,
		subject.String(),
	).Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, sentinel.ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("load twin state: %w", err)
	}
	var state State
	if err := json.Unmarshal(encoded, &state); err != nil {
		return State{}, fmt.Errorf("decode twin state: %w", err)
	}
	return state, nil
}
