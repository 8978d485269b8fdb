package processing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
)

// PostgresStore keeps the ledger durable across restarts. The conditional
// upsert in Claim is a single statement, so the database serializes racing
// claimers without advisory locks.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Claim(ctx context.Context, agentID string, eventID id.EventID) (Record, error) {
	rec := Record{AgentID: agentID, EventID: eventID}

	var processedAt *time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agent_processing (agent_id, event_id, outcome, attempts)
		VALUES ($1, $2, 'pending', 1)
		ON CONFLICT (agent_id, event_id) DO UPDATE
			SET attempts = agent_processing.attempts + 1
			WHERE agent_processing.outcome = 'pending'
		RETURNING outcome, attempts, result, processed_at`,
		agentID, eventID.String(),
	).Scan(&rec.Outcome, &rec.Attempts, &rec.Result, &processedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict with a completed record: the DO UPDATE predicate
		// rejected the row. Read it back and report the duplicate.
		err = s.pool.QueryRow(ctx, `
			SELECT outcome, attempts, result, processed_at
			FROM agent_processing
			WHERE agent_id = $1 AND event_id = $2`,
			agentID, eventID.String(),
		).Scan(&rec.Outcome, &rec.Attempts, &rec.Result, &processedAt)
		if err != nil {
			return Record{}, fmt.Errorf("load completed processing record: %w", err)
		}
		if processedAt != nil {
			rec.ProcessedAt = *processedAt
		}
		return rec, sentinel.ErrDuplicate
	}
	if err != nil {
		return Record{}, fmt.Errorf("claim processing record: %w", err)
	}
	if processedAt != nil {
		rec.ProcessedAt = *processedAt
	}
	return rec, nil
}

func (s *PostgresStore) Complete(ctx context.Context, agentID string, eventID id.EventID, outcome Outcome, result []byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agent_processing
		SET outcome = $3, result = $4, processed_at = now()
		WHERE agent_id = $1 AND event_id = $2 AND outcome = 'pending'`,
		agentID, eventID.String(), string(outcome), result,
	)
	if err != nil {
		return fmt.Errorf("complete processing record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}
