package oversight

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

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, review Review) error {
	encoded, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("encode review: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO reviews (correlation_id, status, opened_at, record)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (correlation_id) DO UPDATE
			SET status = EXCLUDED.status,
			    record = EXCLUDED.record`,
		review.CorrelationID.String(), string(review.Status), review.OpenedAt.UTC(), encoded,
	)
	if err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, correlationID id.CorrelationID) (Review, error) {
	var encoded []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM reviews WHERE correlation_id = $1`,
		correlationID.String(),
	).Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
		return Review{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Review{}, fmt.Errorf("load review: %w", err)
	}
	return decodeReview(encoded)
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]Review, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM reviews WHERE status = $1 ORDER BY opened_at ASC`,
		string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var encoded []byte
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		review, err := decodeReview(encoded)
		if err != nil {
			return nil, err
		}
		out = append(out, review)
	}
	return out, rows.Err()
}

func decodeReview(encoded []byte) (Review, error) {
	var review Review
	if err := json.Unmarshal(encoded, &review); err != nil {
		return Review{}, fmt.Errorf("decode review: %w", err)
	}
	return review, nil
}
