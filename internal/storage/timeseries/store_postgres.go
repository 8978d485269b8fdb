package timeseries

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "vitaex/pkg/domain"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, measurements []Measurement) error {
	if len(measurements) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range measurements {
		batch.Queue(`
			INSERT INTO measurements (subject_id, metric, value, unit, source, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (subject_id, metric, recorded_at, source) DO NOTHING`,
			m.SubjectID.String(), m.Metric, m.Value, m.Unit, m.Source, m.RecordedAt.UTC(),
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range measurements {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("append measurement: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Range(ctx context.Context, subject id.SubjectID, metric string, from, to time.Time) ([]Measurement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subject_id, metric, value, unit, source, recorded_at
		FROM measurements
		WHERE subject_id = $1 AND metric = $2 AND recorded_at >= $3 AND recorded_at < $4
		ORDER BY recorded_at ASC`,
		subject.String(), metric, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("range measurements: %w", err)
	}
	defer rows.Close()
	return scanMeasurements(rows)
}

func (s *PostgresStore) Latest(ctx context.Context, subject id.SubjectID, metrics []string) (map[string]Measurement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (metric) subject_id, metric, value, unit, source, recorded_at
		FROM measurements
		WHERE subject_id = $1 AND metric = ANY($2)
		ORDER BY metric, recorded_at DESC`,
		subject.String(), metrics,
	)
	if err != nil {
		return nil, fmt.Errorf("latest measurements: %w", err)
	}
	defer rows.Close()

	list, err := scanMeasurements(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Measurement, len(list))
	for _, m := range list {
		out[m.Metric] = m
	}
	return out, nil
}

func scanMeasurements(rows pgx.Rows) ([]Measurement, error) {
	var out []Measurement
	for rows.Next() {
		var m Measurement
		var subject string
		if err := rows.Scan(&subject, &m.Metric, &m.Value, &m.Unit, &m.Source, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		m.SubjectID = id.SubjectID(subject)
		out = append(out, m)
	}
	return out, rows.Err()
}
