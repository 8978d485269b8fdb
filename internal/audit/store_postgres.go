package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "vitaex/pkg/domain"
)

// PostgresStore persists audit entries. Inserts are idempotent on entry id so
// a retried Append never duplicates an entry; nothing ever updates a row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	query := `
		INSERT INTO audit_entries (id, correlation_id, actor, action, subject_id, ts, decision, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.pool.Exec(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.CorrelationID),
		entry.Actor,
		entry.Action,
		entry.SubjectID.String(),
		entry.Timestamp,
		string(entry.Decision),
		detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCorrelation(ctx context.Context, correlationID id.CorrelationID) ([]Entry, error) {
	query := `
		SELECT id, correlation_id, actor, action, subject_id, ts, decision, detail
		FROM audit_entries
		WHERE correlation_id = $1
		ORDER BY ts ASC
	`
	rows, err := s.pool.Query(ctx, query, uuid.UUID(correlationID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject id.SubjectID) ([]Entry, error) {
	query := `
		SELECT id, correlation_id, actor, action, subject_id, ts, decision, detail
		FROM audit_entries
		WHERE subject_id = $1
		ORDER BY ts ASC
	`
	rows, err := s.pool.Query(ctx, query, subject.String())
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry         Entry
			entryID       uuid.UUID
			correlationID uuid.UUID
			subject       string
			decision      string
			detail        []byte
		)
		if err := rows.Scan(&entryID, &correlationID, &entry.Actor, &entry.Action,
			&subject, &entry.Timestamp, &decision, &detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID = id.EventID(entryID)
		entry.CorrelationID = id.CorrelationID(correlationID)
		entry.SubjectID = id.SubjectID(subject)
		entry.Decision = Decision(decision)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &entry.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
