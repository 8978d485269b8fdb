package consent

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

// PostgresStore persists the grant ledger. The effective-grant invariant is
// enforced inside one transaction: the supersede UPDATE and the INSERT of the
// new grant either both land or neither does.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, grant Grant) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin consent tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE consent_grants
		SET superseded_at = $3
		WHERE subject_id = $1 AND purpose = $2
		  AND revoked_at IS NULL AND superseded_at IS NULL
	`, grant.SubjectID.String(), grant.Purpose.String(), grant.GrantedAt)
	if err != nil {
		return fmt.Errorf("supersede consent grant: %w", err)
	}

	var expiresAt *time.Time
	if !grant.ExpiresAt.IsZero() {
		expiresAt = &grant.ExpiresAt
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO consent_grants (subject_id, purpose, scope, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, grant.SubjectID.String(), grant.Purpose.String(), grant.Scope.Strings(), grant.GrantedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("insert consent grant: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Effective(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, now time.Time) (Grant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT subject_id, purpose, scope, granted_at, expires_at, revoked_at, superseded_at
		FROM consent_grants
		WHERE subject_id = $1 AND purpose = $2
		  AND revoked_at IS NULL AND superseded_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY granted_at DESC
		LIMIT 1
	`, subject.String(), purpose.String(), now)

	grant, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Grant{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Grant{}, fmt.Errorf("query effective grant: %w", err)
	}
	return grant, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, revokedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE consent_grants
		SET revoked_at = $3
		WHERE subject_id = $1 AND purpose = $2
		  AND revoked_at IS NULL AND superseded_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $3)
	`, subject.String(), purpose.String(), revokedAt)
	if err != nil {
		return fmt.Errorf("revoke consent grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject id.SubjectID) ([]Grant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subject_id, purpose, scope, granted_at, expires_at, revoked_at, superseded_at
		FROM consent_grants
		WHERE subject_id = $1
		ORDER BY granted_at DESC
	`, subject.String())
	if err != nil {
		return nil, fmt.Errorf("list consent grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent grant: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (Grant, error) {
	var (
		grant     Grant
		subject   string
		purpose   string
		scope     []string
		expiresAt *time.Time
	)
	if err := row.Scan(&subject, &purpose, &scope, &grant.GrantedAt, &expiresAt,
		&grant.RevokedAt, &grant.SupersededAt); err != nil {
		return Grant{}, err
	}
	grant.SubjectID = id.SubjectID(subject)
	grant.Purpose = id.ConsentPurpose(purpose)
	categories := make([]id.DataCategory, len(scope))
	for i, c := range scope {
		categories[i] = id.DataCategory(c)
	}
	grant.Scope = id.NewScope(categories...)
	if expiresAt != nil {
		grant.ExpiresAt = *expiresAt
	}
	return grant, nil
}
