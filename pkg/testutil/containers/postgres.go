//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps a testcontainers Postgres instance with the
// service schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *pgxpool.Pool
}

// schema mirrors the tables the postgres stores expect in deployment.
const schema = `
CREATE TABLE IF NOT EXISTS consent_grants (
	id            BIGSERIAL PRIMARY KEY,
	subject_id    TEXT NOT NULL,
	purpose       TEXT NOT NULL,
	scope         TEXT[] NOT NULL,
	granted_at    TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ,
	revoked_at    TIMESTAMPTZ,
	superseded_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS consent_grants_effective
	ON consent_grants (subject_id, purpose)
	WHERE revoked_at IS NULL AND superseded_at IS NULL;

CREATE TABLE IF NOT EXISTS task_runs (
	correlation_id TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	record         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS task_runs_stale ON task_runs (status, updated_at);

CREATE TABLE IF NOT EXISTS agent_processing (
	agent_id     TEXT NOT NULL,
	event_id     TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	attempts     INT NOT NULL,
	result       BYTEA,
	processed_at TIMESTAMPTZ,
	PRIMARY KEY (agent_id, event_id)
);
`

// NewPostgresContainer starts a new Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("vitaex"),
		tcpostgres.WithUsername("vitaex"),
		tcpostgres.WithPassword("vitaex"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres pool: %v", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		Pool:      pool,
	}
}

// TruncateTables empties the given tables between tests.
func (pc *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := pc.Pool.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
			return err
		}
	}
	return nil
}

// Close terminates the container and closes the pool.
func (pc *PostgresContainer) Close(t *testing.T) {
	t.Helper()
	pc.Pool.Close()
	if err := pc.Container.Terminate(context.Background()); err != nil {
		t.Logf("failed to terminate postgres container: %v", err)
	}
}
