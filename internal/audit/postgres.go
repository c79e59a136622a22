package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS login_attempts (
    id           UUID PRIMARY KEY,
    login_url    TEXT NOT NULL,
    username     TEXT NOT NULL,
    attempt      INTEGER NOT NULL,
    outcome      TEXT NOT NULL,
    error        TEXT NOT NULL DEFAULT '',
    cookie_count INTEGER NOT NULL DEFAULT 0,
    started_at   TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT NOT NULL
);`

const pgInsert = `
INSERT INTO login_attempts (id, login_url, username, attempt, outcome, error, cookie_count, started_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

const pgRecent = `
SELECT id, login_url, username, attempt, outcome, error, cookie_count, started_at, duration_ms
FROM login_attempts
ORDER BY started_at DESC
LIMIT $1;`

// Postgres records attempts in a PostgreSQL table.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

// OpenPostgres connects to dsn and prepares the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	p, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres verifies the connection and creates the table if needed.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("failed to create login_attempts table: %w", err)
	}
	return &Postgres{pool: pool, log: logger.Named("audit_pg")}, nil
}

func (p *Postgres) Record(ctx context.Context, a Attempt) error {
	_, err := p.pool.Exec(ctx, pgInsert,
		a.ID, a.LoginURL, a.Username, a.Attempt, string(a.Outcome), a.Error,
		a.CookieCount, a.StartedAt.UTC(), a.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt %s: %w", a.ID, err)
	}
	p.log.Debug("Attempt recorded.", zap.String("id", a.ID), zap.String("outcome", string(a.Outcome)))
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := p.pool.Query(ctx, pgRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a        Attempt
			outcome  string
			duration int64
		)
		if err := rows.Scan(&a.ID, &a.LoginURL, &a.Username, &a.Attempt, &outcome, &a.Error,
			&a.CookieCount, &a.StartedAt, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		a.Outcome = Outcome(outcome)
		a.Duration = time.Duration(duration) * time.Millisecond
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
