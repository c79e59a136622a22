package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS login_attempts (
    id           TEXT PRIMARY KEY,
    login_url    TEXT NOT NULL,
    username     TEXT NOT NULL,
    attempt      INTEGER NOT NULL,
    outcome      TEXT NOT NULL,
    error        TEXT NOT NULL DEFAULT '',
    cookie_count INTEGER NOT NULL DEFAULT 0,
    started_at   TEXT NOT NULL,
    duration_ms  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_login_attempts_started_at ON login_attempts(started_at);`

// sqliteRow is the column layout of login_attempts. Times are RFC 3339 UTC text so
// they sort lexically.
type sqliteRow struct {
	ID          string `db:"id"`
	LoginURL    string `db:"login_url"`
	Username    string `db:"username"`
	Attempt     int    `db:"attempt"`
	Outcome     string `db:"outcome"`
	Error       string `db:"error"`
	CookieCount int    `db:"cookie_count"`
	StartedAt   string `db:"started_at"`
	DurationMS  int64  `db:"duration_ms"`
}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite records attempts in a local SQLite database.
type SQLite struct {
	db  *sqlx.DB
	log *zap.Logger
}

// OpenSQLite opens (or creates) the database at path and creates the schema.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating login_attempts table: %w", err)
	}
	return &SQLite{db: db, log: logger.Named("audit_sqlite")}, nil
}

func (s *SQLite) Record(ctx context.Context, a Attempt) error {
	row := sqliteRow{
		ID:          a.ID,
		LoginURL:    a.LoginURL,
		Username:    a.Username,
		Attempt:     a.Attempt,
		Outcome:     string(a.Outcome),
		Error:       a.Error,
		CookieCount: a.CookieCount,
		StartedAt:   a.StartedAt.UTC().Format(sqliteTimeLayout),
		DurationMS:  a.Duration.Milliseconds(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO login_attempts (id, login_url, username, attempt, outcome, error, cookie_count, started_at, duration_ms)
		VALUES (:id, :login_url, :username, :attempt, :outcome, :error, :cookie_count, :started_at, :duration_ms)`, row)
	if err != nil {
		return fmt.Errorf("inserting attempt %s: %w", a.ID, err)
	}
	s.log.Debug("Attempt recorded.", zap.String("id", a.ID), zap.String("outcome", row.Outcome))
	return nil
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, login_url, username, attempt, outcome, error, cookie_count, started_at, duration_ms
		FROM login_attempts
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}

	out := make([]Attempt, 0, len(rows))
	for _, r := range rows {
		started, err := time.Parse(sqliteTimeLayout, r.StartedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at of %s: %w", r.ID, err)
		}
		out = append(out, Attempt{
			ID:          r.ID,
			LoginURL:    r.LoginURL,
			Username:    r.Username,
			Attempt:     r.Attempt,
			Outcome:     Outcome(r.Outcome),
			Error:       r.Error,
			CookieCount: r.CookieCount,
			StartedAt:   started,
			Duration:    time.Duration(r.DurationMS) * time.Millisecond,
		})
	}
	return out, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
