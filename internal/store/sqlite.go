// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides invocation audit persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. ":memory:" is supported.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS invocations (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			tool        TEXT NOT NULL,
			provider    TEXT,
			started_at  TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			outcome     TEXT NOT NULL,
			error_kind  TEXT,

			CHECK (outcome IN ('success', 'error'))
		);

		CREATE INDEX IF NOT EXISTS idx_invocations_session
			ON invocations(session_id);

		CREATE INDEX IF NOT EXISTS idx_invocations_started
			ON invocations(started_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// RecordInvocation stores one settled invocation.
func (s *SQLiteStore) RecordInvocation(ctx context.Context, inv *Invocation) error {
	query := `
		INSERT INTO invocations (
			id, session_id, tool, provider, started_at, duration_ms, outcome, error_kind
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		inv.ID,
		inv.SessionID,
		inv.Tool,
		nullString(inv.Provider),
		inv.StartedAt.UTC().Format(time.RFC3339Nano),
		inv.DurationMs,
		inv.Outcome,
		nullString(inv.ErrorKind),
	)
	if err != nil {
		return fmt.Errorf("inserting invocation: %w", err)
	}

	s.logger.Debug("recorded invocation",
		"id", inv.ID,
		"session_id", inv.SessionID,
		"tool", inv.Tool,
		"outcome", inv.Outcome,
	)
	return nil
}

// RecentInvocations returns the newest invocations, newest first.
func (s *SQLiteStore) RecentInvocations(ctx context.Context, limit int) ([]*Invocation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, session_id, tool, provider, started_at, duration_ms, outcome, error_kind
		FROM invocations
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invs []*Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocation rows: %w", err)
	}
	return invs, nil
}

// UsageSummary returns aggregated invocation statistics.
func (s *SQLiteStore) UsageSummary(ctx context.Context) (*UsageSummary, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0) as successful,
			COALESCE(SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END), 0) as failed,
			COALESCE(AVG(duration_ms), 0) as avg_duration
		FROM invocations
	`

	summary := &UsageSummary{ByTool: make(map[string]int64)}
	row := s.db.QueryRowContext(ctx, query)
	if err := row.Scan(
		&summary.TotalInvocations,
		&summary.Successful,
		&summary.Failed,
		&summary.AvgDurationMs,
	); err != nil {
		return nil, fmt.Errorf("scanning usage summary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tool, COUNT(*) FROM invocations GROUP BY tool`)
	if err != nil {
		return nil, fmt.Errorf("querying per-tool counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var tool string
		var count int64
		if err := rows.Scan(&tool, &count); err != nil {
			return nil, fmt.Errorf("scanning per-tool count: %w", err)
		}
		summary.ByTool[tool] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating per-tool rows: %w", err)
	}
	return summary, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanInvocation(rows *sql.Rows) (*Invocation, error) {
	var (
		inv       Invocation
		provider  sql.NullString
		errorKind sql.NullString
		startedAt string
	)
	if err := rows.Scan(
		&inv.ID,
		&inv.SessionID,
		&inv.Tool,
		&provider,
		&startedAt,
		&inv.DurationMs,
		&inv.Outcome,
		&errorKind,
	); err != nil {
		return nil, fmt.Errorf("scanning invocation: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	inv.StartedAt = ts
	inv.Provider = provider.String
	inv.ErrorKind = errorKind.String
	return &inv, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
