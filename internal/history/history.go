// Package history records each mix run in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"time"

	"github.com/keagan/reelmixer/pkg/util"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const timeLayout = time.RFC3339

// Run is one recorded mix.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Inputs     int
	Clips      int
	Output     string
	Error      string
	Profile    string
	Mode       string
}

// Store is the run log.
type Store struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the database at path and applies migrations. Runs
// left in the running state by an earlier crash are marked failed.
func Open(ctx context.Context, logger zerolog.Logger, path string) (*Store, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn, logger: logger.With().Str("component", "history").Logger()}
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if _, err := conn.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = 'interrupted', finished_at = ? WHERE status = ?`,
		StatusFailed, time.Now().UTC().Format(timeLayout), StatusRunning); err != nil {
		s.logger.Warn().Err(err).Msg("failed to mark interrupted runs")
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	for _, m := range entries {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.applied(ctx, name) {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.conn.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := s.conn.ExecContext(ctx, "INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		s.logger.Debug().Str("migration", name).Msg("applied migration")
	}
	return nil
}

func (s *Store) applied(ctx context.Context, name string) bool {
	var one int
	if err := s.conn.QueryRowContext(ctx,
		"SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&one); err != nil {
		return false
	}
	err := s.conn.QueryRowContext(ctx, "SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&one)
	return err == nil
}

// Start records a new running run.
func (s *Store) Start(ctx context.Context, r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status, inputs, profile, mode) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(timeLayout), StatusRunning, r.Inputs, r.Profile, r.Mode)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// Finish closes a run. A nil runErr marks it succeeded.
func (s *Store) Finish(ctx context.Context, id string, clips int, output string, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.conn.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, clips = ?, output = ?, error = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), status, clips, output, msg, id)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), status, inputs, clips, output, error, profile, mode
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.Inputs, &r.Clips, &r.Output, &r.Error, &r.Profile, &r.Mode); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(timeLayout, finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
