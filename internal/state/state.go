// Package state keeps the per-target applied-revision bookkeeping for the
// deployment orchestrator. A revision is advanced only after a full
// pull+build+deploy cycle succeeds, so a failed target is naturally retried
// on the next run.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a target has no recorded applied revision yet.
var ErrNotFound = errors.New("no applied revision recorded")

// Store persists the last successfully deployed revision per target.
type Store interface {
	Applied(ctx context.Context, target string) (string, error)
	SetApplied(ctx context.Context, target, revision string) error
	Close() error
}

// SQLiteStore implements Store on a local SQLite file, the default for a
// single-host agent.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the store at path. ":memory:" is accepted for
// tests.
func NewSQLite(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("empty state store path")
	}
	if strings.HasPrefix(strings.ToLower(path), "sqlite://") {
		path = strings.TrimPrefix(path, "sqlite://")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	// SQLite works best with a single connection for a low-traffic store.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS deploy_state(
		target TEXT PRIMARY KEY,
		revision TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ensure state schema: %w", err)
	}
	return nil
}

// Applied returns the last revision recorded for target.
func (s *SQLiteStore) Applied(ctx context.Context, target string) (string, error) {
	var rev string
	err := s.db.QueryRowContext(ctx,
		`SELECT revision FROM deploy_state WHERE target = ?;`, target).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query applied revision: %w", err)
	}
	return rev, nil
}

// SetApplied records revision as deployed for target.
func (s *SQLiteStore) SetApplied(ctx context.Context, target, revision string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deploy_state(target, revision, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(target) DO UPDATE SET revision = excluded.revision, updated_at = excluded.updated_at;`,
		target, revision, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record applied revision: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
