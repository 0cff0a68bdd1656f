package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade an artifact from user_version i to i+1. The schema
// file always describes the latest layout, so a fresh artifact runs them
// as no-ops.
var migrations = []string{
	// 0 -> 1: run listings are ordered by creation time.
	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at, id)`,
}

var currentSchemaVersion = len(migrations)

// connParams are go-sqlite3 DSN parameters. They are applied to every
// connection the pool opens, not only the first.
var connParams = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
}

// ErrRunNotFound is returned when a run ID has no row in the runs table.
var ErrRunNotFound = errors.New("store: run not found")

// Store is one raw data artifact: a SQLite file holding run metadata and
// the ordered evaluation records of each run.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the artifact at path, creating it if needed, and brings its
// schema up to date. Opening an existing artifact is safe and leaves its
// data untouched.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?"+connParams.Encode())
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	// One writer per artifact; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// ArtifactPath returns the artifact location for a run under basePath.
func ArtifactPath(basePath, runID string) string {
	return filepath.Join(basePath, runID+".db")
}

// Create opens the artifact for runID under basePath, creating basePath
// if needed. It fails if an artifact for the run already exists.
func Create(basePath, runID string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create base path: %w", err)
	}
	path := ArtifactPath(basePath, runID)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("artifact already exists: %s", path)
	}
	return Open(path)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the artifact path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// migrate applies the schema and any pending migrations in one
// transaction, then records the new user_version.
func migrate(db *sql.DB) error {
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("artifact schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	for v := version; v < currentSchemaVersion; v++ {
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
