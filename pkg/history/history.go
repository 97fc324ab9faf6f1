// Package history keeps a local journal of export and import runs in SQLite.
//
// The journal stores key names, decisions and outcomes only. It never stores
// key material or passphrases.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the journal schema version.
const CurrentSchemaVersion = 1

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound indicates no run with the given ID exists.
var ErrRunNotFound = errors.New("history: run not found")

// Op is the kind of operation recorded.
type Op string

const (
	OpExport Op = "export"
	OpImport Op = "import"
)

// Run is one export or import invocation.
type Run struct {
	ID        string
	Op        Op
	StartedAt time.Time
	Archive   string // file path or s3:// location
	ArchiveID string
	Strategy  string // import only
	DryRun    bool
	KeyCount  int
	Applied   int
	Skipped   int
	Failed    int
	Error     string
	Entries   []Entry
}

// Entry is the outcome for one key within a run.
type Entry struct {
	Name     string
	Decision string
	Target   string
	Outcome  string
	Error    string
}

// Store is an open journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal at path. The file is created with mode 0600.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: failed to create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("history: failed to create journal: %w", err)
	}
	f.Close()

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("history: failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the journal.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("history: journal schema version %d is newer than supported %d", version, CurrentSchemaVersion)
	}
	if version == CurrentSchemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			op          TEXT NOT NULL,
			started_at  TEXT NOT NULL,
			archive     TEXT NOT NULL,
			archive_id  TEXT NOT NULL DEFAULT '',
			strategy    TEXT NOT NULL DEFAULT '',
			dry_run     INTEGER NOT NULL DEFAULT 0,
			key_count   INTEGER NOT NULL DEFAULT 0,
			applied     INTEGER NOT NULL DEFAULT 0,
			skipped     INTEGER NOT NULL DEFAULT 0,
			failed      INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS run_entries (
			run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq       INTEGER NOT NULL,
			name      TEXT NOT NULL,
			decision  TEXT NOT NULL DEFAULT '',
			target    TEXT NOT NULL DEFAULT '',
			outcome   TEXT NOT NULL DEFAULT '',
			error     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, seq)
		)`,
		`INSERT OR REPLACE INTO schema_version (version) VALUES (1)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: migration failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: failed to commit migration: %w", err)
	}
	return nil
}

// schemaVersion returns 0 for an empty database.
func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("history: failed to check schema_version table: %w", err)
	}

	var version int
	err = s.db.QueryRowContext(ctx, `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("history: failed to get schema version: %w", err)
	}
	return version, nil
}

// Record stores a run and its entries. An empty ID is filled with a new UUID
// and a zero StartedAt with the current time. The stored ID is returned.
func (s *Store) Record(ctx context.Context, run *Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("history: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, op, started_at, archive, archive_id, strategy, dry_run,
			key_count, applied, skipped, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Op), run.StartedAt.UTC().Format(timeLayout), run.Archive, run.ArchiveID,
		run.Strategy, run.DryRun, run.KeyCount, run.Applied, run.Skipped, run.Failed, run.Error)
	if err != nil {
		return "", fmt.Errorf("history: failed to insert run: %w", err)
	}

	for i, e := range run.Entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_entries (run_id, seq, name, decision, target, outcome, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, e.Name, e.Decision, e.Target, e.Outcome, e.Error)
		if err != nil {
			return "", fmt.Errorf("history: failed to insert entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("history: failed to commit run: %w", err)
	}
	return run.ID, nil
}

// List returns the most recent runs, newest first, without their entries.
// A limit of zero or less returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT id, op, started_at, archive, archive_id, strategy, dry_run,
		key_count, applied, skipped, failed, error
		FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: failed to list runs: %w", err)
	}
	return runs, nil
}

// Get returns one run with its entries.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, op, started_at, archive, archive_id, strategy, dry_run,
		key_count, applied, skipped, failed, error FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	run.Entries, err = s.Entries(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Entries returns the per-key outcomes of a run in their original order.
func (s *Store) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, decision, target, outcome, error
		FROM run_entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Decision, &e.Target, &e.Outcome, &e.Error); err != nil {
			return nil, fmt.Errorf("history: failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: failed to list entries: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run       Run
		op        string
		startedAt string
	)
	err := s.Scan(&run.ID, &op, &startedAt, &run.Archive, &run.ArchiveID, &run.Strategy, &run.DryRun,
		&run.KeyCount, &run.Applied, &run.Skipped, &run.Failed, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to scan run: %w", err)
	}
	run.Op = Op(op)
	run.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("history: invalid started_at %q: %w", startedAt, err)
	}
	return &run, nil
}
