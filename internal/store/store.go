// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store archives analysis runs and their event streams in SQLite
// so finished reports can be listed, exported, and corrected later.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/recap-engine/internal/stream"
	"github.com/pdiddy/recap-engine/pkg/types"
)

const (
	dbFile           = "recap.db"
	defaultListLimit = 50
	defaultDataDir   = "data"

	// timeFormat has a fixed width so timestamps sort as text.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrNotFound is returned when a run ID is not in the archive.
var ErrNotFound = errors.New("run not found")

// Store manages the run archive database.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Event is one archived stream message.
type Event struct {
	Seq       int             `json:"seq" yaml:"seq"`
	Event     string          `json:"event" yaml:"event"`
	Data      json.RawMessage `json:"data" yaml:"-"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
}

// Open opens or creates the archive at cfg.DataDir/recap.db and creates the
// schema if it does not exist.
func Open(cfg types.StoreConfig) (*Store, error) {
	dir := cfg.DataDir
	if dir == "" {
		dir = defaultDataDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dataDir: dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataDir returns the directory holding the database.
func (s *Store) DataDir() string {
	return s.dataDir
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			parent_id TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			style TEXT,
			mode TEXT,
			image_count INTEGER,
			status TEXT NOT NULL,
			outputs TEXT,
			report TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS run_events (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			event TEXT NOT NULL,
			data TEXT,
			created_at TEXT NOT NULL,
			UNIQUE(run_id, seq)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// SaveRun inserts run or replaces the stored copy with the same ID.
func (s *Store) SaveRun(ctx context.Context, run types.Run) error {
	outputs, err := json.Marshal(run.Outputs)
	if err != nil {
		return fmt.Errorf("marshaling outputs: %w", err)
	}
	var report []byte
	if run.Report != nil {
		if report, err = json.Marshal(run.Report); err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
	}

	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	now := time.Now().UTC().Format(timeFormat)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, parent_id, created_at, updated_at, style, mode, image_count, status, outputs, report, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			status = excluded.status,
			outputs = excluded.outputs,
			report = excluded.report,
			error = excluded.error`,
		run.ID, nullString(run.ParentID), created.UTC().Format(timeFormat), now,
		string(run.Style), string(run.Mode), run.ImageCount, string(run.Status),
		string(outputs), nullBytes(report), nullString(run.Error))
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// AppendEvent records msg as the next event of runID. The run must already
// be saved.
func (s *Store) AppendEvent(ctx context.Context, runID string, msg stream.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, seq, event, data, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM run_events WHERE run_id = ?), ?, ?, ?)`,
		runID, runID, msg.Event, string(msg.Data), time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("appending %s event to run %s: %w", msg.Event, runID, err)
	}
	return nil
}

const runColumns = `id, parent_id, created_at, style, mode, image_count, status, outputs, report, error`

// GetRun returns the archived run with the given ID.
func (s *Store) GetRun(ctx context.Context, id string) (types.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.Run{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// uses a default of 50.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Events returns the archived events of runID in emission order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, event, data, created_at FROM run_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading events for run %s: %w", runID, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			data    sql.NullString
			created string
		)
		if err := rows.Scan(&ev.Seq, &ev.Event, &data, &created); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if data.Valid && data.String != "" {
			ev.Data = json.RawMessage(data.String)
		}
		ev.CreatedAt, _ = time.Parse(timeFormat, created)
		events = append(events, ev)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (types.Run, error) {
	var (
		run                      types.Run
		parentID, report, errMsg sql.NullString
		outputs                  sql.NullString
		created, style, mode     string
		status                   string
	)
	if err := sc.Scan(&run.ID, &parentID, &created, &style, &mode, &run.ImageCount, &status, &outputs, &report, &errMsg); err != nil {
		return types.Run{}, err
	}

	run.ParentID = parentID.String
	run.Style = types.Style(style)
	run.Mode = types.ExtractionMode(mode)
	run.Status = types.RunStatus(status)
	run.Error = errMsg.String

	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return types.Run{}, fmt.Errorf("parsing created_at: %w", err)
	}
	run.CreatedAt = t

	if outputs.Valid && outputs.String != "" {
		if err := json.Unmarshal([]byte(outputs.String), &run.Outputs); err != nil {
			return types.Run{}, fmt.Errorf("decoding outputs: %w", err)
		}
	}
	if report.Valid && report.String != "" {
		var rep types.AggregatedReport
		if err := json.Unmarshal([]byte(report.String), &rep); err != nil {
			return types.Run{}, fmt.Errorf("decoding report: %w", err)
		}
		run.Report = &rep
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}
