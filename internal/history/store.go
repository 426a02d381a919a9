package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"lrcforge/internal/batch"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// DefaultRetention is how many batches are kept after each insert.
const DefaultRetention = 500

var (
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrNotFound is returned for unknown batch ids.
	ErrNotFound = errors.New("batch not found")
)

// Store persists finished batches.
type Store struct {
	db        *sql.DB
	path      string
	retention int
}

// Open initializes or connects to the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// database/sql pools connections; pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, retention: DefaultRetention}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record is one finished batch.
type Record struct {
	ID           string       `json:"id"`
	Phase        batch.Phase  `json:"phase"`
	Total        int          `json:"total"`
	SuccessCount int          `json:"success_count"`
	FailCount    int          `json:"fail_count"`
	Cancelled    bool         `json:"cancelled"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	Items        []batch.Item `json:"items,omitempty"`
}

// RecordBatch stores a finished batch snapshot, replacing any earlier row for
// the same id, then prunes beyond the retention limit.
func (s *Store) RecordBatch(ctx context.Context, snap batch.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM batches WHERE id = ?", snap.ID); err != nil {
		return fmt.Errorf("replace batch: %w", err)
	}
	finished := snap.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (id, phase, total, success_count, fail_count, cancelled, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID,
		string(snap.Phase),
		snap.Total,
		snap.SuccessCount,
		snap.FailCount,
		boolToInt(snap.Cancelled),
		formatTime(snap.StartedAt),
		formatTime(finished),
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	for i, item := range snap.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batch_items (batch_id, position, name, source_path, lyric_path, output_path, status, error)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, i, item.Name, item.SourcePath, item.LyricPath, item.OutputPath,
			string(item.Status), nullableString(item.Error),
		); err != nil {
			return fmt.Errorf("insert batch item %q: %w", item.Name, err)
		}
	}
	if s.retention > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM batches WHERE id NOT IN (
                SELECT id FROM batches ORDER BY finished_at DESC LIMIT ?
            )`, s.retention); err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// List returns the most recent batches, newest first, without items.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phase, total, success_count, fail_count, cancelled, started_at, finished_at
        FROM batches ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return records, nil
}

// Get returns one batch with its items.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, phase, total, success_count, fail_count, cancelled, started_at, finished_at
        FROM batches WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, source_path, lyric_path, output_path, status, error
        FROM batch_items WHERE batch_id = ? ORDER BY position`, id)
	if err != nil {
		return Record{}, fmt.Errorf("list batch items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item    batch.Item
			status  string
			message sql.NullString
		)
		if err := rows.Scan(&item.Name, &item.SourcePath, &item.LyricPath, &item.OutputPath, &status, &message); err != nil {
			return Record{}, fmt.Errorf("scan batch item: %w", err)
		}
		item.Status = batch.ItemStatus(status)
		item.Error = message.String
		rec.Items = append(rec.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("iterate batch items: %w", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec       Record
		phase     string
		cancelled int
		started   string
		finished  string
	)
	if err := row.Scan(&rec.ID, &phase, &rec.Total, &rec.SuccessCount, &rec.FailCount, &cancelled, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan batch: %w", err)
	}
	rec.Phase = batch.Phase(phase)
	rec.Cancelled = cancelled != 0
	rec.StartedAt = parseTime(started)
	rec.FinishedAt = parseTime(finished)
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
