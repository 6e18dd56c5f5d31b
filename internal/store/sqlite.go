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

	_ "modernc.org/sqlite"

	"uniquify-worker/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS batches (
    id          TEXT PRIMARY KEY,
    source_path TEXT NOT NULL,
    preset      TEXT NOT NULL,
    status      TEXT NOT NULL,
    variants    TEXT NOT NULL,
    error       TEXT,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at);
`

// SQLiteStore persists batch records so progress survives the process.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, job models.BatchJob) error {
	variants, err := json.Marshal(job.Variants)
	if err != nil {
		return fmt.Errorf("marshal variants: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batches (id, source_path, preset, status, variants, error, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SourcePath, job.Preset, string(job.Status), string(variants),
		nullableString(job.Error), formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, job models.BatchJob) error {
	variants, err := json.Marshal(job.Variants)
	if err != nil {
		return fmt.Errorf("marshal variants: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, variants = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(job.Status), string(variants), nullableString(job.Error), formatTime(job.UpdatedAt), job.ID,
	)
	if err != nil {
		return fmt.Errorf("update batch %s: %w", job.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update batch %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.BatchJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_path, preset, status, variants, error, created_at, updated_at
         FROM batches WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BatchJob{}, fmt.Errorf("get batch %s: %w", id, ErrNotFound)
	}
	return job, err
}

// List returns up to limit batches, newest first. limit <= 0 means all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]models.BatchJob, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_path, preset, status, variants, error, created_at, updated_at
         FROM batches ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var jobs []models.BatchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (models.BatchJob, error) {
	var (
		job                  models.BatchJob
		status, variants     string
		errText              sql.NullString
		createdAt, updatedAt string
	)
	if err := sc.Scan(&job.ID, &job.SourcePath, &job.Preset, &status, &variants, &errText, &createdAt, &updatedAt); err != nil {
		return models.BatchJob{}, err
	}
	job.Status = models.BatchStatus(status)
	job.Error = errText.String
	if err := json.Unmarshal([]byte(variants), &job.Variants); err != nil {
		return models.BatchJob{}, fmt.Errorf("decode variants for %s: %w", job.ID, err)
	}
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return job, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
