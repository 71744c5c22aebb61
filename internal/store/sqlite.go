package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reelworks/segfilter/internal/ffmpeg"
	"github.com/reelworks/segfilter/internal/jobs"
)

const schemaVersion = 1

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	filename TEXT NOT NULL,
	source_path TEXT NOT NULL,
	filter_name TEXT,
	analytics TEXT,
	metrics TEXT,
	error TEXT,
	output_path TEXT,
	created_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

const upsertJob = `
	INSERT OR REPLACE INTO jobs (
		id, status, filename, source_path, filter_name, analytics, metrics,
		error, output_path, created_at, started_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectJob = `
	SELECT id, status, filename, source_path, filter_name, analytics, metrics,
		error, output_path, created_at, started_at, completed_at
	FROM jobs
`

// SQLiteStore implements jobs.Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex // Protects concurrent access
	path string
}

// NewSQLiteStore creates a new SQLite-backed store.
// The database file is created if it doesn't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("insert schema version: %w", err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	case version > schemaVersion:
		db.Close()
		return nil, fmt.Errorf("database schema v%d is newer than supported v%d", version, schemaVersion)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// SaveJob persists a job using INSERT OR REPLACE.
func (s *SQLiteStore) SaveJob(job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(upsertJob, args...)
	return err
}

// SaveJobs persists multiple jobs in a transaction.
func (s *SQLiteStore) SaveJobs(jobList []*jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(upsertJob)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, job := range jobList {
		args, err := jobArgs(job)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(id string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return scanJob(s.db.QueryRow(selectJob+" WHERE id = ?", id))
}

// DeleteJob removes a job by ID.
func (s *SQLiteStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM jobs WHERE id = ?", id)
	return err
}

// LoadJobs returns every stored job, oldest first.
func (s *SQLiteStore) LoadJobs() ([]*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(selectJob + " ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func jobArgs(job *jobs.Job) ([]interface{}, error) {
	analytics, err := nullJSON(job.Analytics)
	if err != nil {
		return nil, fmt.Errorf("encode analytics for %s: %w", job.ID, err)
	}
	metrics, err := nullJSON(job.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics for %s: %w", job.ID, err)
	}
	return []interface{}{
		job.ID, string(job.Status), job.Filename, job.SourcePath,
		nullString(job.FilterName), analytics, metrics,
		nullString(job.Error), nullString(job.OutputPath),
		formatTime(job.CreatedAt), formatTimePtr(job.StartedAt), formatTimePtr(job.CompletedAt),
	}, nil
}

// Helper functions for scanning rows

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var job jobs.Job
	var status string
	var filterName, analytics, metrics, errStr, outputPath sql.NullString
	var createdAt, startedAt, completedAt sql.NullString

	err := row.Scan(
		&job.ID, &status, &job.Filename, &job.SourcePath,
		&filterName, &analytics, &metrics,
		&errStr, &outputPath,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = jobs.Status(status)
	job.FilterName = filterName.String
	job.Error = errStr.String
	job.OutputPath = outputPath.String
	job.CreatedAt = parseTime(createdAt.String)
	job.StartedAt = parseTime(startedAt.String)
	job.CompletedAt = parseTime(completedAt.String)

	if analytics.Valid {
		var a ffmpeg.Analytics
		if err := json.Unmarshal([]byte(analytics.String), &a); err != nil {
			return nil, fmt.Errorf("decode analytics for %s: %w", job.ID, err)
		}
		job.Analytics = &a
	}
	if metrics.Valid {
		var m jobs.Metrics
		if err := json.Unmarshal([]byte(metrics.String), &m); err != nil {
			return nil, fmt.Errorf("decode metrics for %s: %w", job.ID, err)
		}
		job.Metrics = &m
	}

	return &job, nil
}

// Helper functions for SQL values

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON[T any](v *T) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
