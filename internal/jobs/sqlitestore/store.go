// Package sqlitestore keeps job history in a SQLite database so job state
// survives restarts of the API server.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dvloznov/agro-tracker/internal/jobs"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped when schema.sql changes. Older databases must be
// deleted.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Fixed-width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a JobStore backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("Open: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Open: open sqlite db: %w", err)
	}
	// database/sql would otherwise open several connections to one file.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("Open: apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
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
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
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

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ProcessMessageJob) error {
	if job.JobID == "" {
		return errors.New("SaveJob: job ID is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			job_id, inbox_path, sender, received_at, status, created_at,
			started_at, completed_at, error, records, snapshot, retry_count, max_retries
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			inbox_path = excluded.inbox_path,
			sender = excluded.sender,
			received_at = excluded.received_at,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error = excluded.error,
			records = excluded.records,
			snapshot = excluded.snapshot,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries`,
		job.JobID,
		job.InboxPath,
		job.Sender,
		nullableTime(&job.ReceivedAt),
		string(job.Status),
		formatTime(job.CreatedAt),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableString(job.Error),
		job.Records,
		nullableString(job.Snapshot),
		job.RetryCount,
		job.MaxRetries,
	)
	if err != nil {
		return fmt.Errorf("SaveJob: %w", err)
	}
	return nil
}

const selectColumns = `job_id, inbox_path, sender, received_at, status, created_at,
	started_at, completed_at, error, records, snapshot, retry_count, max_retries`

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ProcessMessageJob, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM jobs WHERE job_id = ?", jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetJob: %w", err)
	}
	return job, nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ProcessMessageJob, error) {
	var where []string
	var args []any
	if filter.Sender != "" {
		where = append(where, "sender = ?")
		args = append(args, filter.Sender)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + selectColumns + " FROM jobs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, job_id ASC"

	// SQLite needs a LIMIT before OFFSET; -1 means no limit.
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListJobs: %w", err)
	}
	defer rows.Close()

	result := []*jobs.ProcessMessageJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ListJobs: %w", err)
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListJobs: %w", err)
	}
	return result, nil
}

// UpdateJobStatus implements the JobStore interface.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error = COALESCE(?, error) WHERE job_id = ?",
		string(status), nullableString(errorMsg), jobID,
	)
	if err != nil {
		return fmt.Errorf("UpdateJobStatus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateJobStatus: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateJobStatus: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*jobs.ProcessMessageJob, error) {
	var (
		job                          jobs.ProcessMessageJob
		status, created              string
		received, started, completed sql.NullString
		errMsg, snapshot             sql.NullString
	)
	if err := sc.Scan(
		&job.JobID, &job.InboxPath, &job.Sender, &received, &status, &created,
		&started, &completed, &errMsg, &job.Records, &snapshot, &job.RetryCount, &job.MaxRetries,
	); err != nil {
		return nil, err
	}

	job.Status = jobs.JobStatus(status)
	job.Error = errMsg.String
	job.Snapshot = snapshot.String

	var err error
	if job.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if received.Valid {
		if job.ReceivedAt, err = parseTime(received.String); err != nil {
			return nil, fmt.Errorf("received_at: %w", err)
		}
	}
	if job.StartedAt, err = parseNullTime(started); err != nil {
		return nil, fmt.Errorf("started_at: %w", err)
	}
	if job.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, fmt.Errorf("completed_at: %w", err)
	}
	return &job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

var _ jobs.JobStore = (*Store)(nil)
