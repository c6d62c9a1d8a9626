package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

// ErrJobNotFound is returned when no row exists for a job id.
var ErrJobNotFound = errors.New("job not found")

// JobRecord is one mirrored job as stored in the metadata database.
type JobRecord struct {
	JobID      string             `json:"jobId"`
	OwnerID    string             `json:"userId,omitempty"`
	OwnerEmail string             `json:"userEmail,omitempty"`
	Status     types.State        `json:"status"`
	Progress   int                `json:"progress"`
	Message    string             `json:"message,omitempty"`
	Summary    string             `json:"summary,omitempty"`
	Source     string             `json:"source,omitempty"`
	Level      types.SummaryLevel `json:"level,omitempty"`
	Metrics    *types.Metrics     `json:"metrics,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
	FinishedAt *time.Time         `json:"finishedAt,omitempty"`
}

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB creates a new metadata database
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writers come from many job goroutines; serialize them on one connection.
	db.SetMaxOpenConns(1)

	// Timestamps are unix milliseconds.
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		owner_email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		progress INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL DEFAULT '',
		metrics TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_job_id ON jobs(job_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_owner_updated ON jobs(owner_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_status_updated ON jobs(status, updated_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// UpsertJob mirrors a status transition. created_at is written only on
// the first insert.
func (mdb *MetadataDB) UpsertJob(ctx context.Context, st types.JobStatus, ownerID string, updatedAt time.Time) error {
	query := `
	INSERT INTO jobs (job_id, owner_id, owner_email, status, progress, message, summary, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(job_id) DO UPDATE SET
		owner_id = excluded.owner_id,
		owner_email = CASE WHEN excluded.owner_email != '' THEN excluded.owner_email ELSE jobs.owner_email END,
		status = excluded.status,
		progress = excluded.progress,
		message = excluded.message,
		summary = excluded.summary,
		updated_at = excluded.updated_at
	`

	ms := updatedAt.UnixMilli()
	_, err := mdb.db.ExecContext(ctx, query, st.JobID, ownerID, st.OwnerEmail, string(st.Status),
		st.Progress, st.Message, st.Summary, ms, ms)
	if err != nil {
		return fmt.Errorf("failed to upsert job %s: %w", st.JobID, err)
	}
	return nil
}

// RecordSubmission stores the immutable descriptor fields of a job.
func (mdb *MetadataDB) RecordSubmission(ctx context.Context, desc types.Descriptor, at time.Time) error {
	kind := ""
	if desc.Source != nil {
		kind = desc.Source.Kind()
	}

	query := `
	INSERT INTO jobs (job_id, owner_id, owner_email, source, level, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(job_id) DO UPDATE SET
		source = excluded.source,
		level = excluded.level
	`

	ms := at.UnixMilli()
	_, err := mdb.db.ExecContext(ctx, query, desc.JobID, desc.OwnerID, desc.OwnerEmail, kind, string(desc.Level), ms, ms)
	if err != nil {
		return fmt.Errorf("failed to record submission %s: %w", desc.JobID, err)
	}
	return nil
}

// SaveMetrics stores the final metrics record of a job.
func (mdb *MetadataDB) SaveMetrics(ctx context.Context, jobID string, m types.Metrics, finishedAt time.Time) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
	INSERT INTO jobs (job_id, metrics, created_at, updated_at, finished_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(job_id) DO UPDATE SET
		metrics = excluded.metrics,
		finished_at = excluded.finished_at
	`

	ms := finishedAt.UnixMilli()
	if _, err := mdb.db.ExecContext(ctx, query, jobID, string(payload), ms, ms, ms); err != nil {
		return fmt.Errorf("failed to save metrics for %s: %w", jobID, err)
	}
	return nil
}

const selectColumns = `job_id, owner_id, owner_email, status, progress, message, summary,
	source, level, metrics, created_at, updated_at, finished_at`

// GetJob retrieves a job by id.
func (mdb *MetadataDB) GetJob(ctx context.Context, jobID string) (JobRecord, error) {
	row := mdb.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM jobs WHERE job_id = ?`, jobID)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("failed to get job: %w", err)
	}
	return rec, nil
}

// ListJobs returns the owner's jobs, most recently updated first.
func (mdb *MetadataDB) ListJobs(ctx context.Context, ownerID string, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := mdb.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM jobs WHERE owner_id = ? ORDER BY updated_at DESC LIMIT ?`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []JobRecord{}
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, rec)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (JobRecord, error) {
	var (
		rec                  JobRecord
		status, level        string
		metrics              sql.NullString
		createdAt, updatedAt int64
		finishedAt           sql.NullInt64
	)

	err := s.Scan(&rec.JobID, &rec.OwnerID, &rec.OwnerEmail, &status, &rec.Progress, &rec.Message,
		&rec.Summary, &rec.Source, &level, &metrics, &createdAt, &updatedAt, &finishedAt)
	if err != nil {
		return JobRecord{}, err
	}

	rec.Status = types.State(status)
	rec.Level = types.SummaryLevel(level)
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64)
		rec.FinishedAt = &t
	}
	if metrics.Valid && metrics.String != "" {
		var m types.Metrics
		if err := json.Unmarshal([]byte(metrics.String), &m); err != nil {
			return JobRecord{}, fmt.Errorf("corrupt metrics for %s: %w", rec.JobID, err)
		}
		rec.Metrics = &m
	}
	return rec, nil
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
