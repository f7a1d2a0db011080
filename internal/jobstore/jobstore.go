package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/corpusd/corpusd/internal/storage"
	"github.com/corpusd/corpusd/pkg/types"
)

// Store persists jobs and pipeline state.
type Store struct {
	db *storage.DB
}

// New creates a job store backed by the given database.
func New(db *storage.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, parent_id, source, collection_name, status, created_at,
	started_at, completed_at, total_files, processed_files, failed_files,
	total_chunks, error, total_batches, batch_index`

// CreateJob inserts a new job. The ID must be unique; inserting an
// existing ID yields types.ErrAlreadyExists.
func (s *Store) CreateJob(ctx context.Context, job *types.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if !job.Status.Valid() {
		return fmt.Errorf("invalid job status %q", job.Status)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, nullString(job.ParentID), job.Source, job.CollectionName,
		string(job.Status), job.CreatedAt, nullTime(job.StartedAt),
		nullTime(job.CompletedAt), job.Stats.TotalFiles, job.Stats.ProcessedFiles,
		job.Stats.FailedFiles, job.Stats.TotalChunks, nullString(job.Error),
		job.TotalBatches, job.BatchIndex)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job %s: %w", job.ID, types.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListSubJobs returns the sub-jobs of a parent, ordered by batch index.
func (s *Store) ListSubJobs(ctx context.Context, parentID string) ([]*types.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE parent_id = ? ORDER BY batch_index", parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectJobs(rows)
}

// ListJobs returns jobs filtered by source and/or status, newest first.
// Zero-valued filters match everything. Only parent jobs are listed.
func (s *Store) ListJobs(ctx context.Context, source string, status types.JobStatus, limit int) ([]*types.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + jobColumns + " FROM jobs WHERE parent_id IS NULL"
	args := []interface{}{}
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("invalid job status %q", status)
		}
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectJobs(rows)
}

// UpdateStatus transitions a job to a new status, enforcing the state
// machine. Terminal states set completed_at; RUNNING sets started_at on
// first entry.
func (s *Store) UpdateStatus(ctx context.Context, id string, next types.JobStatus, jobErr string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateStatusTx(ctx, tx, id, next, jobErr); err != nil {
		return err
	}
	return tx.Commit()
}

func updateStatusTx(ctx context.Context, tx *sql.Tx, id string, next types.JobStatus, jobErr string) error {
	var current string
	err := tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}

	if err := types.Transition(types.JobStatus(current), next); err != nil {
		return err
	}

	now := time.Now()
	switch {
	case next.Terminal():
		_, err = tx.ExecContext(ctx,
			"UPDATE jobs SET status = ?, completed_at = ?, error = ? WHERE id = ?",
			string(next), now, nullString(jobErr), id)
	case next == types.JobRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE jobs SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ?",
			string(next), now, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE jobs SET status = ? WHERE id = ?", string(next), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// RecordError sets the error field of a job without touching its status.
// Used when a merge fails and the parent must stay RUNNING for retry.
func (s *Store) RecordError(ctx context.Context, id string, msg string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE jobs SET error = ? WHERE id = ?", nullString(msg), id)
	if err != nil {
		return fmt.Errorf("failed to record job error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// UpdateStats overwrites the stats counters of a job.
func (s *Store) UpdateStats(ctx context.Context, id string, stats types.JobStats) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET total_files = ?, processed_files = ?, failed_files = ?, total_chunks = ?
		WHERE id = ?`,
		stats.TotalFiles, stats.ProcessedFiles, stats.FailedFiles, stats.TotalChunks, id)
	if err != nil {
		return fmt.Errorf("failed to update job stats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// CompleteSubJob finalizes a sub-job with a terminal status and stats,
// then counts terminal siblings, all in one transaction. It returns true
// when this call completed the last outstanding batch of the parent.
//
// The database funnels statements through a single connection, so the
// count-after-update is atomic with respect to concurrent workers and
// exactly one of them observes the final count.
func (s *Store) CompleteSubJob(ctx context.Context, subJobID string, status types.JobStatus, stats types.JobStats, jobErr string) (last bool, err error) {
	if !status.Terminal() {
		return false, fmt.Errorf("sub-job completion requires a terminal status, got %s", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var parentID sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT parent_id FROM jobs WHERE id = ?", subJobID).Scan(&parentID)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("job %s: %w", subJobID, types.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read sub-job: %w", err)
	}
	if !parentID.Valid {
		return false, fmt.Errorf("job %s is not a sub-job", subJobID)
	}

	if err := updateStatusTx(ctx, tx, subJobID, status, jobErr); err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET total_files = ?, processed_files = ?, failed_files = ?, total_chunks = ?
		WHERE id = ?`,
		stats.TotalFiles, stats.ProcessedFiles, stats.FailedFiles, stats.TotalChunks, subJobID)
	if err != nil {
		return false, fmt.Errorf("failed to update sub-job stats: %w", err)
	}

	var terminal, total int
	err = tx.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM jobs WHERE parent_id = ? AND status IN ('COMPLETED', 'FAILED')),
			(SELECT total_batches FROM jobs WHERE id = ?)`,
		parentID.String, parentID.String).Scan(&terminal, &total)
	if err != nil {
		return false, fmt.Errorf("failed to count terminal sub-jobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return total > 0 && terminal == total, nil
}

// GetPipelineState fetches the sync state for a source.
func (s *Store) GetPipelineState(ctx context.Context, source string) (*types.PipelineState, error) {
	var (
		state        types.PipelineState
		processedRaw sql.NullString
		failedRaw    sql.NullString
		lastRun      sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT source, last_commit, processed_files, failed_files, total_chunks, last_run
		FROM pipeline_state WHERE source = ?`, source).Scan(
		&state.Source, &state.LastCommit, &processedRaw, &failedRaw,
		&state.TotalChunks, &lastRun)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pipeline state for %s: %w", source, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline state: %w", err)
	}

	if err := unmarshalFileList(processedRaw, &state.ProcessedFiles); err != nil {
		return nil, err
	}
	if err := unmarshalFileList(failedRaw, &state.FailedFiles); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		state.LastRun = lastRun.Time
	}
	return &state, nil
}

// PutPipelineState upserts the sync state for a source.
func (s *Store) PutPipelineState(ctx context.Context, state *types.PipelineState) error {
	if state.Source == "" {
		return fmt.Errorf("pipeline state source is required")
	}

	processed, err := json.Marshal(state.ProcessedFiles)
	if err != nil {
		return fmt.Errorf("failed to marshal processed files: %w", err)
	}
	failed, err := json.Marshal(state.FailedFiles)
	if err != nil {
		return fmt.Errorf("failed to marshal failed files: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_state (source, last_commit, processed_files, failed_files, total_chunks, last_run)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			last_commit = excluded.last_commit,
			processed_files = excluded.processed_files,
			failed_files = excluded.failed_files,
			total_chunks = excluded.total_chunks,
			last_run = excluded.last_run`,
		state.Source, state.LastCommit, string(processed), string(failed),
		state.TotalChunks, nullTime(state.LastRun))
	if err != nil {
		return fmt.Errorf("failed to put pipeline state: %w", err)
	}
	return nil
}

// Helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job         types.Job
		parentID    sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
		jobErr      sql.NullString
		status      string
	)
	err := row.Scan(
		&job.ID, &parentID, &job.Source, &job.CollectionName, &status,
		&job.CreatedAt, &startedAt, &completedAt, &job.Stats.TotalFiles,
		&job.Stats.ProcessedFiles, &job.Stats.FailedFiles, &job.Stats.TotalChunks,
		&jobErr, &job.TotalBatches, &job.BatchIndex)
	if err != nil {
		return nil, err
	}

	job.Status = types.JobStatus(status)
	if parentID.Valid {
		job.ParentID = parentID.String
	}
	if startedAt.Valid {
		job.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = completedAt.Time
	}
	if jobErr.Valid {
		job.Error = jobErr.String
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*types.Job, error) {
	var jobs []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func unmarshalFileList(raw sql.NullString, dst *[]string) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		return fmt.Errorf("failed to unmarshal file list: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	// Both drivers surface constraint failures with this text
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
