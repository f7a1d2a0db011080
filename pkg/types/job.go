package types

import (
	"fmt"
	"time"
)

// JobStatus represents the state of an ingestion job
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether the status is a known enum value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Transition validates a status change. Re-entering RUNNING is permitted
// because task redelivery may mark an already-running sub-job; terminal
// states accept no further transitions.
func Transition(current, next JobStatus) error {
	if !current.Valid() || !next.Valid() {
		return fmt.Errorf("unknown job status %q -> %q", current, next)
	}

	switch current {
	case JobPending:
		if next == JobRunning || next == JobCompleted || next == JobFailed {
			return nil
		}
	case JobRunning:
		if next == JobRunning || next == JobCompleted || next == JobFailed {
			return nil
		}
	}

	return fmt.Errorf("invalid job transition %s -> %s", current, next)
}

// JobStats aggregates per-job processing counters. For a parent job these
// equal the sum over its sub-jobs once all sub-jobs are terminal.
type JobStats struct {
	TotalFiles     int `json:"total_files"`
	ProcessedFiles int `json:"processed_files"`
	FailedFiles    int `json:"failed_files"`
	TotalChunks    int `json:"total_chunks"`
}

// Add accumulates another stats record into this one.
func (s *JobStats) Add(other JobStats) {
	s.TotalFiles += other.TotalFiles
	s.ProcessedFiles += other.ProcessedFiles
	s.FailedFiles += other.FailedFiles
	s.TotalChunks += other.TotalChunks
}

// Job is an ingestion job record. A parent job has an empty ParentID and
// TotalBatches set; its sub-jobs carry the parent ID and a batch index.
// Jobs are never deleted; they are retained for audit.
type Job struct {
	ID             string    `json:"job_id"`
	ParentID       string    `json:"parent_job_id,omitempty"`
	Source         string    `json:"source"`
	CollectionName string    `json:"collection_name"`
	Status         JobStatus `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	CompletedAt    time.Time `json:"completed_at,omitzero"`
	Stats          JobStats  `json:"stats"`
	Error          string    `json:"error,omitempty"`
	TotalBatches   int       `json:"total_batches,omitempty"`
	BatchIndex     int       `json:"batch_index,omitempty"`
}

// IsParent reports whether this job is a parent (dispatch-level) job.
func (j *Job) IsParent() bool {
	return j.ParentID == ""
}

// SubJobID derives the deterministic sub-job ID for a batch of a parent job.
func SubJobID(parentID string, batchIndex int) string {
	return fmt.Sprintf("%s_%04d", parentID, batchIndex)
}

// BatchCollection derives the isolated collection name a batch writes into.
func BatchCollection(parentID string, batchIndex int) string {
	return fmt.Sprintf("%s_batch_%04d", parentID, batchIndex)
}

// BatchCollectionPrefix is the ListCollections prefix matching every batch
// collection of a parent job.
func BatchCollectionPrefix(parentID string) string {
	return parentID + "_batch_"
}

// PipelineState is the per-source incremental sync record. It is read
// before a run to compute the diff base and written atomically after a run
// completes.
type PipelineState struct {
	Source         string    `json:"source"`
	LastCommit     string    `json:"last_commit"`
	ProcessedFiles []string  `json:"processed_files"`
	FailedFiles    []string  `json:"failed_files"`
	TotalChunks    int       `json:"total_chunks"`
	LastRun        time.Time `json:"last_run"`
}
