package types

import "errors"

// Error taxonomy for the ingestion pipeline. Each sentinel classifies a
// failure by blast radius; callers use errors.Is to decide whether to skip
// a file, redeliver a batch, or halt a merge.
var (
	// ErrParse is a per-file failure: recorded in failed_files and skipped,
	// never aborts the batch.
	ErrParse = errors.New("parse error")

	// ErrEmbedding is a batch-level failure: the task delivery fails and the
	// queue redelivers it.
	ErrEmbedding = errors.New("embedding error")

	// ErrDispatch is an enqueue failure: the affected sub-job is marked
	// FAILED without blocking the remaining batches.
	ErrDispatch = errors.New("dispatch error")

	// ErrMerge halts forward progress for one parent job; the merge is
	// always safe to retry because batch collections are immutable.
	ErrMerge = errors.New("merge error")

	// ErrFullResyncRequired means revision history is unavailable or
	// corrupted; the caller must treat every path as added.
	ErrFullResyncRequired = errors.New("full resync required")

	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a duplicate record
	ErrAlreadyExists = errors.New("already exists")
)
