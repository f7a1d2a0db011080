// Package types provides shared type definitions for the corpusd ingestion
// and search service.
//
// This package defines the domain types used across components: documents and
// their structural blocks, chunks, ingestion jobs with their state machine,
// per-source pipeline state, search results, and the error taxonomy.
//
// # Core Types
//
// Chunk is the unit of embedding and storage. Its ID is deterministic,
// derived from the source path and byte offset, so re-chunking the same
// byte range always produces the same ID:
//
//	chunk := types.Chunk{
//	    SourcePath:  "docs/guide.md",
//	    Content:     sectionText,
//	    StartOffset: 1024,
//	    EndOffset:   2048,
//	}
//	chunk.ComputeID()
//
// Job records track ingestion runs. One dispatch creates a parent job and
// one sub-job per batch; sub-job IDs embed the parent ID and batch index:
//
//	subID := types.SubJobID(parentID, 3) // "<parent>_0003"
//
// # Job State Machine
//
// JobStatus is a closed enum. Transitions are validated by Transition;
// invalid transitions (e.g. COMPLETED back to RUNNING) are rejected:
//
//	if err := types.Transition(job.Status, types.JobCompleted); err != nil {
//	    return err
//	}
//
// # Error Taxonomy
//
// Sentinel errors classify ingestion failures by blast radius: ErrParse is
// per-file (recorded and skipped), ErrEmbedding is batch-level (the task is
// redelivered), ErrDispatch marks a single sub-job failed, ErrMerge halts
// one parent job but is retryable, and ErrFullResyncRequired forces the
// caller to treat every path as newly added.
package types
