// Package jobstore tracks ingestion jobs and per-source pipeline state.
//
// Parent jobs and their batch sub-jobs share one table, linked by parent
// ID. Status updates go through the transition rules in pkg/types, so a
// terminal job cannot be reopened and redelivered tasks may re-mark a
// sub-job RUNNING without error.
//
// CompleteSubJob is the linchpin of merge coordination: it finalizes a
// sub-job and counts terminal siblings inside one transaction, reporting
// whether the caller just finished the last batch. Exactly one concurrent
// caller sees true, which makes it safe to trigger the merge from that
// worker.
package jobstore
