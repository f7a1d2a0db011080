// Package ingest orchestrates parallel batch ingestion of document
// sources into the vector store.
//
// A dispatch partitions a source's file list into fixed-size batches and
// fans them out over the task queue: one parent job, one sub-job and one
// task per batch. Workers consume tasks independently, each writing its
// chunks into a private batch collection so concurrent batches never
// touch shared state. The worker that completes the last outstanding
// batch triggers the merge, which unions the batch collections into the
// source's canonical collection and finalizes the parent job.
//
// Every step tolerates at-least-once task delivery: sub-job IDs, batch
// collection names, and chunk IDs are all deterministic, so a redelivered
// task overwrites its previous work instead of duplicating it.
package ingest
