// Package vectorstore persists embedded chunks in named collections and
// serves cosine-similarity search over them.
//
// Collections isolate ingestion runs: each batch job writes into its own
// collection, and a successful merge copies batch collections into the
// canonical per-source collection. Adds are upserts keyed by chunk ID, so
// redelivered batch tasks can safely write the same chunks twice.
//
// Two implementations exist: SQLite (vectors stored as little-endian
// float32 blobs, similarity computed in Go) and an in-memory store used
// by tests.
package vectorstore
