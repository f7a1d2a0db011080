// Package storage owns the SQLite database shared by the vector store,
// job store, and task queue.
//
// # Build Modes
//
// Two drivers are supported via build tags:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...   (mattn/go-sqlite3)
//	CGO_ENABLED=0 go build ./...                    (modernc.org/sqlite)
//
// The pure Go driver is the default and requires no C toolchain. The CGO
// driver is faster under heavy ingestion load.
//
// # Concurrency
//
// The pool is capped at a single connection. SQLite has one writer anyway,
// and funneling every statement through one connection makes transactions
// from concurrent queue workers serialize instead of returning SQLITE_BUSY.
//
// # Migrations
//
// Schema changes are expressed as semver-ordered migrations applied at
// open time. The current version is recorded in the schema_version table.
package storage
