// Package taskqueue is a durable task queue with at-least-once delivery.
//
// Tasks are rows in the shared SQLite database. Claiming a task marks it
// in-flight and stamps a visibility deadline; a worker that crashes or
// stalls past the deadline loses the claim and the task is redelivered.
// Failed deliveries retry with exponential backoff until max attempts,
// then park as dead; dead-lettering is reported to the producer side via
// Nack's return value and the Runner's dead-letter callbacks, so the
// work a dead task carried can be failed rather than lost.
//
// Consumers must therefore be idempotent. Ingestion batch tasks are: chunk
// upserts and job status re-marks are safe to repeat.
//
// The Runner polls queues with a pool of workers and dispatches to
// registered handlers. An in-memory broker exists for tests.
package taskqueue
