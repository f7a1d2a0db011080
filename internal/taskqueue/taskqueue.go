package taskqueue

import (
	"context"
	"time"
)

// Default delivery tuning.
const (
	DefaultVisibilityTimeout = 2 * time.Minute
	DefaultMaxAttempts       = 5
	DefaultRetryBackoff      = 5 * time.Second
)

// TaskStatus enumerates the lifecycle states of a queued task.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskInflight TaskStatus = "inflight"
	TaskDead     TaskStatus = "dead"
)

// Task is one delivery of a queued payload.
type Task struct {
	ID       int64
	Queue    string
	Payload  []byte
	Attempts int
}

// Broker produces and consumes tasks.
type Broker interface {
	// Enqueue appends a task and returns its ID.
	Enqueue(ctx context.Context, queue string, payload []byte) (int64, error)

	// Claim leases the oldest deliverable task of the queue, or returns
	// nil when none is due. A claimed task is invisible to other callers
	// until its visibility deadline lapses.
	Claim(ctx context.Context, queue string) (*Task, error)

	// Ack finishes a delivered task permanently.
	Ack(ctx context.Context, id int64) error

	// Nack returns a failed task to the queue for redelivery after a
	// backoff. Once attempts are exhausted the task is parked as dead
	// instead, and Nack reports that so the caller can fail the work the
	// task carried.
	Nack(ctx context.Context, id int64) (dead bool, err error)
}

// Options tune delivery behavior.
type Options struct {
	VisibilityTimeout time.Duration
	MaxAttempts       int
	RetryBackoff      time.Duration
}

func (o Options) withDefaults() Options {
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	return o
}

// backoffFor grows the redelivery delay exponentially with attempts.
func (o Options) backoffFor(attempts int) time.Duration {
	d := o.RetryBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d > 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return d
}
