package taskqueue

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler processes one task delivery. A non-nil error triggers
// redelivery via Nack.
type Handler func(ctx context.Context, task *Task) error

// DeadHandler is notified when a task exhausts its delivery attempts
// and is parked dead, carrying the handler error of the final attempt.
type DeadHandler func(ctx context.Context, task *Task, cause error)

// Runner polls the broker with a pool of workers and dispatches
// deliveries to registered handlers.
type Runner struct {
	broker       Broker
	handlers     map[string]Handler
	deadLetters  map[string]DeadHandler
	concurrency  int
	pollInterval time.Duration
}

// NewRunner creates a runner with the given worker count.
func NewRunner(broker Broker, concurrency int, pollInterval time.Duration) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &Runner{
		broker:       broker,
		handlers:     make(map[string]Handler),
		deadLetters:  make(map[string]DeadHandler),
		concurrency:  concurrency,
		pollInterval: pollInterval,
	}
}

// Register binds a handler to a queue. Must be called before Run.
func (r *Runner) Register(queue string, h Handler) {
	r.handlers[queue] = h
}

// RegisterDeadLetter binds a callback invoked when a task on the queue
// is parked dead. Must be called before Run.
func (r *Runner) RegisterDeadLetter(queue string, h DeadHandler) {
	r.deadLetters[queue] = h
}

// Run blocks, polling all registered queues until the context is
// canceled. It always returns the context error on shutdown.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	queues := make([]string, 0, len(r.handlers))
	for q := range r.handlers {
		queues = append(queues, q)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.concurrency; i++ {
		g.Go(func() error {
			return r.workerLoop(ctx, queues)
		})
	}
	return g.Wait()
}

func (r *Runner) workerLoop(ctx context.Context, queues []string) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		worked := false
		for _, queue := range queues {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if r.deliverOne(ctx, queue) {
				worked = true
			}
		}
		if worked {
			// Drain without waiting while tasks are flowing
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// deliverOne claims and handles a single task, reporting whether any
// work was found.
func (r *Runner) deliverOne(ctx context.Context, queue string) bool {
	task, err := r.broker.Claim(ctx, queue)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("taskqueue: claim on %s failed: %v", queue, err)
		}
		return false
	}
	if task == nil {
		return false
	}

	if err := r.handlers[queue](ctx, task); err != nil {
		log.Printf("taskqueue: task %d on %s failed (attempt %d): %v", task.ID, queue, task.Attempts, err)
		dead, nackErr := r.broker.Nack(ctx, task.ID)
		if nackErr != nil && ctx.Err() == nil {
			log.Printf("taskqueue: nack of task %d failed: %v", task.ID, nackErr)
		}
		if dead {
			log.Printf("taskqueue: task %d on %s parked dead after %d attempts", task.ID, queue, task.Attempts)
			if h := r.deadLetters[queue]; h != nil {
				h(ctx, task, err)
			}
		}
		return true
	}

	if err := r.broker.Ack(ctx, task.ID); err != nil && ctx.Err() == nil {
		log.Printf("taskqueue: ack of task %d failed: %v", task.ID, err)
	}
	return true
}
