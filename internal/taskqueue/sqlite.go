package taskqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/corpusd/corpusd/internal/storage"
)

// SQLiteBroker implements Broker on the shared SQLite database.
type SQLiteBroker struct {
	db   *storage.DB
	opts Options
}

// NewSQLiteBroker creates a broker backed by the given database.
func NewSQLiteBroker(db *storage.DB, opts Options) *SQLiteBroker {
	return &SQLiteBroker{db: db, opts: opts.withDefaults()}
}

func (b *SQLiteBroker) Enqueue(ctx context.Context, queue string, payload []byte) (int64, error) {
	if queue == "" {
		return 0, fmt.Errorf("queue name is required")
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO tasks (queue, payload, status, max_attempts, visible_at)
		VALUES (?, ?, 'pending', ?, ?)`,
		queue, payload, b.opts.MaxAttempts, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return res.LastInsertId()
}

func (b *SQLiteBroker) Claim(ctx context.Context, queue string) (*Task, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Pending tasks and lapsed in-flight claims are both deliverable
	var task Task
	err = tx.QueryRowContext(ctx, `
		SELECT id, queue, payload, attempts FROM tasks
		WHERE queue = ? AND status IN ('pending', 'inflight') AND visible_at <= ?
		ORDER BY id LIMIT 1`,
		queue, time.Now()).Scan(&task.ID, &task.Queue, &task.Payload, &task.Attempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select task: %w", err)
	}

	task.Attempts++
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET status = 'inflight', attempts = ?, visible_at = ?, updated_at = ?
		WHERE id = ?`,
		task.Attempts, time.Now().Add(b.opts.VisibilityTimeout), time.Now(), task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task %d: %w", task.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &task, nil
}

func (b *SQLiteBroker) Ack(ctx context.Context, id int64) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to ack task %d: %w", id, err)
	}
	return nil
}

func (b *SQLiteBroker) Nack(ctx context.Context, id int64) (bool, error) {
	var attempts, maxAttempts int
	err := b.db.QueryRowContext(ctx,
		"SELECT attempts, max_attempts FROM tasks WHERE id = ?", id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("task %d not found", id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read task %d: %w", id, err)
	}

	if attempts >= maxAttempts {
		_, err = b.db.ExecContext(ctx,
			"UPDATE tasks SET status = 'dead', updated_at = ? WHERE id = ?", time.Now(), id)
		if err != nil {
			return false, fmt.Errorf("failed to park task %d: %w", id, err)
		}
		return true, nil
	}

	_, err = b.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'pending', visible_at = ?, updated_at = ? WHERE id = ?`,
		time.Now().Add(b.opts.backoffFor(attempts)), time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to nack task %d: %w", id, err)
	}
	return false, nil
}

// DeadCount returns how many tasks of the queue are parked as dead.
func (b *SQLiteBroker) DeadCount(ctx context.Context, queue string) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE queue = ? AND status = 'dead'", queue).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count dead tasks: %w", err)
	}
	return n, nil
}

// PendingCount returns how many tasks of the queue await delivery.
func (b *SQLiteBroker) PendingCount(ctx context.Context, queue string) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE queue = ? AND status IN ('pending', 'inflight')", queue).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending tasks: %w", err)
	}
	return n, nil
}
