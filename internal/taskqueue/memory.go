package taskqueue

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-memory Broker for tests.
type MemoryBroker struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*memTask
	opts   Options
}

type memTask struct {
	task      Task
	status    TaskStatus
	visibleAt time.Time
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker(opts Options) *MemoryBroker {
	return &MemoryBroker{
		tasks: make(map[int64]*memTask),
		opts:  opts.withDefaults(),
	}
}

func (m *MemoryBroker) Enqueue(_ context.Context, queue string, payload []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.tasks[m.nextID] = &memTask{
		task:      Task{ID: m.nextID, Queue: queue, Payload: payload},
		status:    TaskPending,
		visibleAt: time.Now(),
	}
	return m.nextID, nil
}

func (m *MemoryBroker) Claim(_ context.Context, queue string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var oldest *memTask
	for _, mt := range m.tasks {
		if mt.task.Queue != queue || mt.status == TaskDead || mt.visibleAt.After(now) {
			continue
		}
		if oldest == nil || mt.task.ID < oldest.task.ID {
			oldest = mt
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.status = TaskInflight
	oldest.task.Attempts++
	oldest.visibleAt = now.Add(m.opts.VisibilityTimeout)

	claimed := oldest.task
	return &claimed, nil
}

func (m *MemoryBroker) Ack(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *MemoryBroker) Nack(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.tasks[id]
	if !ok {
		return false, nil
	}
	if mt.task.Attempts >= m.opts.MaxAttempts {
		mt.status = TaskDead
		return true, nil
	}
	mt.status = TaskPending
	mt.visibleAt = time.Now().Add(m.opts.backoffFor(mt.task.Attempts))
	return false, nil
}
