package memq

import (
	"context"
	"sync"

	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/google/uuid"
)

type memQueue struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

// NewMemoryQueue returns an in-process FIFO. Enqueue and Dequeue are
// serialized by a single mutex.
func NewMemoryQueue(buffer int) job.Queue {
	return &memQueue{
		ids: make([]uuid.UUID, 0, buffer),
	}
}

func (q *memQueue) Enqueue(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.ids = append(q.ids, id)
	q.mu.Unlock()
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context) (uuid.UUID, bool, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return uuid.Nil, false, nil
	}
	id := q.ids[0]
	q.ids[0] = uuid.Nil
	q.ids = q.ids[1:]
	return id, true, nil
}

func (q *memQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ids)), nil
}
