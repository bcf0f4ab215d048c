package job

import (
	"context"

	"github.com/google/uuid"
)

// Store is durable keyed storage for job records.
//
// Create fails with common.ErrJobExists on an id collision, Get and Put fail
// with common.ErrJobNotFound for unknown ids. Put is a full overwrite.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	Put(ctx context.Context, j *Job) error
}

// Queue is a FIFO of job ids. Dequeue reports ok=false when no work is
// pending; an empty queue is not an error.
type Queue interface {
	Enqueue(ctx context.Context, id uuid.UUID) error
	Dequeue(ctx context.Context) (id uuid.UUID, ok bool, err error)
	Len(ctx context.Context) (int64, error)
}

// ListFilter narrows List. An empty Owner matches every record.
type ListFilter struct {
	Owner string
	Limit int
}

// Lister is implemented by stores that can enumerate records newest first.
type Lister interface {
	List(ctx context.Context, f ListFilter) ([]*Job, error)
}
