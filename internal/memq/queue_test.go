package memq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fedutinova/avatarcast/internal/common"
	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/google/uuid"
)

func TestDequeue_EmptyIsNotError(t *testing.T) {
	q := NewMemoryQueue(4)

	id, ok, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue error: %v", err)
	}
	if ok || id != uuid.Nil {
		t.Fatalf("expected no work, got %s", id)
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
	}
	if n, _ := q.Len(ctx); n != 3 {
		t.Fatalf("expected len 3, got %d", n)
	}

	for i, want := range ids {
		got, ok, err := q.Dequeue(ctx)
		if err != nil || !ok {
			t.Fatalf("Dequeue %d: ok=%v err=%v", i, ok, err)
		}
		if got != want {
			t.Fatalf("Dequeue %d: expected %s, got %s", i, want, got)
		}
	}
	if _, ok, _ := q.Dequeue(ctx); ok {
		t.Fatalf("expected queue to be drained")
	}
}

func TestQueue_ConcurrentDequeueIsExactlyOnce(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	const n = 500
	var producers sync.WaitGroup
	for i := 0; i < n; i++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			_ = q.Enqueue(ctx, uuid.New())
		}()
	}
	producers.Wait()

	var (
		mu   sync.Mutex
		seen = make(map[uuid.UUID]int, n)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, ok, err := q.Dequeue(ctx)
				if err != nil || !ok {
					return
				}
				mu.Lock()
				seen[id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(seen))
	}
	for id, c := range seen {
		if c != 1 {
			t.Fatalf("id %s dequeued %d times", id, c)
		}
	}
}

func TestQueue_CanceledContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, uuid.New()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStore_CreateGetPut(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	j := job.New(job.Params{Text: "Olá mundo", Language: "pt-BR"})

	if err := s.Create(ctx, j); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := s.Create(ctx, j); !errors.Is(err, common.ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}

	got, err := s.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	got.Progress = 50
	if again, _ := s.Get(ctx, j.ID); again.Progress != 0 {
		t.Fatalf("mutating a returned record must not change the store")
	}

	if err := s.Put(ctx, got); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if again, _ := s.Get(ctx, j.ID); again.Progress != 50 {
		t.Fatalf("expected overwrite to be visible")
	}
}

func TestStore_NotFound(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, uuid.New()); !common.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Put(ctx, job.New(job.Params{})); !common.IsNotFound(err) {
		t.Fatalf("expected not found on put of unknown id, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now().UTC()

	var ids []uuid.UUID
	for i, owner := range []string{"ana", "carlos", "ana"} {
		j := job.New(job.Params{Text: "Olá", Language: "pt-BR"})
		j.Owner = owner
		j.Created = base.Add(time.Duration(i) * time.Second)
		if err := s.Create(ctx, j); err != nil {
			t.Fatalf("Create error: %v", err)
		}
		ids = append(ids, j.ID)
	}

	all, err := s.List(ctx, job.ListFilter{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Fatalf("expected newest first, got %v %v %v", all[0].ID, all[1].ID, all[2].ID)
	}

	mine, _ := s.List(ctx, job.ListFilter{Owner: "ana"})
	if len(mine) != 2 || mine[0].ID != ids[2] || mine[1].ID != ids[0] {
		t.Fatalf("unexpected owner listing: %d records", len(mine))
	}

	limited, _ := s.List(ctx, job.ListFilter{Limit: 1})
	if len(limited) != 1 || limited[0].ID != ids[2] {
		t.Fatalf("expected only the newest record, got %d", len(limited))
	}

	limited[0].Progress = 99
	if again, _ := s.Get(ctx, ids[2]); again.Progress != 0 {
		t.Fatalf("listed records must be copies")
	}
}
