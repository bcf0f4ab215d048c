package memq

import (
	"context"
	"sort"
	"sync"

	"github.com/fedutinova/avatarcast/internal/common"
	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/google/uuid"
)

// Store keeps job records in process memory. Records are cloned on the way
// in and out, so callers never alias stored state.
type Store struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*job.Job
}

var (
	_ job.Store  = (*Store)(nil)
	_ job.Lister = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{jobs: make(map[uuid.UUID]*job.Job)}
}

func (s *Store) Create(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; exists {
		return common.ErrJobExists
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (s *Store) Put(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		return common.ErrJobNotFound
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// CountByStatus reports how many records are in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[job.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[job.Status]int64)
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

// List returns records newest first, optionally restricted to one owner.
func (s *Store) List(ctx context.Context, f job.ListFilter) ([]*job.Job, error) {
	s.mu.RLock()
	out := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if f.Owner != "" && j.Owner != f.Owner {
			continue
		}
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if !out[a].Created.Equal(out[b].Created) {
			return out[a].Created.After(out[b].Created)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
