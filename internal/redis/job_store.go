package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fedutinova/avatarcast/internal/common"
	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// defaultListLimit caps List when the caller gives no limit.
const defaultListLimit = 100

// JobStore keeps each record as a JSON document under <prefix>:job:<id>.
// Ids are also indexed by creation time in <prefix>:jobs and, for owned
// records, <prefix>:jobs:owner:<owner>.
type JobStore struct {
	svc *Service
}

var (
	_ job.Store  = (*JobStore)(nil)
	_ job.Lister = (*JobStore)(nil)
)

func NewJobStore(svc *Service) *JobStore {
	return &JobStore{svc: svc}
}

func (s *JobStore) key(id uuid.UUID) string {
	return s.svc.Key("job", id.String())
}

func (s *JobStore) indexKey(owner string) string {
	if owner == "" {
		return s.svc.Key("jobs")
	}
	return s.svc.Key("jobs", "owner", owner)
}

func (s *JobStore) Create(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	ok, err := s.svc.client.SetNX(ctx, s.key(j.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if !ok {
		return common.ErrJobExists
	}

	member := redis.Z{Score: float64(j.Created.UnixMilli()), Member: j.ID.String()}
	_, err = s.svc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.indexKey(""), member)
		if j.Owner != "" {
			pipe.ZAdd(ctx, s.indexKey(j.Owner), member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	data, err := s.svc.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if j.Steps == nil {
		j.Steps = []job.Step{}
	}
	return &j, nil
}

// Put overwrites an existing record. SET XX refuses ids never created.
func (s *JobStore) Put(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	ok, err := s.svc.client.SetXX(ctx, s.key(j.ID), data, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if !ok {
		return common.ErrJobNotFound
	}
	return nil
}

// List returns records newest first from the creation-time index.
func (s *JobStore) List(ctx context.Context, f job.ListFilter) ([]*job.Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	ids, err := s.svc.client.ZRevRange(ctx, s.indexKey(f.Owner), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job index: %w", err)
	}
	if len(ids) == 0 {
		return []*job.Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.svc.Key("job", id)
	}
	values, err := s.svc.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			// indexed id whose document is gone
			continue
		}
		var j job.Job
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job %s: %w", ids[i], err)
		}
		if j.Steps == nil {
			j.Steps = []job.Step{}
		}
		jobs = append(jobs, &j)
	}
	return jobs, nil
}
