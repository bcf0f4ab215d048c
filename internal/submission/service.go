package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/fedutinova/avatarcast/internal/validation"
	"github.com/google/uuid"
)

// Service is the entry point for new render requests and status queries.
type Service struct {
	store job.Store
	queue job.Queue
}

func NewService(store job.Store, queue job.Queue) *Service {
	return &Service{store: store, queue: queue}
}

// Submit validates the request, persists a queued record and enqueues its id.
// The record is written before the id becomes visible to the worker. A
// rejected request returns validation.ValidationErrors and writes nothing.
func (s *Service) Submit(ctx context.Context, req validation.RenderRequest) (uuid.UUID, error) {
	return s.SubmitAs(ctx, "", req)
}

// SubmitAs is Submit with the record attributed to owner.
func (s *Service) SubmitAs(ctx context.Context, owner string, req validation.RenderRequest) (uuid.UUID, error) {
	params, verrs := validation.ValidateRenderRequest(req)
	if len(verrs) > 0 {
		return uuid.Nil, verrs
	}

	j := job.New(params)
	j.Owner = owner
	if err := s.store.Create(ctx, j); err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, j.ID); err != nil {
		// The record stays queued with nothing to pick it up. Surface the error
		// so the caller can resubmit.
		slog.Error("failed to enqueue job", "job_id", j.ID, "error", err)
		return uuid.Nil, fmt.Errorf("enqueue job: %w", err)
	}

	slog.Info("job submitted", "job_id", j.ID, "avatar", params.Avatar,
		"language", params.Language, "text_length", len([]rune(params.Text)))
	return j.ID, nil
}

// Status returns a snapshot of the job record.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	return s.store.Get(ctx, id)
}

// Backlog reports how many ids are waiting in the queue.
func (s *Service) Backlog(ctx context.Context) (int64, error) {
	return s.queue.Len(ctx)
}

// List returns records newest first when the store can enumerate them.
func (s *Service) List(ctx context.Context, f job.ListFilter) ([]*job.Job, error) {
	lister, ok := s.store.(job.Lister)
	if !ok {
		return nil, fmt.Errorf("job listing: %w", errors.ErrUnsupported)
	}
	return lister.List(ctx, f)
}
