package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fedutinova/avatarcast/internal/common"
	"github.com/fedutinova/avatarcast/internal/database"
	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/google/uuid"
)

func newTestRepository(t *testing.T) *JobRepository {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping Postgres test: TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := database.NewDB(ctx, url)
	if err != nil {
		t.Skipf("Skipping Postgres test: database not available: %v", err)
	}
	t.Cleanup(db.Close)

	repo := NewJobRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return repo
}

func TestJobRepository_Lifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	j := job.New(job.Params{
		Text:     "Olá mundo",
		Language: "pt-BR",
		Voice:    job.Voice{Style: "neutral", Speed: 1},
		Avatar:   "br_corporate_ana",
		Output:   job.Output{Resolution: "1080p", Codec: "h264"},
	})
	if err := repo.Create(ctx, j); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(ctx, j); !common.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := repo.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != job.StatusQueued || len(got.Steps) != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Params != j.Params {
		t.Errorf("params not round-tripped: %+v", got.Params)
	}

	now := time.Now().UTC()
	if err := got.Start(now); err != nil {
		t.Fatal(err)
	}
	if err := got.CompleteStage(job.StageSynthesis, 1200*time.Millisecond, 25, now); err != nil {
		t.Fatal(err)
	}
	if err := repo.Put(ctx, got); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	again, err := repo.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Status != job.StatusRunning || again.Progress != 25 || len(again.Steps) != 1 {
		t.Fatalf("unexpected record after put: %+v", again)
	}
	if again.Started == nil {
		t.Error("expected started_at to be set")
	}
	if d := again.Steps[0].DurationMs; d == nil || *d != 1200 {
		t.Errorf("unexpected step duration: %v", d)
	}
}

func TestJobRepository_NotFound(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.Get(ctx, uuid.New()); !common.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.Put(ctx, job.New(job.Params{})); !common.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestJobRepository_List(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	owner := "owner-" + uuid.NewString()
	base := time.Now().UTC().Add(time.Hour)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		j := job.New(job.Params{Text: "Olá", Language: "pt-BR"})
		j.Owner = owner
		j.Created = base.Add(time.Duration(i) * time.Second)
		if err := repo.Create(ctx, j); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, j.ID)
	}

	got, err := repo.List(ctx, job.ListFilter{Owner: owner, Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Fatalf("expected newest first, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Owner != owner {
		t.Errorf("owner not round-tripped: %q", got[0].Owner)
	}

	none, err := repo.List(ctx, job.ListFilter{Owner: "nobody-" + uuid.NewString()})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no records, got %d", len(none))
	}
}
