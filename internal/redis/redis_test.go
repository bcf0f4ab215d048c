package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fedutinova/avatarcast/internal/common"
	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestService(t *testing.T) *Service {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Skipf("Skipping Redis test: invalid Redis URL: %v", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping Redis test: Redis not available: %v", err)
	}

	svc := NewWithClient(client, "test:"+uuid.New().String()[:8])
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), svc.Key("*")).Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		client.Close()
	})
	return svc
}

func TestKey(t *testing.T) {
	svc := NewWithClient(nil, "")
	if got := svc.Key("job", "abc"); got != "avatarcast:job:abc" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestJobStore_CreateGetPut(t *testing.T) {
	svc := newTestService(t)
	store := NewJobStore(svc)
	ctx := context.Background()

	j := job.New(job.Params{Text: "Olá", Language: "pt-BR"})
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, j); !common.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	got, err := store.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != job.StatusQueued || got.Params.Text != "Olá" {
		t.Errorf("unexpected record: %+v", got)
	}

	if err := got.Start(time.Now().UTC()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := store.Put(ctx, got); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	again, err := store.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Status != job.StatusRunning || again.Progress != job.ProgressStarted {
		t.Errorf("expected running at %d, got %s at %d", job.ProgressStarted, again.Status, again.Progress)
	}
}

func TestJobStore_NotFound(t *testing.T) {
	svc := newTestService(t)
	store := NewJobStore(svc)
	ctx := context.Background()

	if _, err := store.Get(ctx, uuid.New()); !common.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Put(ctx, job.New(job.Params{})); !common.IsNotFound(err) {
		t.Fatalf("expected not found on put of unknown id, got %v", err)
	}
}

func TestAudioCache(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, ok, err := svc.CachedAudio(ctx, "k1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := svc.CacheAudio(ctx, "k1", "/tmp/a.wav", time.Minute); err != nil {
		t.Fatalf("CacheAudio failed: %v", err)
	}
	path, ok, err := svc.CachedAudio(ctx, "k1")
	if err != nil || !ok || path != "/tmp/a.wav" {
		t.Fatalf("expected hit, got %q ok=%v err=%v", path, ok, err)
	}
	if err := svc.EvictAudio(ctx, "k1"); err != nil {
		t.Fatalf("EvictAudio failed: %v", err)
	}
	if _, ok, _ := svc.CachedAudio(ctx, "k1"); ok {
		t.Fatal("expected miss after eviction")
	}
}

func TestJobStore_List(t *testing.T) {
	svc := newTestService(t)
	store := NewJobStore(svc)
	ctx := context.Background()

	base := time.Now().UTC()
	var ids []uuid.UUID
	for i, owner := range []string{"ana", "carlos", "ana"} {
		j := job.New(job.Params{Text: "Olá", Language: "pt-BR"})
		j.Owner = owner
		j.Created = base.Add(time.Duration(i) * time.Second)
		if err := store.Create(ctx, j); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, j.ID)
	}

	all, err := store.List(ctx, job.ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Fatalf("expected newest first, got %d records", len(all))
	}

	mine, err := store.List(ctx, job.ListFilter{Owner: "ana", Limit: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != ids[2] || mine[0].Owner != "ana" {
		t.Fatalf("unexpected owner listing: %+v", mine)
	}
}
