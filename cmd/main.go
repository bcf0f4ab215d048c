package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fedutinova/avatarcast/internal/auth"
	appconfig "github.com/fedutinova/avatarcast/internal/config"
	"github.com/fedutinova/avatarcast/internal/database"
	"github.com/fedutinova/avatarcast/internal/executors"
	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/fedutinova/avatarcast/internal/memq"
	"github.com/fedutinova/avatarcast/internal/pipeline"
	"github.com/fedutinova/avatarcast/internal/queue"
	"github.com/fedutinova/avatarcast/internal/redis"
	"github.com/fedutinova/avatarcast/internal/repository"
	"github.com/fedutinova/avatarcast/internal/server"
	"github.com/fedutinova/avatarcast/internal/storage"
	"github.com/fedutinova/avatarcast/internal/submission"
	httpapi "github.com/fedutinova/avatarcast/internal/transport/http"
)

const memoryQueueBuffer = 1024

func main() {
	cfg := appconfig.Load()
	slog.SetDefault(newLogger(cfg))

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := mintToken(cfg, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		slog.Error("avatarcast stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg appconfig.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// mintToken prints a signed bearer token for local use.
func mintToken(cfg appconfig.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("sub", "local-dev", "token subject")
	roles := fs.String("roles", "producer", "comma-separated roles")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !cfg.AuthEnabled() {
		return errors.New("JWT_SECRET is not set")
	}

	var list []string
	for _, r := range strings.Split(*roles, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !auth.KnownRole(r) {
			return fmt.Errorf("unknown role %q", r)
		}
		list = append(list, r)
	}

	tok, err := auth.NewToken(cfg.JWTSecret, cfg.JWTIssuer, *subject, list, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func run(cfg appconfig.Config) error {
	slog.Info("starting avatarcast", "addr", cfg.HTTPAddr, "mode", cfg.RunMode,
		"store", cfg.StoreBackend, "queue", cfg.QueueBackend)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pingers := map[string]httpapi.Pinger{}

	var redisService *redis.Service
	if cfg.StoreBackend == appconfig.BackendRedis || cfg.QueueBackend == appconfig.BackendRedis {
		svc, err := redis.New(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return err
		}
		defer svc.Close()
		redisService = svc
		pingers["redis"] = svc
	}

	var (
		store   job.Store
		counter httpapi.StatusCounter
	)
	switch cfg.StoreBackend {
	case appconfig.BackendPostgres:
		db, err := database.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		repo := repository.NewJobRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		store, counter = repo, repo
		pingers["database"] = db
	case appconfig.BackendRedis:
		store = redis.NewJobStore(redisService)
	default:
		mem := memq.NewStore()
		store, counter = mem, mem
	}

	var q job.Queue
	if cfg.QueueBackend == appconfig.BackendRedis {
		q = queue.NewRedisQueue(redisService.Client(), redisService.Key("queue"))
	} else {
		q = memq.NewMemoryQueue(memoryQueueBuffer)
	}

	var wg sync.WaitGroup
	if cfg.RunMode == appconfig.RunModeAll || cfg.RunMode == appconfig.RunModeWorker {
		runner, err := newRunner(ctx, cfg, store, q, redisService)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("pipeline runner stopped", "err", err)
			}
		}()
	}

	var srv *http.Server
	if cfg.RunMode == appconfig.RunModeAll || cfg.RunMode == appconfig.RunModeAPI {
		handlers := &httpapi.Handlers{
			Jobs:    submission.NewService(store, q),
			Counter: counter,
			Pingers: pingers,
			Config:  cfg,
		}
		if storage.IsLocal(cfg) {
			handlers.FilesDir = cfg.LocalStorageDir
		}

		srv = &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      server.NewRouter(handlers),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  90 * time.Second,
		}
		go func() {
			slog.Info("http server listening", "addr", cfg.HTTPAddr, "auth", cfg.AuthEnabled())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("server error", "err", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")

	if srv != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
	}
	// The runner finishes its current job before returning.
	wg.Wait()
	return nil
}

func newRunner(ctx context.Context, cfg appconfig.Config, store job.Store, q job.Queue, rs *redis.Service) (*pipeline.Runner, error) {
	artifacts, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	slog.Info("storage initialized", "type", storage.GetStorageType(cfg))

	breaker := executors.DefaultBreakerSettings()

	var cache executors.AudioCache
	if rs != nil {
		cache = rs
	}

	exec := pipeline.Executors{
		Synthesis: executors.GuardSynthesizer(
			executors.NewSpeechSynthesizer(cfg.OpenAIAPIKey, cfg.TTSModel),
			breaker, cache, cfg.TTSModel, cfg.SynthesisCacheTTL),
		Animation: executors.NewBreakerAnimator(
			executors.NewAnimationClient(cfg.AnimationURL, cfg.AnimationModel, cfg.AnimationTimeout), breaker),
		Render: executors.NewCommandRenderer(cfg.RenderBin),
		Mux:    executors.NewFFmpegMuxer(cfg.FFmpegBin, artifacts),
	}

	return pipeline.NewRunner(store, q, exec, pipeline.Config{
		PollInterval: cfg.PollInterval,
		StageTimeout: cfg.StageTimeout,
		WorkDir:      cfg.WorkDir,
	}, slog.Default()), nil
}
