package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fedutinova/avatarcast/internal/common"
	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/google/uuid"
)

const defaultPollInterval = time.Second

type Config struct {
	// PollInterval is the sleep between polls of an empty queue.
	PollInterval time.Duration
	// StageTimeout bounds each executor call when positive. Zero means no
	// timeout, which lets a hung executor stall the runner.
	StageTimeout time.Duration
	// WorkDir is the root for per-job intermediate files.
	WorkDir string
}

// Runner is the single consuming worker. It dequeues one job id at a time
// and drives the record through synthesis, animation, render and mux.
type Runner struct {
	store  job.Store
	queue  job.Queue
	exec   Executors
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewRunner(store job.Store, queue job.Queue, exec Executors, cfg Config, logger *slog.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:  store,
		queue:  queue,
		exec:   exec,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run polls the queue until ctx is canceled. Orchestration faults are logged
// and never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("pipeline runner started",
		"poll_interval", r.cfg.PollInterval,
		"stage_timeout", r.cfg.StageTimeout)

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("pipeline runner stopping")
			return err
		}

		dequeued, err := r.Next(ctx)
		switch {
		case err == nil:
		case common.IsOrchestration(err):
			var orch *common.OrchestrationError
			errors.As(err, &orch)
			r.logger.Error("orchestration fault", "job_id", orch.JobID, "op", orch.Op, "error", orch.Err)
		case ctx.Err() != nil:
			continue
		default:
			r.logger.Error("failed to dequeue job", "error", err)
			dequeued = false
		}

		if !dequeued && !r.wait(ctx) {
			continue
		}
	}
}

// Next dequeues and fully processes at most one job. It reports whether an
// id was dequeued.
func (r *Runner) Next(ctx context.Context) (bool, error) {
	id, ok, err := r.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if !ok {
		return false, nil
	}
	// Shutdown does not interrupt a dequeued job.
	return true, r.Process(context.WithoutCancel(ctx), id)
}

type artifacts struct {
	audio  SynthesisOutput
	curves AnimationOutput
	video  RenderOutput
	final  MuxOutput
}

type stageFunc func(ctx context.Context, j *job.Job, a *artifacts) error

// Process runs the pipeline for one job. Stage faults are recorded on the job
// and are not returned; the only errors returned are orchestration faults.
func (r *Runner) Process(ctx context.Context, id uuid.UUID) error {
	j, err := r.store.Get(ctx, id)
	if err != nil {
		return &common.OrchestrationError{JobID: id, Op: "load", Err: err}
	}
	if err := j.Start(r.now()); err != nil {
		return &common.OrchestrationError{JobID: id, Op: "start", Err: err}
	}
	if err := r.store.Put(ctx, j); err != nil {
		return &common.OrchestrationError{JobID: id, Op: "persist", Err: err}
	}

	logger := r.logger.With("job_id", id)
	logger.Info("job started", "avatar", j.Params.Avatar, "language", j.Params.Language)

	stages := map[string]stageFunc{
		job.StageSynthesis: r.synthesize,
		job.StageAnimation: r.animate,
		job.StageRender:    r.render,
		job.StageMux:       r.mux,
	}

	var a artifacts
	defer r.discardScratch(logger, &a)

	for _, name := range job.Stages {
		run, ok := stages[name]
		if !ok {
			return &common.OrchestrationError{JobID: id, Op: "stage " + name, Err: errors.New("no stage handler")}
		}
		started := time.Now()
		err := r.invoke(ctx, name, func(ctx context.Context) error {
			return run(ctx, j, &a)
		})
		elapsed := time.Since(started)

		if err != nil {
			execErr := common.NewExecutionError(name, err)
			if ferr := j.Fail(execErr.Error(), r.now()); ferr != nil {
				return &common.OrchestrationError{JobID: id, Op: "fail", Err: ferr}
			}
			if perr := r.store.Put(ctx, j); perr != nil {
				return &common.OrchestrationError{JobID: id, Op: "persist", Err: perr}
			}
			logger.Error("job failed", "stage", name, "error", execErr.Detail,
				"duration_ms", elapsed.Milliseconds())
			return nil
		}

		if err := j.CompleteStage(name, elapsed, job.Checkpoints[name], r.now()); err != nil {
			return &common.OrchestrationError{JobID: id, Op: "checkpoint", Err: err}
		}
		if name == job.StageMux {
			if err := j.Finish(a.final.ArtifactRef, r.now()); err != nil {
				return &common.OrchestrationError{JobID: id, Op: "finish", Err: err}
			}
		}
		if err := r.store.Put(ctx, j); err != nil {
			if name == job.StageMux {
				r.retract(ctx, logger, a.final)
			}
			return &common.OrchestrationError{JobID: id, Op: "persist", Err: err}
		}
		logger.Info("stage completed", "stage", name, "progress", j.Progress,
			"duration_ms", elapsed.Milliseconds())
	}

	logger.Info("job completed", "output_reference", j.OutputRef,
		"duration", j.Elapsed(r.now()))
	return nil
}

// invoke calls one executor, applying the optional stage timeout and turning
// panics into errors.
func (r *Runner) invoke(ctx context.Context, stage string, fn func(context.Context) error) (err error) {
	if r.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.StageTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executor panic: %v", p)
		}
	}()
	return fn(ctx)
}

func (r *Runner) workDir(id uuid.UUID) string {
	return filepath.Join(r.cfg.WorkDir, id.String())
}

func (r *Runner) synthesize(ctx context.Context, j *job.Job, a *artifacts) error {
	if r.exec.Synthesis == nil {
		return errors.New("no synthesis executor configured")
	}
	out, err := r.exec.Synthesis.Synthesize(ctx, SynthesisInput{
		JobID:    j.ID,
		Text:     j.Params.Text,
		Language: j.Params.Language,
		Voice:    j.Params.Voice,
		WorkDir:  r.workDir(j.ID),
	})
	if err != nil {
		return err
	}
	if out.AudioRef == "" {
		return errors.New("executor returned no audio reference")
	}
	a.audio = out
	return nil
}

func (r *Runner) animate(ctx context.Context, j *job.Job, a *artifacts) error {
	if r.exec.Animation == nil {
		return errors.New("no animation executor configured")
	}
	out, err := r.exec.Animation.Animate(ctx, AnimationInput{
		JobID:    j.ID,
		AudioRef:   a.audio.AudioRef,
		SampleRate: a.audio.SampleRate,
		Format:     CurveFormatARKit,
		WorkDir:    r.workDir(j.ID),
	})
	if err != nil {
		return err
	}
	if out.CurvesRef == "" {
		return errors.New("executor returned no curve data reference")
	}
	a.curves = out
	return nil
}

func (r *Runner) render(ctx context.Context, j *job.Job, a *artifacts) error {
	if r.exec.Render == nil {
		return errors.New("no render executor configured")
	}
	out, err := r.exec.Render.Render(ctx, RenderInput{
		JobID:      j.ID,
		Avatar:     j.Params.Avatar,
		Camera:     j.Params.Camera,
		Lighting:   j.Params.Lighting,
		Resolution: j.Params.Output.Resolution,
		AudioRef:   a.audio.AudioRef,
		CurvesRef:  a.curves.CurvesRef,
		OutputDir:  r.workDir(j.ID),
	})
	if err != nil {
		return err
	}
	if out.VideoRef == "" {
		return errors.New("executor returned no video reference")
	}
	a.video = out
	return nil
}

func (r *Runner) mux(ctx context.Context, j *job.Job, a *artifacts) error {
	if r.exec.Mux == nil {
		return errors.New("no mux executor configured")
	}
	out, err := r.exec.Mux.Mux(ctx, MuxInput{
		JobID:     j.ID,
		VideoRef:  a.video.VideoRef,
		AudioRef:  a.audio.AudioRef,
		Codec:     j.Params.Output.Codec,
		OutputDir: r.workDir(j.ID),
	})
	if err != nil {
		return err
	}
	if out.ArtifactRef == "" {
		return errors.New("executor returned no artifact reference")
	}
	a.final = out
	return nil
}

// retract withdraws an artifact published for a job whose done record could
// not be written, so storage holds nothing the store does not point to.
func (r *Runner) retract(ctx context.Context, logger *slog.Logger, out MuxOutput) {
	retractor, ok := r.exec.Mux.(ArtifactRetractor)
	if !ok || out.ArtifactKey == "" {
		return
	}
	if err := retractor.Retract(ctx, out); err != nil {
		logger.Error("failed to retract orphaned artifact", "key", out.ArtifactKey, "error", err)
		return
	}
	logger.Warn("orphaned artifact retracted", "key", out.ArtifactKey)
}

// discardScratch removes the raw render and the local mux output. Speech
// audio and curves stay, since the synthesis cache may point at the audio.
func (r *Runner) discardScratch(logger *slog.Logger, a *artifacts) {
	for _, path := range []string{a.video.VideoRef, a.final.LocalRef} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove intermediate file", "path", path, "error", err)
		}
	}
}

func (r *Runner) wait(ctx context.Context) bool {
	t := time.NewTimer(r.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
