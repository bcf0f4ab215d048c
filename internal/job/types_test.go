package job

import (
	"errors"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	j := New(Params{Text: "Olá mundo", Language: "pt-BR"})

	if j.Status != StatusQueued {
		t.Fatalf("expected status queued, got %s", j.Status)
	}
	if j.Progress != 0 {
		t.Fatalf("expected progress 0, got %d", j.Progress)
	}
	if j.Steps == nil || len(j.Steps) != 0 {
		t.Fatalf("expected empty, non-nil steps")
	}
	if other := New(Params{}); other.ID == j.ID {
		t.Fatalf("expected unique ids")
	}
}

func TestLifecycle_Success(t *testing.T) {
	j := New(Params{})
	now := time.Now()

	if err := j.Start(now); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if j.Status != StatusRunning || j.Progress != ProgressStarted || j.Started == nil {
		t.Fatalf("unexpected state after start: %+v", j)
	}

	for _, name := range Stages[:3] {
		if err := j.CompleteStage(name, 10*time.Millisecond, Checkpoints[name], now); err != nil {
			t.Fatalf("CompleteStage(%s) error: %v", name, err)
		}
	}
	if j.Progress != 85 {
		t.Fatalf("expected progress 85, got %d", j.Progress)
	}
	if err := j.Finish("file:///out.mp4", now); err != nil {
		t.Fatalf("Finish error: %v", err)
	}
	if j.Status != StatusDone || j.Progress != 100 || j.OutputRef == "" || j.Error != "" {
		t.Fatalf("unexpected terminal state: %+v", j)
	}
	if *j.Steps[0].DurationMs != 10 {
		t.Fatalf("expected duration 10ms, got %d", *j.Steps[0].DurationMs)
	}
}

func TestTerminal_RefusesMutation(t *testing.T) {
	j := New(Params{})
	now := time.Now()
	_ = j.Start(now)
	if err := j.Fail("render: engine crashed", now); err != nil {
		t.Fatalf("Fail error: %v", err)
	}

	if err := j.Fail("again", now); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := j.Finish("x", now); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := j.CompleteStage(StageMux, 0, 100, now); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := j.Start(now); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if j.Error != "render: engine crashed" || j.OutputRef != "" {
		t.Fatalf("terminal record changed: %+v", j)
	}
}

func TestTransitions_Invalid(t *testing.T) {
	now := time.Now()

	queued := New(Params{})
	if err := queued.CompleteStage(StageSynthesis, 0, 25, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for queued job, got %v", err)
	}
	if err := queued.Finish("x", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for queued job, got %v", err)
	}

	running := New(Params{})
	_ = running.Start(now)
	if err := running.Start(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double start, got %v", err)
	}
}

func TestCompleteStage_RejectsRegression(t *testing.T) {
	j := New(Params{})
	now := time.Now()
	_ = j.Start(now)
	_ = j.CompleteStage(StageAnimation, 0, 50, now)

	if err := j.CompleteStage(StageRender, 0, 40, now); !errors.Is(err, ErrProgressRegression) {
		t.Fatalf("expected ErrProgressRegression, got %v", err)
	}
	if len(j.Steps) != 1 || j.Progress != 50 {
		t.Fatalf("rejected step must not be recorded: %+v", j)
	}
}

func TestClone_IsDeep(t *testing.T) {
	j := New(Params{})
	now := time.Now()
	_ = j.Start(now)
	_ = j.CompleteStage(StageSynthesis, time.Second, 25, now)

	c := j.Clone()
	*c.Steps[0].DurationMs = 42
	c.Steps = append(c.Steps, Step{Name: "extra"})
	*c.Started = now.Add(time.Hour)

	if *j.Steps[0].DurationMs != 1000 || len(j.Steps) != 1 || !j.Started.Equal(now) {
		t.Fatalf("clone shares state with original")
	}
}

func TestEstimateRemaining(t *testing.T) {
	j := New(Params{})
	start := time.Now()
	_ = j.Start(start)
	_ = j.CompleteStage(StageSynthesis, 0, 25, start)

	rem, ok := j.EstimateRemaining(start.Add(10 * time.Second))
	if !ok {
		t.Fatalf("expected estimate for running job")
	}
	if rem != 30*time.Second {
		t.Fatalf("expected 30s remaining, got %s", rem)
	}

	_ = j.Fail("x", start)
	if _, ok := j.EstimateRemaining(start); ok {
		t.Fatalf("expected no estimate for terminal job")
	}
}
