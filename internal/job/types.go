package job

import (
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further mutation is allowed.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Stage names, in execution order.
const (
	StageSynthesis = "synthesis"
	StageAnimation = "animation"
	StageRender    = "render"
	StageMux       = "mux"
)

// Stages is the fixed pipeline order.
var Stages = []string{StageSynthesis, StageAnimation, StageRender, StageMux}

// Checkpoints maps each stage to the progress recorded once it completes.
// The mux checkpoint is only ever written together with StatusDone.
var Checkpoints = map[string]int{
	StageSynthesis: 25,
	StageAnimation: 50,
	StageRender:    85,
	StageMux:       100,
}

const (
	ProgressStarted  = 1
	ProgressComplete = 100
)

var (
	ErrTerminal           = errors.New("job is in a terminal status")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrProgressRegression = errors.New("progress cannot decrease")
)

type Voice struct {
	Style string  `json:"style"`
	Speed float64 `json:"speed"`
}

type Output struct {
	Resolution string `json:"resolution"`
	Codec      string `json:"codec"`
}

// Params is the validated request payload. It never changes after creation.
type Params struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    Voice  `json:"voice"`
	Avatar   string `json:"avatar"`
	Camera   string `json:"camera"`
	Lighting string `json:"lighting"`
	Output   Output `json:"output"`
}

type Step struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Job struct {
	ID        uuid.UUID  `json:"id"`
	Status    Status     `json:"status"`
	Progress  int        `json:"progress"`
	Steps     []Step     `json:"steps"`
	Params    Params     `json:"params"`
	Owner     string     `json:"owner,omitempty"`
	Error     string     `json:"error,omitempty"`
	OutputRef string     `json:"output_reference,omitempty"`
	Created   time.Time  `json:"created_at"`
	Updated   time.Time  `json:"updated_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
}

// New creates a queued job with a fresh id.
func New(params Params) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:      uuid.New(),
		Status:  StatusQueued,
		Steps:   []Step{},
		Params:  params,
		Created: now,
		Updated: now,
	}
}

// Start moves a queued job to running with the initial progress value.
func (j *Job) Start(now time.Time) error {
	if j.Status.Terminal() {
		return ErrTerminal
	}
	if j.Status != StatusQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusRunning)
	}
	j.Status = StatusRunning
	j.Progress = ProgressStarted
	j.Started = &now
	j.Updated = now
	return nil
}

// CompleteStage appends a done step and advances progress to checkpoint.
func (j *Job) CompleteStage(name string, d time.Duration, checkpoint int, now time.Time) error {
	if err := j.requireRunning(); err != nil {
		return err
	}
	if checkpoint < j.Progress || checkpoint > ProgressComplete {
		return fmt.Errorf("%w: %d -> %d", ErrProgressRegression, j.Progress, checkpoint)
	}
	ms := d.Milliseconds()
	j.Steps = append(j.Steps, Step{Name: name, Status: StatusDone, DurationMs: &ms})
	j.Progress = checkpoint
	j.Updated = now
	return nil
}

// Fail records the failure description and makes the job terminal.
func (j *Job) Fail(detail string, now time.Time) error {
	if j.Status.Terminal() {
		return ErrTerminal
	}
	j.Status = StatusFailed
	j.Error = detail
	j.OutputRef = ""
	j.Finished = &now
	j.Updated = now
	return nil
}

// Finish marks a running job done with the final artifact locator.
func (j *Job) Finish(outputRef string, now time.Time) error {
	if err := j.requireRunning(); err != nil {
		return err
	}
	j.Status = StatusDone
	j.Progress = ProgressComplete
	j.OutputRef = outputRef
	j.Error = ""
	j.Finished = &now
	j.Updated = now
	return nil
}

func (j *Job) requireRunning() error {
	if j.Status.Terminal() {
		return ErrTerminal
	}
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: job is %s", ErrInvalidTransition, j.Status)
	}
	return nil
}

// Clone returns a deep copy so stores never share state with callers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Steps = make([]Step, len(j.Steps))
	for i, s := range j.Steps {
		if s.DurationMs != nil {
			ms := *s.DurationMs
			s.DurationMs = &ms
		}
		c.Steps[i] = s
	}
	if j.Started != nil {
		t := *j.Started
		c.Started = &t
	}
	if j.Finished != nil {
		t := *j.Finished
		c.Finished = &t
	}
	return &c
}

// Elapsed is the processing time so far, or the total once finished.
func (j *Job) Elapsed(now time.Time) time.Duration {
	if j.Started == nil {
		return 0
	}
	if j.Finished != nil {
		return j.Finished.Sub(*j.Started)
	}
	return now.Sub(*j.Started)
}

// EstimateRemaining extrapolates from the time spent per progress point.
// It returns false when there is nothing meaningful to report.
func (j *Job) EstimateRemaining(now time.Time) (time.Duration, bool) {
	if j.Status != StatusRunning || j.Progress <= 0 {
		return 0, false
	}
	elapsed := j.Elapsed(now)
	perPoint := elapsed / time.Duration(j.Progress)
	return perPoint * time.Duration(ProgressComplete-j.Progress), true
}
