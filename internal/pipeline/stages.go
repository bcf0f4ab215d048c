package pipeline

import (
	"context"
	"time"

	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/google/uuid"
)

type WordTiming struct {
	Word  string        `json:"word"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

type SynthesisInput struct {
	JobID    uuid.UUID
	Text     string
	Language string
	Voice    job.Voice
	WorkDir  string
}

type SynthesisOutput struct {
	AudioRef    string
	SampleRate  int
	WordTimings []WordTiming
}

type AnimationInput struct {
	JobID      uuid.UUID
	AudioRef   string
	SampleRate int
	Format     string
	WorkDir    string
}

type AnimationOutput struct {
	CurvesRef string
	Format    string
	RigMapped bool
}

type RenderInput struct {
	JobID      uuid.UUID
	Avatar     string
	Camera     string
	Lighting   string
	Resolution string
	AudioRef   string
	CurvesRef  string
	OutputDir  string
}

type RenderOutput struct {
	VideoRef string
}

type MuxInput struct {
	JobID     uuid.UUID
	VideoRef  string
	AudioRef  string
	Codec     string
	OutputDir string
}

type MuxOutput struct {
	// ArtifactRef is the client-facing locator recorded on the job.
	ArtifactRef string
	// ArtifactKey identifies the published object in artifact storage.
	ArtifactKey string
	// LocalRef is the muxed file left in the work directory, if any.
	LocalRef string
}

// Synthesizer turns text into speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput) (SynthesisOutput, error)
}

// Animator generates facial-animation curves from audio.
type Animator interface {
	Animate(ctx context.Context, in AnimationInput) (AnimationOutput, error)
}

// Renderer produces the raw visual track.
type Renderer interface {
	Render(ctx context.Context, in RenderInput) (RenderOutput, error)
}

// Muxer combines the visual track with the audio into the final artifact.
type Muxer interface {
	Mux(ctx context.Context, in MuxInput) (MuxOutput, error)
}

// ArtifactRetractor is implemented by muxers that can withdraw a published
// artifact whose job could not be recorded as done.
type ArtifactRetractor interface {
	Retract(ctx context.Context, out MuxOutput) error
}

// Executors bundles the four stage collaborators.
type Executors struct {
	Synthesis Synthesizer
	Animation Animator
	Render    Renderer
	Mux       Muxer
}

// Curve format requested from the animation stage.
const CurveFormatARKit = "arkit"
