package executors

import (
	"context"
	"log/slog"
	"time"

	"github.com/fedutinova/avatarcast/internal/pipeline"
	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker around a remote executor.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailRatio   float64
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		MinRequests: 3,
		FailRatio:   0.6,
	}
}

func newCircuitBreaker(name string, s BreakerSettings) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// BreakerSynthesizer fails fast while the speech backend keeps failing.
// An open breaker is still a single attempt for the job.
type BreakerSynthesizer struct {
	next pipeline.Synthesizer
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerSynthesizer(next pipeline.Synthesizer, s BreakerSettings) *BreakerSynthesizer {
	return &BreakerSynthesizer{next: next, cb: newCircuitBreaker("synthesis", s)}
}

func (b *BreakerSynthesizer) Synthesize(ctx context.Context, in pipeline.SynthesisInput) (pipeline.SynthesisOutput, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Synthesize(ctx, in)
	})
	if err != nil {
		return pipeline.SynthesisOutput{}, err
	}
	return res.(pipeline.SynthesisOutput), nil
}

// BreakerAnimator guards the animation service the same way.
type BreakerAnimator struct {
	next pipeline.Animator
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerAnimator(next pipeline.Animator, s BreakerSettings) *BreakerAnimator {
	return &BreakerAnimator{next: next, cb: newCircuitBreaker("animation", s)}
}

func (b *BreakerAnimator) Animate(ctx context.Context, in pipeline.AnimationInput) (pipeline.AnimationOutput, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Animate(ctx, in)
	})
	if err != nil {
		return pipeline.AnimationOutput{}, err
	}
	return res.(pipeline.AnimationOutput), nil
}
