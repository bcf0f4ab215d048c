package executors

import (
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/fedutinova/avatarcast/internal/pipeline"
	"golang.org/x/crypto/blake2b"
)

// AudioCache remembers where the audio for a synthesis key was written.
type AudioCache interface {
	CachedAudio(ctx context.Context, key string) (string, bool, error)
	CacheAudio(ctx context.Context, key, path string, ttl time.Duration) error
	EvictAudio(ctx context.Context, key string) error
}

// CachingSynthesizer reuses audio for identical text, language and voice.
// Cache failures are logged and fall through to the wrapped synthesizer.
type CachingSynthesizer struct {
	next  pipeline.Synthesizer
	cache AudioCache
	model string
	ttl   time.Duration
}

var _ pipeline.Synthesizer = (*CachingSynthesizer)(nil)

// NewCachingSynthesizer keys entries by model as well as input, so switching
// TTS models does not replay audio from the previous one.
func NewCachingSynthesizer(next pipeline.Synthesizer, cache AudioCache, model string, ttl time.Duration) *CachingSynthesizer {
	return &CachingSynthesizer{next: next, cache: cache, model: model, ttl: ttl}
}

// GuardSynthesizer wraps next in a circuit breaker and, when cache is set and
// ttl is positive, puts the cache in front of the breaker so hits are served
// while the speech backend is tripped.
func GuardSynthesizer(next pipeline.Synthesizer, s BreakerSettings, cache AudioCache, model string, ttl time.Duration) pipeline.Synthesizer {
	var synth pipeline.Synthesizer = NewBreakerSynthesizer(next, s)
	if cache != nil && ttl > 0 {
		synth = NewCachingSynthesizer(synth, cache, model, ttl)
	}
	return synth
}

func (c *CachingSynthesizer) Synthesize(ctx context.Context, in pipeline.SynthesisInput) (pipeline.SynthesisOutput, error) {
	key := SynthesisCacheKey(c.model, in)

	path, ok, err := c.cache.CachedAudio(ctx, key)
	switch {
	case err != nil:
		slog.Warn("synthesis cache lookup failed", "job_id", in.JobID, "error", err)
	case ok:
		if info, statErr := os.Stat(path); statErr == nil && info.Size() > 0 {
			slog.Info("synthesis cache hit", "job_id", in.JobID, "path", path)
			return pipeline.SynthesisOutput{AudioRef: path, SampleRate: defaultSampleRate}, nil
		}
		// the file was cleaned up behind the cache
		if err := c.cache.EvictAudio(ctx, key); err != nil {
			slog.Warn("failed to evict stale synthesis cache entry", "job_id", in.JobID, "error", err)
		}
	}

	out, err := c.next.Synthesize(ctx, in)
	if err != nil {
		return out, err
	}
	if out.AudioRef != "" {
		if err := c.cache.CacheAudio(ctx, key, out.AudioRef, c.ttl); err != nil {
			slog.Warn("failed to cache synthesized audio", "job_id", in.JobID, "error", err)
		}
	}
	return out, nil
}

// SynthesisCacheKey is a BLAKE2b-256 digest of everything that shapes the audio.
func SynthesisCacheKey(model string, in pipeline.SynthesisInput) string {
	h, _ := blake2b.New256(nil)
	for _, part := range []string{
		model,
		in.Language,
		in.Voice.Style,
		strconv.FormatFloat(in.Voice.Speed, 'f', 2, 64),
		in.Text,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
