package executors

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fedutinova/avatarcast/internal/pipeline"
	"github.com/sashabaranov/go-openai"
)

const (
	speechFileName    = "speech.wav"
	defaultSampleRate = 24000
)

// voiceStyles maps request voice styles to OpenAI voices.
var voiceStyles = map[string]openai.SpeechVoice{
	"neutral":   openai.VoiceAlloy,
	"friendly":  openai.VoiceNova,
	"formal":    openai.VoiceOnyx,
	"energetic": openai.VoiceShimmer,
}

// SpeechSynthesizer renders text to WAV audio with the OpenAI speech API.
type SpeechSynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
}

var _ pipeline.Synthesizer = (*SpeechSynthesizer)(nil)

func NewSpeechSynthesizer(apiKey, model string) *SpeechSynthesizer {
	return NewSpeechSynthesizerWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewSpeechSynthesizerWithConfig allows pointing the client at another base URL.
func NewSpeechSynthesizerWithConfig(cfg openai.ClientConfig, model string) *SpeechSynthesizer {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &SpeechSynthesizer{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.SpeechModel(model),
	}
}

func (s *SpeechSynthesizer) Synthesize(ctx context.Context, in pipeline.SynthesisInput) (pipeline.SynthesisOutput, error) {
	start := time.Now()

	voice, ok := voiceStyles[in.Voice.Style]
	if !ok {
		voice = openai.VoiceAlloy
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          in.Text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
		Speed:          in.Voice.Speed,
	})
	if err != nil {
		slog.Error("OpenAI speech API error", "job_id", in.JobID, "error", err, "model", s.model)
		return pipeline.SynthesisOutput{}, fmt.Errorf("OpenAI speech API error: %w", err)
	}
	defer resp.Close()

	if err := os.MkdirAll(in.WorkDir, 0755); err != nil {
		return pipeline.SynthesisOutput{}, fmt.Errorf("failed to create work directory: %w", err)
	}
	path := filepath.Join(in.WorkDir, speechFileName)
	f, err := os.Create(path)
	if err != nil {
		return pipeline.SynthesisOutput{}, fmt.Errorf("failed to create audio file: %w", err)
	}

	header := make([]byte, 44)
	n, err := io.ReadFull(resp, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		f.Close()
		os.Remove(path)
		return pipeline.SynthesisOutput{}, fmt.Errorf("failed to read audio: %w", err)
	}
	header = header[:n]

	size := int64(n)
	_, err = f.Write(header)
	if err == nil {
		var rest int64
		rest, err = io.Copy(f, resp)
		size += rest
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return pipeline.SynthesisOutput{}, fmt.Errorf("failed to write audio: %w", err)
	}
	if size == 0 {
		os.Remove(path)
		return pipeline.SynthesisOutput{}, fmt.Errorf("speech API returned empty audio")
	}

	rate := wavSampleRate(header)
	slog.Info("speech synthesized",
		"job_id", in.JobID,
		"voice", voice,
		"text_length", len([]rune(in.Text)),
		"bytes", size,
		"sample_rate", rate,
		"duration_ms", time.Since(start).Milliseconds())

	return pipeline.SynthesisOutput{AudioRef: path, SampleRate: rate}, nil
}

// wavSampleRate reads the sample rate from a canonical RIFF/WAVE header.
func wavSampleRate(header []byte) int {
	if len(header) < 28 || string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" || string(header[12:16]) != "fmt " {
		return defaultSampleRate
	}
	rate := int(binary.LittleEndian.Uint32(header[24:28]))
	if rate <= 0 {
		return defaultSampleRate
	}
	return rate
}
