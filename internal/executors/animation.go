package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fedutinova/avatarcast/internal/pipeline"
)

const curvesFileName = "curves.json"

// AnimationClient talks to an Audio2Face style service that turns speech
// audio into per-frame blend shape weights.
type AnimationClient struct {
	baseURL    string
	model      string
	sampleRate int
	httpClient *http.Client
}

var _ pipeline.Animator = (*AnimationClient)(nil)

func NewAnimationClient(baseURL, model string, timeout time.Duration) *AnimationClient {
	return &AnimationClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type animationResponse struct {
	FrameRate   float64              `json:"frame_rate"`
	TotalFrames int                  `json:"total_frames"`
	BlendShapes map[string][]float64 `json:"blend_shapes"`
	Metadata    struct {
		AudioLength float64 `json:"audio_length"`
		Accuracy    float64 `json:"accuracy"`
	} `json:"metadata"`
}

// Curves is the document written to curves.json for the renderer.
type Curves struct {
	Format      string               `json:"format"`
	FrameRate   float64              `json:"frame_rate"`
	TotalFrames int                  `json:"total_frames"`
	Curves      map[string][]float64 `json:"curves"`
}

func (c *AnimationClient) Animate(ctx context.Context, in pipeline.AnimationInput) (pipeline.AnimationOutput, error) {
	start := time.Now()

	body, contentType, err := c.buildRequest(in)
	if err != nil {
		return pipeline.AnimationOutput{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/process", body)
	if err != nil {
		return pipeline.AnimationOutput{}, fmt.Errorf("failed to build animation request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipeline.AnimationOutput{}, fmt.Errorf("animation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pipeline.AnimationOutput{}, fmt.Errorf("animation service returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result animationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pipeline.AnimationOutput{}, fmt.Errorf("invalid animation response: %w", err)
	}
	if len(result.BlendShapes) == 0 {
		return pipeline.AnimationOutput{}, fmt.Errorf("invalid animation response: missing blend_shapes")
	}
	if result.FrameRate <= 0 {
		result.FrameRate = 30
	}

	curves := Curves{
		Format:      in.Format,
		FrameRate:   result.FrameRate,
		TotalFrames: result.TotalFrames,
		Curves:      result.BlendShapes,
	}
	path := filepath.Join(in.WorkDir, curvesFileName)
	if err := writeJSON(path, curves); err != nil {
		return pipeline.AnimationOutput{}, err
	}

	slog.Info("animation curves generated",
		"job_id", in.JobID,
		"frame_rate", result.FrameRate,
		"total_frames", result.TotalFrames,
		"blend_shapes", len(result.BlendShapes),
		"accuracy", result.Metadata.Accuracy,
		"duration_ms", time.Since(start).Milliseconds())

	return pipeline.AnimationOutput{
		CurvesRef: path,
		Format:    in.Format,
		RigMapped: in.Format == pipeline.CurveFormatARKit,
	}, nil
}

func (c *AnimationClient) buildRequest(in pipeline.AnimationInput) (io.Reader, string, error) {
	rate := in.SampleRate
	if rate <= 0 {
		rate = c.sampleRate
	}
	audio, err := os.Open(in.AudioRef)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio: %w", err)
	}
	defer audio.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", filepath.Base(in.AudioRef))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, "", fmt.Errorf("failed to read audio: %w", err)
	}
	fields := map[string]string{
		"model_name":     c.model,
		"sample_rate":    strconv.Itoa(rate),
		"quality_preset": "standard",
		"output_format":  in.Format,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
