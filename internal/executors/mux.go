package executors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/fedutinova/avatarcast/internal/pipeline"
	"github.com/fedutinova/avatarcast/internal/storage"
)

type codecProfile struct {
	video     string
	audio     string
	container string
}

var codecProfiles = map[string]codecProfile{
	"h264": {video: "libx264", audio: "aac", container: ".mp4"},
	"h265": {video: "libx265", audio: "aac", container: ".mp4"},
	"vp9":  {video: "libvpx-vp9", audio: "libopus", container: ".webm"},
}

// FFmpegMuxer combines the rendered track with the speech audio and
// publishes the result through artifact storage.
type FFmpegMuxer struct {
	bin     string
	storage storage.Storage
	run     commandRunner
}

var (
	_ pipeline.Muxer             = (*FFmpegMuxer)(nil)
	_ pipeline.ArtifactRetractor = (*FFmpegMuxer)(nil)
)

func NewFFmpegMuxer(bin string, store storage.Storage) *FFmpegMuxer {
	return &FFmpegMuxer{bin: bin, storage: store, run: RunCommand}
}

func (m *FFmpegMuxer) Mux(ctx context.Context, in pipeline.MuxInput) (pipeline.MuxOutput, error) {
	profile, ok := codecProfiles[in.Codec]
	if !ok {
		return pipeline.MuxOutput{}, fmt.Errorf("unsupported codec %q", in.Codec)
	}
	if err := os.MkdirAll(in.OutputDir, 0755); err != nil {
		return pipeline.MuxOutput{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	out := filepath.Join(in.OutputDir, "final"+profile.container)

	args := buildFFmpegArgs(in, profile, out)
	slog.Debug("executing ffmpeg", "job_id", in.JobID, "codec", in.Codec, "output", out)

	if err := m.run(ctx, job.StageMux, m.bin, args...); err != nil {
		_ = os.Remove(out)
		return pipeline.MuxOutput{}, err
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return pipeline.MuxOutput{}, fmt.Errorf("ffmpeg did not produce %s", filepath.Base(out))
	}

	res, err := m.storage.Publish(ctx, storage.ArtifactKey(in.JobID.String(), profile.container), out)
	if err != nil {
		return pipeline.MuxOutput{}, fmt.Errorf("publish artifact: %w", err)
	}

	slog.Info("artifact published", "job_id", in.JobID, "key", res.Key,
		"content_type", res.ContentType, "size", res.Size)
	return pipeline.MuxOutput{ArtifactRef: res.URL, ArtifactKey: res.Key, LocalRef: out}, nil
}

// Retract deletes a published artifact that no job record points to.
func (m *FFmpegMuxer) Retract(ctx context.Context, out pipeline.MuxOutput) error {
	if err := m.storage.DeleteFile(ctx, out.ArtifactKey); err != nil {
		return fmt.Errorf("delete artifact %s: %w", out.ArtifactKey, err)
	}
	return nil
}

func buildFFmpegArgs(in pipeline.MuxInput, p codecProfile, out string) []string {
	args := []string{
		"-y",
		"-i", in.VideoRef,
		"-i", in.AudioRef,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", p.video,
		"-c:a", p.audio,
		"-shortest",
	}
	if p.container == ".mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, out)
}
