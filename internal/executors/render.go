package executors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/fedutinova/avatarcast/internal/pipeline"
)

const rawVideoName = "raw.mp4"

// CommandRenderer drives an external renderer binary that turns the avatar
// preset plus animation curves into a silent video track.
type CommandRenderer struct {
	bin string
	run commandRunner
}

var _ pipeline.Renderer = (*CommandRenderer)(nil)

func NewCommandRenderer(bin string) *CommandRenderer {
	return &CommandRenderer{bin: bin, run: RunCommand}
}

func (r *CommandRenderer) Render(ctx context.Context, in pipeline.RenderInput) (pipeline.RenderOutput, error) {
	if err := os.MkdirAll(in.OutputDir, 0755); err != nil {
		return pipeline.RenderOutput{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	out := filepath.Join(in.OutputDir, rawVideoName)

	args := []string{
		"--avatar", in.Avatar,
		"--camera", in.Camera,
		"--lighting", in.Lighting,
		"--resolution", in.Resolution,
		"--audio", in.AudioRef,
		"--curves", in.CurvesRef,
		"--output", out,
	}

	slog.Debug("executing renderer", "job_id", in.JobID, "bin", r.bin,
		"avatar", in.Avatar, "resolution", in.Resolution)

	if err := r.run(ctx, job.StageRender, r.bin, args...); err != nil {
		_ = os.Remove(out)
		return pipeline.RenderOutput{}, err
	}

	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return pipeline.RenderOutput{}, fmt.Errorf("renderer did not produce %s", rawVideoName)
	}
	return pipeline.RenderOutput{VideoRef: out}, nil
}
