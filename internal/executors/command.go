package executors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fedutinova/avatarcast/internal/common"
)

const stderrTailBytes = 512

// commandRunner executes an external tool for a stage. Injected in tests.
type commandRunner func(ctx context.Context, stage, name string, args ...string) error

// tailBuffer keeps only the last n bytes written to it.
type tailBuffer struct {
	n   int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.n; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(bytes.ToValidUTF8(t.buf, nil)))
}

// RunCommand runs name with args and reports any failure as an
// ExecutionError carrying the exit status and the tail of stderr.
func RunCommand(ctx context.Context, stage, name string, args ...string) error {
	stderr := &tailBuffer{n: stderrTailBytes}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &common.ExecutionError{Stage: stage, Detail: ctxErr.Error(), Err: ctxErr}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status := fmt.Sprintf("exited with status %d", exitErr.ExitCode())
		if exitErr.ExitCode() < 0 {
			status = "terminated: " + exitErr.String()
		}
		detail := fmt.Sprintf("%s %s", name, status)
		if tail := stderr.String(); tail != "" {
			detail += ": " + tail
		}
		return &common.ExecutionError{Stage: stage, Detail: detail, Err: err}
	}

	return &common.ExecutionError{Stage: stage, Detail: fmt.Sprintf("%s: %v", name, err), Err: err}
}
