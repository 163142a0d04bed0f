package bridgecli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds one collaborator invocation.
const DefaultTimeout = 30 * time.Second

// maxStderr caps how much stderr is quoted in errors.
const maxStderr = 512

// ExecRunner runs the native binary as "<Path> <command>", writing the
// argument object to stdin and reading the envelope from stdout.
type ExecRunner struct {
	Path    string
	Timeout time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, command string, args []byte) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Path, command)
	cmd.Stdin = bytes.NewReader(args)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", r.Path, command, ctx.Err())
		}

		// A failing binary may still have written an ok=false envelope.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stdout.Len() > 0 {
			return stdout.Bytes(), nil
		}

		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr]
		}

		return nil, fmt.Errorf("%s %s: %w: %s", r.Path, command, err, msg)
	}

	return stdout.Bytes(), nil
}
