package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// CommandRunner abstracts running external commands so tests can inject fakes.
type CommandRunner interface {
	Run(ctx context.Context, dir string, argv []string, env []string, stdout, stderr io.Writer) (exitCode int, err error)
}

// RealCommandRunner runs commands using os/exec.
type RealCommandRunner struct{}

func (r *RealCommandRunner) Run(ctx context.Context, dir string, argv []string, env []string, stdout, stderr io.Writer) (int, error) {
	if len(argv) == 0 {
		return -1, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if dir != "" {
		cmd.Dir = dir
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return ExitCode(cmd.Run())
}

// ExitCode derives a process exit code from the error returned by
// exec.Cmd.Run or Wait. Non-exit failures (not found, cancellation) return -1.
func ExitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal()), err
			}
			return status.ExitStatus(), err
		}
		return exitErr.ExitCode(), err
	}
	return -1, err
}

// Output runs argv and returns its trimmed stdout. Stderr is folded into the
// error on failure.
func Output(ctx context.Context, r CommandRunner, dir string, argv ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	code, err := r.Run(ctx, dir, argv, nil, &stdout, &stderr)
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s (exit %d): %w: %s", argv[0], code, err, msg)
		}
		return "", fmt.Errorf("%s (exit %d): %w", argv[0], code, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
