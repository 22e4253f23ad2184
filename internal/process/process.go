// Package process launches the patched CLI as a child process.
//
// Interactive children share the terminal and the caller's process group.
// Autorun children get their own process group and a writable stdin, either
// the master side of a pseudo-terminal or a plain pipe, so the reaper can
// signal the whole tree without touching this process.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/throw-if-null/yolo/internal/logging"
	"github.com/throw-if-null/yolo/internal/runner"
)

type StdinMode string

const (
	StdinInherit StdinMode = "inherit"
	StdinPTY     StdinMode = "pty"
	StdinPipe    StdinMode = "pipe"
)

var ErrInvalidStdinMode = errors.New("invalid stdin mode")

func ParseStdinMode(s string) (StdinMode, error) {
	switch m := StdinMode(s); m {
	case StdinInherit, StdinPTY, StdinPipe:
		return m, nil
	case "":
		return StdinPTY, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStdinMode, s)
	}
}

type Spec struct {
	Argv  []string
	Dir   string
	Env   []string
	Stdin StdinMode
	// Stdout and Stderr default to the caller's.
	Stdout io.Writer
	Stderr io.Writer
}

// Child is a running process started by a Spawner.
type Child interface {
	PID() int
	// PGID is the child's own process group, or 0 when it shares ours.
	PGID() int
	// Input is the child's stdin, or nil when stdin is inherited.
	Input() io.Writer
	// Wait blocks until the child exits. It is safe to call more than once.
	// A non-zero exit is reported through the code, not the error.
	Wait() (int, error)
}

type Spawner interface {
	Spawn(spec Spec) (Child, error)
}

type ExecSpawner struct {
	Log *logging.Logger
}

func (s *ExecSpawner) Spawn(spec Spec) (Child, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("empty command")
	}
	stdout, stderr := spec.Stdout, spec.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	c := &execChild{cmd: cmd, done: make(chan struct{})}
	switch spec.Stdin {
	case StdinInherit:
		cmd.Stdin = os.Stdin
	case StdinPipe:
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		in, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		c.input = in
		c.closers = append(c.closers, in)
	case StdinPTY, "":
		ptm, pts, err := pty.Open()
		if err != nil {
			return nil, fmt.Errorf("open pty: %w", err)
		}
		if term.IsTerminal(int(os.Stdin.Fd())) {
			if err := pty.InheritSize(os.Stdin, pts); err != nil {
				s.Log.Debugf("pty: inherit size: %v", err)
			}
		}
		cmd.Stdin = pts
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		c.input = ptm
		c.pts = pts
		c.closers = append(c.closers, ptm)
		// the master echoes what we write; drain it so writes never block
		go func() { _, _ = io.Copy(io.Discard, ptm) }()
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStdinMode, spec.Stdin)
	}

	if err := cmd.Start(); err != nil {
		c.closeAll()
		return nil, fmt.Errorf("start %s: %w", spec.Argv[0], err)
	}
	if c.pts != nil {
		// the child holds its own copy of the slave
		_ = c.pts.Close()
		c.pts = nil
	}
	if cmd.SysProcAttr != nil && cmd.SysProcAttr.Setpgid {
		c.pgid = cmd.Process.Pid
	}
	s.Log.Debugf("spawned pid=%d pgid=%d stdin=%s argv=%v", cmd.Process.Pid, c.pgid, spec.Stdin, spec.Argv)
	go c.wait()
	return c, nil
}

type execChild struct {
	cmd     *exec.Cmd
	pgid    int
	input   io.Writer
	pts     *os.File
	closers []io.Closer

	done     chan struct{}
	code     int
	err      error
	closeOne sync.Once
}

func (c *execChild) PID() int         { return c.cmd.Process.Pid }
func (c *execChild) PGID() int        { return c.pgid }
func (c *execChild) Input() io.Writer { return c.input }

func (c *execChild) Wait() (int, error) {
	<-c.done
	return c.code, c.err
}

func (c *execChild) wait() {
	code, err := runner.ExitCode(c.cmd.Wait())
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}
	c.code, c.err = code, err
	c.closeAll()
	close(c.done)
}

func (c *execChild) closeAll() {
	c.closeOne.Do(func() {
		for _, cl := range c.closers {
			_ = cl.Close()
		}
		if c.pts != nil {
			_ = c.pts.Close()
		}
	})
}
