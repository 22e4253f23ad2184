package process

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func waitTimeout(t *testing.T, c Child) (int, error) {
	t.Helper()
	type result struct {
		code int
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		code, err := c.Wait()
		ch <- result{code, err}
	}()
	select {
	case r := <-ch:
		return r.code, r.err
	case <-time.After(5 * time.Second):
		t.Fatalf("child did not exit")
		return 0, nil
	}
}

func TestParseStdinMode(t *testing.T) {
	cases := map[string]StdinMode{"": StdinPTY, "pty": StdinPTY, "pipe": StdinPipe, "inherit": StdinInherit}
	for in, want := range cases {
		got, err := ParseStdinMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseStdinMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseStdinMode("socket"); !errors.Is(err, ErrInvalidStdinMode) {
		t.Fatalf("expected ErrInvalidStdinMode, got %v", err)
	}
}

func TestSpawnPipeWritesReachChild(t *testing.T) {
	var out bytes.Buffer
	s := &ExecSpawner{}
	c, err := s.Spawn(Spec{
		Argv:   []string{"/bin/sh", "-c", "read line; echo got:$line"},
		Stdin:  StdinPipe,
		Stdout: &out,
		Stderr: io.Discard,
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if c.PGID() != c.PID() {
		t.Fatalf("pipe child should lead its own group: pid=%d pgid=%d", c.PID(), c.PGID())
	}
	if _, err := io.WriteString(c.Input(), "hello\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, err := waitTimeout(t, c)
	if err != nil || code != 0 {
		t.Fatalf("wait: code=%d err=%v", code, err)
	}
	if strings.TrimSpace(out.String()) != "got:hello" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestSpawnPTYWritesReachChild(t *testing.T) {
	var out bytes.Buffer
	s := &ExecSpawner{}
	c, err := s.Spawn(Spec{
		Argv:   []string{"/bin/sh", "-c", "read line; echo got:$line"},
		Stdin:  StdinPTY,
		Stdout: &out,
		Stderr: io.Discard,
	})
	if err != nil {
		if strings.Contains(err.Error(), "open pty") {
			t.Skipf("no pty available: %v", err)
		}
		t.Fatalf("spawn: %v", err)
	}
	if c.PGID() != c.PID() {
		t.Fatalf("pty child should lead its own group")
	}
	if _, err := io.WriteString(c.Input(), "hello\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, err := waitTimeout(t, c)
	if err != nil || code != 0 {
		t.Fatalf("wait: code=%d err=%v", code, err)
	}
	if strings.TrimSpace(out.String()) != "got:hello" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestSpawnInheritMirrorsExitCode(t *testing.T) {
	s := &ExecSpawner{}
	c, err := s.Spawn(Spec{Argv: []string{"/bin/sh", "-c", "exit 7"}, Stdin: StdinInherit, Stdout: io.Discard, Stderr: io.Discard})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if c.PGID() != 0 || c.Input() != nil {
		t.Fatalf("inherited child should share our group and stdin")
	}
	code, err := waitTimeout(t, c)
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if code != 7 {
		t.Fatalf("expected exit 7, got %d", code)
	}
	// second wait returns the same result
	if again, _ := c.Wait(); again != 7 {
		t.Fatalf("second Wait = %d", again)
	}
}

func TestSpawnErrors(t *testing.T) {
	s := &ExecSpawner{}
	if _, err := s.Spawn(Spec{}); err == nil {
		t.Fatalf("expected error for empty argv")
	}
	if _, err := s.Spawn(Spec{Argv: []string{"/bin/true"}, Stdin: "socket"}); !errors.Is(err, ErrInvalidStdinMode) {
		t.Fatalf("expected ErrInvalidStdinMode, got %v", err)
	}
	if _, err := s.Spawn(Spec{Argv: []string{"/nonexistent/yolo-node"}, Stdin: StdinPipe}); err == nil {
		t.Fatalf("expected start error for missing binary")
	}
}
