package runner

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

type fakeRunner struct {
	out  string
	err  error
	code int
	argv []string
}

func (f *fakeRunner) Run(ctx context.Context, dir string, argv []string, env []string, stdout, stderr io.Writer) (int, error) {
	f.argv = append([]string{}, argv...)
	stdout.Write([]byte(f.out))
	if f.err != nil {
		stderr.Write([]byte("boom\n"))
	}
	return f.code, f.err
}

func TestOutput_TrimsStdout(t *testing.T) {
	f := &fakeRunner{out: "/usr/lib/node_modules\n"}
	got, err := Output(context.Background(), f, "", "npm", "-g", "root")
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if got != "/usr/lib/node_modules" {
		t.Fatalf("unexpected output %q", got)
	}
	if strings.Join(f.argv, " ") != "npm -g root" {
		t.Fatalf("unexpected argv %v", f.argv)
	}
}

func TestOutput_FoldsStderrIntoError(t *testing.T) {
	f := &fakeRunner{err: io.ErrUnexpectedEOF, code: 1}
	_, err := Output(context.Background(), f, "", "npm", "view")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestRealCommandRunner_ExitCode(t *testing.T) {
	r := &RealCommandRunner{}
	var out bytes.Buffer
	code, err := r.Run(context.Background(), "", []string{"/bin/sh", "-c", "echo hi; exit 3"}, nil, &out, io.Discard)
	if err == nil {
		t.Fatalf("expected error for non-zero exit")
	}
	if code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
	if strings.TrimSpace(out.String()) != "hi" {
		t.Fatalf("unexpected stdout %q", out.String())
	}
}

func TestRealCommandRunner_EmptyArgv(t *testing.T) {
	r := &RealCommandRunner{}
	if _, err := r.Run(context.Background(), "", nil, nil, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected error for empty argv")
	}
}
