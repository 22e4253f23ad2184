package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/throw-if-null/yolo/internal/orchestrator"
	"github.com/throw-if-null/yolo/internal/telemetry"
)

// newWorkspace creates an installation whose entry point is a shell script
// and points the wrapper at it, running entry points with /bin/sh instead of
// node.
func newWorkspace(t *testing.T, entry, config string) (work, inst string) {
	t.Helper()
	root, err := os.MkdirTemp("", "yolo-cmd-")
	if err != nil {
		t.Fatalf("tmpdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(root) })

	work = filepath.Join(root, "work")
	inst = filepath.Join(root, "claude-code")
	for _, d := range []string{filepath.Join(work, ".yolo"), inst} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(inst, "cli.js"), []byte(entry), 0o755); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if config != "" {
		if err := os.WriteFile(filepath.Join(work, ".yolo", "config.toml"), []byte(config), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}

	t.Setenv("YOLO_INSTALL_DIR", inst)
	t.Setenv("YOLO_NODE", "/bin/sh")
	t.Setenv("YOLO_STATE_BACKEND", "memory")
	t.Setenv("YOLO_NO_UPDATE", "1")
	t.Setenv("DEBUG", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	oldWd, oldDot := getwd, dotenvLoad
	getwd = func() (string, error) { return work, nil }
	dotenvLoad = func(...string) error { return nil }
	t.Cleanup(func() { getwd, dotenvLoad = oldWd, oldDot })
	return work, inst
}

func TestExecute_InteractiveMirrorsExitCode(t *testing.T) {
	_, inst := newWorkspace(t, "exit 7\n", "")

	var out, errOut bytes.Buffer
	code := execute(context.Background(), []string{"--help"}, strings.NewReader("yes\n"), &out, &errOut)
	if code != 7 {
		t.Fatalf("expected exit 7, got %d (stderr %q)", code, errOut.String())
	}
	if !strings.Contains(out.String(), "YOLO MODE ACTIVATED") {
		t.Fatalf("missing activation banner in %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(inst, "cli-yolo.js")); err != nil {
		t.Fatalf("patched artifact missing: %v", err)
	}
}

func TestExecute_DeclinedConsentExitsOne(t *testing.T) {
	_, inst := newWorkspace(t, "exit 0\n", "")

	var out, errOut bytes.Buffer
	code := execute(context.Background(), nil, strings.NewReader("no\n"), &out, &errOut)
	if code != exitDeclined {
		t.Fatalf("expected exit %d, got %d", exitDeclined, code)
	}
	if errOut.Len() != 0 {
		t.Fatalf("declined consent should not print an error, got %q", errOut.String())
	}
	if _, err := os.Stat(filepath.Join(inst, "cli-yolo.js")); !os.IsNotExist(err) {
		t.Fatalf("artifact written without consent")
	}
}

func TestExecute_MissingInstallation(t *testing.T) {
	newWorkspace(t, "exit 0\n", "")
	empty, _ := os.MkdirTemp("", "yolo-empty-")
	defer os.RemoveAll(empty)
	t.Setenv("YOLO_INSTALL_DIR", empty)

	var out, errOut bytes.Buffer
	code := execute(context.Background(), nil, strings.NewReader(""), &out, &errOut)
	if code != exitInternal {
		t.Fatalf("expected exit %d, got %d", exitInternal, code)
	}
	if !strings.Contains(errOut.String(), "installation not found") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestExecute_SpawnFailureIsInternal(t *testing.T) {
	newWorkspace(t, "exit 0\n", "")
	t.Setenv("YOLO_NODE", "/nonexistent/node")

	var out, errOut bytes.Buffer
	code := execute(context.Background(), nil, strings.NewReader("yes\n"), &out, &errOut)
	if code != exitInternal {
		t.Fatalf("expected exit %d, got %d (stderr %q)", exitInternal, code, errOut.String())
	}
}

func TestExecute_AutorunEndsOnCompletionMarker(t *testing.T) {
	entry := `read ack
read task
echo "$ack:$task" > received.txt
touch .yolo-done
sleep 30
`
	config := `
[autorun]
stdin = "pipe"
settle_ms = 1
trailing_ms = 1
exit_grace_ms = 10

[sentinel]
poll_interval_ms = 20

[reaper]
term_grace_ms = 10
`
	work, _ := newWorkspace(t, entry, config)
	if err := os.WriteFile(filepath.Join(work, ".yolo-autorun"), []byte("ship it"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	start := time.Now()
	var out, errOut bytes.Buffer
	code := execute(context.Background(), nil, strings.NewReader(""), &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit 0 after completion, got %d (stderr %q)", code, errOut.String())
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("child was not terminated promptly")
	}

	got, err := os.ReadFile(filepath.Join(work, "received.txt"))
	if err != nil {
		t.Fatalf("child did not receive input: %v", err)
	}
	if strings.TrimSpace(string(got)) != "y:ship it" {
		t.Fatalf("unexpected input %q", got)
	}
	if _, err := os.Stat(filepath.Join(work, ".yolo-done")); !os.IsNotExist(err) {
		t.Fatalf("completion marker left behind")
	}
	if !strings.Contains(out.String(), "AUTO-APPROVED") {
		t.Fatalf("autorun consent should be auto-approved, got %q", out.String())
	}
}

func TestExecute_EmitsSessionSpan(t *testing.T) {
	newWorkspace(t, "exit 0\n", "")

	exp := tracetest.NewInMemoryExporter()
	tp, shutdown, err := telemetry.NewTracerProviderWithExporter(exp, telemetry.Config{ServiceName: "yolo-test"})
	if err != nil {
		t.Fatalf("tracer provider: %v", err)
	}
	prev := otel.GetTracerProvider()
	oldInit := telemetryInit
	telemetryInit = func(ctx context.Context, cfg telemetry.Config) (func(context.Context) error, error) {
		otel.SetTracerProvider(tp)
		// flush only; shutting down the in-memory exporter drops its spans
		return tp.ForceFlush, nil
	}
	defer func() {
		telemetryInit = oldInit
		otel.SetTracerProvider(prev)
		_ = shutdown(context.Background())
	}()

	var out, errOut bytes.Buffer
	if code := execute(context.Background(), nil, strings.NewReader("y\n"), &out, &errOut); code != 0 {
		t.Fatalf("unexpected exit %d: %s", code, errOut.String())
	}

	found := false
	for _, s := range exp.GetSpans() {
		if s.Name == "yolo.session" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a yolo.session span")
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		res  orchestrator.Result
		err  error
		want int
	}{
		{"ok", orchestrator.Result{ExitCode: 0}, nil, 0},
		{"child code", orchestrator.Result{ExitCode: 2}, nil, 2},
		{"declined", orchestrator.Result{}, orchestrator.ErrConsentDeclined, exitDeclined},
		{"canceled", orchestrator.Result{}, context.Canceled, exitCanceled},
		{"spawn", orchestrator.Result{ExitCode: 1}, errors.Join(orchestrator.ErrSpawn, errors.New("x")), 1},
		{"spawn no code", orchestrator.Result{ExitCode: -1}, orchestrator.ErrSpawn, exitInternal},
		{"patch", orchestrator.Result{}, orchestrator.ErrPatch, exitInternal},
		{"not found", orchestrator.Result{}, orchestrator.ErrInstallationNotFound, exitInternal},
	}
	for _, tc := range cases {
		if got := exitCode(tc.res, tc.err); got != tc.want {
			t.Fatalf("%s: exitCode = %d, want %d", tc.name, got, tc.want)
		}
	}
}
