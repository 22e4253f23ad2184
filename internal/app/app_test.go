package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/throw-if-null/yolo/internal/logging"
	"github.com/throw-if-null/yolo/internal/orchestrator"
	"github.com/throw-if-null/yolo/internal/process"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, ".yolo"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".yolo", "config.toml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func noEnv(string) string { return "" }

func TestNew_WiresFromConfig(t *testing.T) {
	dir, _ := os.MkdirTemp("", "yolo-app-")
	defer os.RemoveAll(dir)

	inst := filepath.Join(dir, "install")
	if err := os.MkdirAll(inst, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inst, "cli.js"), []byte("//"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	writeConfig(t, dir, `
[target]
install_dir = "`+inst+`"
bypass_position = "append"

[state]
backend = "memory"

[autorun]
stdin = "pipe"

[reaper]
name_match = true

[update]
disabled = true
`)

	a, err := New(dir, noEnv, logging.Discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	got, err := a.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Dir != inst || got.EntryName != "cli.js" {
		t.Fatalf("unexpected installation %+v", got)
	}

	o := a.Orchestrator(nil, nil)
	if o.Updater != nil {
		t.Fatalf("updater should be unset when disabled")
	}
	if o.Opts.BypassPosition != orchestrator.Append || o.Opts.Stdin != process.StdinPipe {
		t.Fatalf("options not taken from config: %+v", o.Opts)
	}
	if r := a.Reaper(); !r.NameMatch || r.ProcessName != "claude" {
		t.Fatalf("reaper not configured: %+v", r)
	}
}

func TestNew_EnvOverridesAndDefaults(t *testing.T) {
	dir, _ := os.MkdirTemp("", "yolo-app-")
	defer os.RemoveAll(dir)

	env := map[string]string{"YOLO_STATE_BACKEND": "sqlite", "YOLO_STATE_PATH": filepath.Join(dir, "state.db")}
	a, err := New(dir, func(k string) string { return env[k] }, logging.Discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	if a.Config.State.Backend != "sqlite" {
		t.Fatalf("env override ignored: %+v", a.Config.State)
	}
	if _, err := os.Stat(filepath.Join(dir, "state.db")); err != nil {
		t.Fatalf("sqlite store not opened: %v", err)
	}
	if o := a.Orchestrator(nil, nil); o.Updater == nil {
		t.Fatalf("updater expected by default")
	}
}

func TestNew_InvalidFileFallsBackToDefaults(t *testing.T) {
	dir, _ := os.MkdirTemp("", "yolo-app-")
	defer os.RemoveAll(dir)
	writeConfig(t, dir, "[state]\nbackend = \"memory\"\n[consent]\nautorun = \"maybe\"\n")

	a, err := New(dir, noEnv, logging.Discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	if a.ConfigError == nil {
		t.Fatalf("expected the config error to be reported")
	}
	if a.Config.State.Backend != "file" {
		t.Fatalf("expected defaults after invalid config, got %+v", a.Config.State)
	}
}

func TestNew_InvalidEnv(t *testing.T) {
	dir, _ := os.MkdirTemp("", "yolo-app-")
	defer os.RemoveAll(dir)
	if _, err := New(dir, func(k string) string {
		if k == "YOLO_AUTORUN_STDIN" {
			return "socket"
		}
		return ""
	}, logging.Discard()); err == nil {
		t.Fatalf("expected validation error")
	}
}
