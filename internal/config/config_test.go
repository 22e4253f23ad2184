package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	yd := filepath.Join(dir, ".yolo")
	if err := os.Mkdir(yd, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(yd, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Missing(t *testing.T) {
	d, err := os.MkdirTemp("", "yolo-config-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)

	res := Load(d)
	if res.Found {
		t.Fatalf("expected not found")
	}
	if res.ParseError != nil {
		t.Fatalf("unexpected parse error: %v", res.ParseError)
	}
	def := Default()
	if res.Config.Sentinel.PollIntervalMS != def.Sentinel.PollIntervalMS {
		t.Fatalf("unexpected default poll interval: %d", res.Config.Sentinel.PollIntervalMS)
	}
	if res.Config.Consent.Interactive != "prompt" || res.Config.Consent.Autorun != "auto" {
		t.Fatalf("unexpected default consent modes: %+v", res.Config.Consent)
	}
	if res.Config.Target.BypassFlag != "--dangerously-skip-permissions" {
		t.Fatalf("unexpected default bypass flag: %q", res.Config.Target.BypassFlag)
	}
	if err := Validate(def); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	d, err := os.MkdirTemp("", "yolo-config-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)
	writeConfig(t, d, `
[autorun]
settle_ms = 10
stdin = "pipe"

[reaper]
name_match = true

[state]
backend = "sqlite"
`)
	res := Load(d)
	if !res.Found {
		t.Fatalf("expected found true")
	}
	if res.ParseError != nil {
		t.Fatalf("unexpected parse error: %v", res.ParseError)
	}
	if res.Config.Autorun.SettleMS != 10 || res.Config.Autorun.Stdin != "pipe" {
		t.Fatalf("autorun overrides not applied: %+v", res.Config.Autorun)
	}
	if res.Config.Autorun.TrailingMS != Default().Autorun.TrailingMS {
		t.Fatalf("unset field lost its default: %d", res.Config.Autorun.TrailingMS)
	}
	if !res.Config.Reaper.NameMatch {
		t.Fatalf("name_match not applied")
	}
	if res.Config.State.Backend != "sqlite" {
		t.Fatalf("backend not applied: %s", res.Config.State.Backend)
	}
}

func TestLoad_InvalidToml(t *testing.T) {
	d, err := os.MkdirTemp("", "yolo-config-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)
	writeConfig(t, d, "x = [1,\n")
	res := Load(d)
	if !res.Found {
		t.Fatalf("expected found true")
	}
	if !errors.Is(res.ParseError, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", res.ParseError)
	}
}

func TestLoad_InvalidValueFallsBackToDefaults(t *testing.T) {
	d, err := os.MkdirTemp("", "yolo-config-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)
	writeConfig(t, d, `
[autorun]
marker_file = "../escape"
`)
	res := Load(d)
	if !errors.Is(res.ParseError, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", res.ParseError)
	}
	if res.Config.Autorun.MarkerFile != Default().Autorun.MarkerFile {
		t.Fatalf("expected default marker after invalid config, got %q", res.Config.Autorun.MarkerFile)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"YOLO_INSTALL_DIR":            "/opt/claude",
		"YOLO_STATE_BACKEND":          "memory",
		"YOLO_NO_UPDATE":              "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "http://collector:4318",
	}
	cfg := ApplyEnv(Default(), func(k string) string { return env[k] })
	if cfg.Target.InstallDir != "/opt/claude" {
		t.Fatalf("install dir not applied: %q", cfg.Target.InstallDir)
	}
	if cfg.State.Backend != "memory" {
		t.Fatalf("backend not applied: %q", cfg.State.Backend)
	}
	if !cfg.Update.Disabled {
		t.Fatalf("expected update disabled")
	}
	if cfg.Telemetry.Endpoint != "http://collector:4318" {
		t.Fatalf("endpoint not applied: %q", cfg.Telemetry.Endpoint)
	}
}
