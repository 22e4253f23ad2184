package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/throw-if-null/yolo/internal/api"
	"github.com/throw-if-null/yolo/internal/orchestrator"
	"github.com/throw-if-null/yolo/internal/patch"
	"github.com/throw-if-null/yolo/internal/reaper"
	"github.com/throw-if-null/yolo/internal/store"
)

func newWorkspace(t *testing.T) (work, inst string) {
	t.Helper()
	root, err := os.MkdirTemp("", "yoloctl-")
	if err != nil {
		t.Fatalf("tmpdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(root) })

	work = filepath.Join(root, "work")
	inst = filepath.Join(root, "claude-code")
	for _, d := range []string{work, inst} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(inst, "cli.js"), []byte(`require("punycode"); x.getIsDocker();`), 0o644); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inst, "package.json"), []byte(`{"version":"1.0.17"}`), 0o644); err != nil {
		t.Fatalf("write package.json: %v", err)
	}

	t.Setenv("YOLO_INSTALL_DIR", inst)
	t.Setenv("YOLO_STATE_BACKEND", "")
	t.Setenv("DEBUG", "")

	oldWd, oldDot := getwd, dotenvLoad
	getwd = func() (string, error) { return work, nil }
	dotenvLoad = func(...string) error { return nil }
	t.Cleanup(func() { getwd, dotenvLoad = oldWd, oldDot })
	return work, inst
}

func run(t *testing.T, stdin string, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := execute(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), errOut.String(), code
}

func TestVersion(t *testing.T) {
	out, _, code := run(t, "", "version")
	if code != 0 || !strings.HasPrefix(out, "yoloctl ") {
		t.Fatalf("unexpected version output %q (code %d)", out, code)
	}
}

func TestConsentLifecycle(t *testing.T) {
	_, inst := newWorkspace(t)

	out, errOut, code := run(t, "", "consent", "status", "-o", "json")
	if code != 0 {
		t.Fatalf("status failed: %s", errOut)
	}
	var st consentStatus
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode: %v (%q)", err, out)
	}
	if st.Granted || !st.Needed || st.Installation != inst {
		t.Fatalf("unexpected initial status %+v", st)
	}

	if _, errOut, code := run(t, "", "consent", "grant", "--yes"); code != 0 {
		t.Fatalf("grant failed: %s", errOut)
	}
	if _, err := os.Stat(filepath.Join(inst, "cli-yolo.js")); err != nil {
		t.Fatalf("grant should write the patched CLI: %v", err)
	}

	out, _, _ = run(t, "", "consent", "status", "-o", "yaml")
	st = consentStatus{}
	if err := yaml.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode yaml: %v (%q)", err, out)
	}
	if !st.Granted || st.Needed || st.Record == nil || st.Record.Source != api.ConsentOperator {
		t.Fatalf("unexpected status after grant %+v", st)
	}

	out, _, code = run(t, "", "consent", "revoke")
	if code != 0 || !strings.Contains(out, "Consent revoked") {
		t.Fatalf("revoke failed: %q", out)
	}
	out, _, _ = run(t, "", "consent", "status", "-o", "json")
	st = consentStatus{}
	_ = json.Unmarshal([]byte(out), &st)
	if st.Granted {
		t.Fatalf("consent still granted after revoke")
	}
}

func TestConsentGrantPromptDeclined(t *testing.T) {
	_, inst := newWorkspace(t)

	out, errOut, code := run(t, "no\n", "consent", "grant")
	if code != 1 || !strings.Contains(errOut, "consent declined") {
		t.Fatalf("expected declined grant, got code %d stderr %q", code, errOut)
	}
	if !strings.Contains(out, "CONSENT REQUIRED") {
		t.Fatalf("terms not shown: %q", out)
	}
	if _, err := os.Stat(filepath.Join(inst, ".claude-yolo-consent")); !os.IsNotExist(err) {
		t.Fatalf("consent recorded after decline")
	}
}

func TestPatchReport(t *testing.T) {
	_, inst := newWorkspace(t)

	out, errOut, code := run(t, "", "patch", "-o", "json")
	if code != 0 {
		t.Fatalf("patch failed: %s", errOut)
	}
	var rep patch.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Output != filepath.Join(inst, "cli-yolo.js") || len(rep.Rules) != 4 {
		t.Fatalf("unexpected report %+v", rep)
	}
	hits := map[string]int{}
	for _, r := range rep.Rules {
		hits[r.Name] = r.Hits
	}
	if hits["punycode-import"] != 1 || hits["is-docker"] != 1 || hits["has-internet"] != 0 {
		t.Fatalf("unexpected hits %v", hits)
	}

	out, _, code = run(t, "", "patch")
	if code != 0 || !strings.Contains(out, "punycode-import") {
		t.Fatalf("table output missing rules: %q", out)
	}
}

func TestStatusIncludesLastSession(t *testing.T) {
	work, inst := newWorkspace(t)
	b, _ := json.Marshal(api.SessionReport{SessionID: "abc", Mode: api.ModeAutorun, ExitCode: 0, TerminatedByWatcher: true})
	if err := store.Files().For(inst).Set(context.Background(), orchestrator.LastSessionKey, string(b)); err != nil {
		t.Fatalf("seed last session: %v", err)
	}
	if err := os.WriteFile(filepath.Join(work, ".yolo-autorun"), []byte("task"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	out, errOut, code := run(t, "", "status", "-o", "json")
	if code != 0 {
		t.Fatalf("status failed: %s", errOut)
	}
	var rep statusReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.LastSession == nil || rep.LastSession.SessionID != "abc" || !rep.LastSession.TerminatedByWatcher {
		t.Fatalf("last session missing: %+v", rep)
	}
	if rep.InstalledVersion != "1.0.17" || !rep.Autorun.PayloadPresent || rep.Autorun.MarkerPresent || rep.Patched {
		t.Fatalf("unexpected status %+v", rep)
	}

	out, _, code = run(t, "", "status")
	if code != 0 || !strings.Contains(out, "LAST SESSION") || !strings.Contains(out, "abc") {
		t.Fatalf("table output missing session: %q", out)
	}
}

func TestConfigOutput(t *testing.T) {
	newWorkspace(t)

	out, _, code := run(t, "", "config", "-o", "json")
	if code != 0 {
		t.Fatalf("config failed")
	}
	var cfg struct {
		State struct {
			Backend string `json:"backend"`
		} `json:"state"`
	}
	if err := json.Unmarshal([]byte(out), &cfg); err != nil || cfg.State.Backend != "file" {
		t.Fatalf("unexpected config %q: %v", out, err)
	}

	out, _, code = run(t, "", "config")
	if code != 0 || !strings.Contains(out, "[autorun]") || !strings.Contains(out, "payload_file = '.yolo-autorun'") {
		t.Fatalf("unexpected toml output %q", out)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	newWorkspace(t)
	_, errOut, code := run(t, "", "consent", "status", "-o", "xml")
	if code != 1 || !strings.Contains(errOut, "unknown output format") {
		t.Fatalf("expected output format error, got %d %q", code, errOut)
	}
}

func TestReap(t *testing.T) {
	newWorkspace(t)

	if _, errOut, code := run(t, "", "reap", "--pid", "1"); code != 1 || !strings.Contains(errOut, "init") {
		t.Fatalf("pid 1 must be refused, got %d %q", code, errOut)
	}

	sleeper := exec.Command("sleep", "30")
	sleeper.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := sleeper.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = sleeper.Wait()
		close(done)
	}()
	defer func() { _ = sleeper.Process.Kill() }()
	pid := sleeper.Process.Pid

	out, errOut, code := run(t, "", "reap", "--pid", strconv.Itoa(pid), "--dry-run", "-o", "json")
	if code != 0 {
		t.Fatalf("dry run failed: %s", errOut)
	}
	var rep reaper.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Killed || rep.Group != pid || len(rep.PIDs) == 0 || rep.PIDs[0] != pid {
		t.Fatalf("unexpected plan %+v", rep)
	}
	select {
	case <-done:
		t.Fatalf("dry run must not signal")
	default:
	}

	if _, errOut, code := run(t, "", "reap", "--pid", strconv.Itoa(pid)); code != 0 {
		t.Fatalf("reap failed: %s", errOut)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("process %d survived reap", pid)
	}
}
