package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/throw-if-null/yolo/internal/paths"
)

type Config struct {
	Target    TargetConfig    `toml:"target" yaml:"target" json:"target"`
	Consent   ConsentConfig   `toml:"consent" yaml:"consent" json:"consent"`
	State     StateConfig     `toml:"state" yaml:"state" json:"state"`
	Autorun   AutorunConfig   `toml:"autorun" yaml:"autorun" json:"autorun"`
	Sentinel  SentinelConfig  `toml:"sentinel" yaml:"sentinel" json:"sentinel"`
	Reaper    ReaperConfig    `toml:"reaper" yaml:"reaper" json:"reaper"`
	Update    UpdateConfig    `toml:"update" yaml:"update" json:"update"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry" json:"telemetry"`
}

type TargetConfig struct {
	InstallDir     string `toml:"install_dir" yaml:"install_dir" json:"install_dir"`
	Package        string `toml:"package" yaml:"package" json:"package"`
	Node           string `toml:"node" yaml:"node" json:"node"`
	BypassFlag     string `toml:"bypass_flag" yaml:"bypass_flag" json:"bypass_flag"`
	BypassPosition string `toml:"bypass_position" yaml:"bypass_position" json:"bypass_position"`
}

// ConsentConfig selects how consent is obtained per run mode: "prompt" or "auto".
type ConsentConfig struct {
	Interactive string `toml:"interactive" yaml:"interactive" json:"interactive"`
	Autorun     string `toml:"autorun" yaml:"autorun" json:"autorun"`
}

type StateConfig struct {
	Backend string `toml:"backend" yaml:"backend" json:"backend"`
	Path    string `toml:"path" yaml:"path" json:"path"`
}

type AutorunConfig struct {
	PayloadFile string `toml:"payload_file" yaml:"payload_file" json:"payload_file"`
	MarkerFile  string `toml:"marker_file" yaml:"marker_file" json:"marker_file"`
	Stdin       string `toml:"stdin" yaml:"stdin" json:"stdin"`
	Ack         string `toml:"ack" yaml:"ack" json:"ack"`
	SettleMS    int    `toml:"settle_ms" yaml:"settle_ms" json:"settle_ms"`
	TrailingMS  int    `toml:"trailing_ms" yaml:"trailing_ms" json:"trailing_ms"`
	ExitCommand string `toml:"exit_command" yaml:"exit_command" json:"exit_command"`
	ExitGraceMS int    `toml:"exit_grace_ms" yaml:"exit_grace_ms" json:"exit_grace_ms"`
}

type SentinelConfig struct {
	PollIntervalMS int    `toml:"poll_interval_ms" yaml:"poll_interval_ms" json:"poll_interval_ms"`
	Watch          string `toml:"watch" yaml:"watch" json:"watch"`
}

type ReaperConfig struct {
	TermGraceMS int    `toml:"term_grace_ms" yaml:"term_grace_ms" json:"term_grace_ms"`
	NameMatch   bool   `toml:"name_match" yaml:"name_match" json:"name_match"`
	ProcessName string `toml:"process_name" yaml:"process_name" json:"process_name"`
}

type UpdateConfig struct {
	Disabled    bool   `toml:"disabled" yaml:"disabled" json:"disabled"`
	Install     bool   `toml:"install" yaml:"install" json:"install"`
	RegistryURL string `toml:"registry_url" yaml:"registry_url" json:"registry_url"`
	TimeoutMS   int    `toml:"timeout_ms" yaml:"timeout_ms" json:"timeout_ms"`
}

type TelemetryConfig struct {
	Endpoint    string `toml:"endpoint" yaml:"endpoint" json:"endpoint"`
	Insecure    bool   `toml:"insecure" yaml:"insecure" json:"insecure"`
	ServiceName string `toml:"service_name" yaml:"service_name" json:"service_name"`
}

func Default() Config {
	return Config{
		Target: TargetConfig{
			Package:        "@anthropic-ai/claude-code",
			Node:           "node",
			BypassFlag:     "--dangerously-skip-permissions",
			BypassPosition: "prepend",
		},
		Consent:  ConsentConfig{Interactive: "prompt", Autorun: "auto"},
		State:    StateConfig{Backend: "file"},
		Autorun:  AutorunConfig{PayloadFile: ".yolo-autorun", MarkerFile: ".yolo-done", Stdin: "pty", Ack: "y\n", SettleMS: 3000, TrailingMS: 1000, ExitCommand: "exit\n", ExitGraceMS: 2000},
		Sentinel: SentinelConfig{PollIntervalMS: 1000, Watch: "notify"},
		Reaper:   ReaperConfig{TermGraceMS: 500, ProcessName: "claude"},
		Update:   UpdateConfig{RegistryURL: "https://registry.npmjs.org", TimeoutMS: 5000},
		Telemetry: TelemetryConfig{
			ServiceName: "yolo",
		},
	}
}

var (
	ErrInvalid = errors.New("invalid config")
)

type LoadResult struct {
	Config     Config
	Found      bool
	Path       string
	ParseError error
}

// Load reads <dir>/.yolo/config.toml on top of Default(). A missing file is not an error.
func Load(dir string) LoadResult {
	res := LoadResult{Config: Default()}
	path := filepath.Join(dir, ".yolo", "config.toml")
	res.Path = path

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res
		}
		res.ParseError = err
		return res
	}

	res.Found = true
	var parsed Config
	if err := toml.Unmarshal(b, &parsed); err != nil {
		res.ParseError = fmt.Errorf("%w: %v", ErrInvalid, err)
		return res
	}

	res.Config = merge(Default(), parsed)
	if err := Validate(res.Config); err != nil {
		res.ParseError = err
		res.Config = Default()
	}
	return res
}

// ApplyEnv overlays environment overrides on cfg.
func ApplyEnv(cfg Config, getenv func(string) string) Config {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Target.InstallDir, "YOLO_INSTALL_DIR")
	set(&cfg.Target.Node, "YOLO_NODE")
	set(&cfg.State.Backend, "YOLO_STATE_BACKEND")
	set(&cfg.State.Path, "YOLO_STATE_PATH")
	set(&cfg.Autorun.Stdin, "YOLO_AUTORUN_STDIN")
	set(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	if getenv("YOLO_NO_UPDATE") != "" {
		cfg.Update.Disabled = true
	}
	return cfg
}

func Validate(cfg Config) error {
	oneOf := func(field, v string, allowed ...string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("%w: %s must be one of %v, got %q", ErrInvalid, field, allowed, v)
	}
	checks := []error{
		oneOf("target.bypass_position", cfg.Target.BypassPosition, "prepend", "append"),
		oneOf("consent.interactive", cfg.Consent.Interactive, "prompt", "auto"),
		oneOf("consent.autorun", cfg.Consent.Autorun, "prompt", "auto"),
		oneOf("state.backend", cfg.State.Backend, "file", "sqlite", "memory"),
		oneOf("autorun.stdin", cfg.Autorun.Stdin, "pty", "pipe"),
		oneOf("sentinel.watch", cfg.Sentinel.Watch, "notify", "poll"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if cfg.Target.BypassFlag == "" {
		return fmt.Errorf("%w: target.bypass_flag is empty", ErrInvalid)
	}
	for _, name := range []string{cfg.Autorun.PayloadFile, cfg.Autorun.MarkerFile} {
		if err := paths.ValidateName(name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if cfg.Autorun.PayloadFile == cfg.Autorun.MarkerFile {
		return fmt.Errorf("%w: autorun payload and marker must differ", ErrInvalid)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c AutorunConfig) Settle() time.Duration    { return ms(c.SettleMS) }
func (c AutorunConfig) Trailing() time.Duration  { return ms(c.TrailingMS) }
func (c AutorunConfig) ExitGrace() time.Duration { return ms(c.ExitGraceMS) }

func (c SentinelConfig) PollInterval() time.Duration { return ms(c.PollIntervalMS) }

func (c ReaperConfig) TermGrace() time.Duration { return ms(c.TermGraceMS) }

func (c UpdateConfig) Timeout() time.Duration { return ms(c.TimeoutMS) }

func merge(def Config, cfg Config) Config {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	// Target
	str(&def.Target.InstallDir, cfg.Target.InstallDir)
	str(&def.Target.Package, cfg.Target.Package)
	str(&def.Target.Node, cfg.Target.Node)
	str(&def.Target.BypassFlag, cfg.Target.BypassFlag)
	str(&def.Target.BypassPosition, cfg.Target.BypassPosition)
	// Consent
	str(&def.Consent.Interactive, cfg.Consent.Interactive)
	str(&def.Consent.Autorun, cfg.Consent.Autorun)
	// State
	str(&def.State.Backend, cfg.State.Backend)
	str(&def.State.Path, cfg.State.Path)
	// Autorun
	str(&def.Autorun.PayloadFile, cfg.Autorun.PayloadFile)
	str(&def.Autorun.MarkerFile, cfg.Autorun.MarkerFile)
	str(&def.Autorun.Stdin, cfg.Autorun.Stdin)
	str(&def.Autorun.Ack, cfg.Autorun.Ack)
	num(&def.Autorun.SettleMS, cfg.Autorun.SettleMS)
	num(&def.Autorun.TrailingMS, cfg.Autorun.TrailingMS)
	str(&def.Autorun.ExitCommand, cfg.Autorun.ExitCommand)
	num(&def.Autorun.ExitGraceMS, cfg.Autorun.ExitGraceMS)
	// Sentinel
	num(&def.Sentinel.PollIntervalMS, cfg.Sentinel.PollIntervalMS)
	str(&def.Sentinel.Watch, cfg.Sentinel.Watch)
	// Reaper
	num(&def.Reaper.TermGraceMS, cfg.Reaper.TermGraceMS)
	def.Reaper.NameMatch = cfg.Reaper.NameMatch
	str(&def.Reaper.ProcessName, cfg.Reaper.ProcessName)
	// Update
	def.Update.Disabled = cfg.Update.Disabled
	def.Update.Install = cfg.Update.Install
	str(&def.Update.RegistryURL, cfg.Update.RegistryURL)
	num(&def.Update.TimeoutMS, cfg.Update.TimeoutMS)
	// Telemetry
	str(&def.Telemetry.Endpoint, cfg.Telemetry.Endpoint)
	def.Telemetry.Insecure = cfg.Telemetry.Insecure
	str(&def.Telemetry.ServiceName, cfg.Telemetry.ServiceName)
	return def
}
