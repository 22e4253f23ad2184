// Package app assembles the wrapper's components from configuration. Both
// binaries build on it.
package app

import (
	"context"
	"io"
	"net/http"

	"github.com/throw-if-null/yolo/internal/api"
	"github.com/throw-if-null/yolo/internal/config"
	"github.com/throw-if-null/yolo/internal/consent"
	"github.com/throw-if-null/yolo/internal/install"
	"github.com/throw-if-null/yolo/internal/logging"
	"github.com/throw-if-null/yolo/internal/orchestrator"
	"github.com/throw-if-null/yolo/internal/patch"
	"github.com/throw-if-null/yolo/internal/process"
	"github.com/throw-if-null/yolo/internal/reaper"
	"github.com/throw-if-null/yolo/internal/runner"
	"github.com/throw-if-null/yolo/internal/store"
	"github.com/throw-if-null/yolo/internal/update"
)

type App struct {
	Config  config.Config
	WorkDir string
	Log     *logging.Logger
	Runner  runner.CommandRunner
	Stores  store.Provider
	// ConfigError is set when the config file was present but unusable and
	// defaults were used instead.
	ConfigError error

	closeStores func() error
}

// New loads <workDir>/.yolo/config.toml, overlays getenv and opens the state
// store.
func New(workDir string, getenv func(string) string, log *logging.Logger) (*App, error) {
	res := config.Load(workDir)
	cfg := config.ApplyEnv(res.Config, getenv)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if res.ParseError != nil {
		log.Warnf("ignoring %s: %v", res.Path, res.ParseError)
	}

	stores, closeStores, err := store.Open(cfg.State.Backend, cfg.State.Path)
	if err != nil {
		return nil, err
	}
	log.Debugf("config: found=%v backend=%s", res.Found, cfg.State.Backend)
	return &App{
		Config:      cfg,
		WorkDir:     workDir,
		Log:         log,
		Runner:      &runner.RealCommandRunner{},
		Stores:      stores,
		ConfigError: res.ParseError,
		closeStores: closeStores,
	}, nil
}

func (a *App) Close() error {
	if a.closeStores == nil {
		return nil
	}
	return a.closeStores()
}

func (a *App) Resolver() *install.Resolver {
	return &install.Resolver{
		Runner:   a.Runner,
		Package:  a.Config.Target.Package,
		Override: a.Config.Target.InstallDir,
		WorkDir:  a.WorkDir,
		Log:      a.Log,
	}
}

func (a *App) Resolve(ctx context.Context) (api.Installation, error) {
	return a.Resolver().Resolve(ctx)
}

func (a *App) Gate(in io.Reader, out io.Writer) *consent.Gate {
	return consent.NewGate(a.Stores, in, out, a.Config.Target.BypassFlag, a.Log)
}

func (a *App) Engine() *patch.Engine {
	return patch.NewEngine(patch.DefaultRules(nil), a.Log)
}

func (a *App) Reaper() *reaper.Reaper {
	r := reaper.New(&reaper.PSLister{Runner: a.Runner}, a.Config.Reaper.TermGrace(), a.Log)
	r.NameMatch = a.Config.Reaper.NameMatch
	r.ProcessName = a.Config.Reaper.ProcessName
	return r
}

// Updater returns nil when update checks are disabled.
func (a *App) Updater() *update.Checker {
	if a.Config.Update.Disabled {
		return nil
	}
	return &update.Checker{
		RegistryURL: a.Config.Update.RegistryURL,
		Package:     a.Config.Target.Package,
		Timeout:     a.Config.Update.Timeout(),
		Install:     a.Config.Update.Install,
		Client:      http.DefaultClient,
		Runner:      a.Runner,
		Log:         a.Log,
	}
}

func (a *App) Options() orchestrator.Options {
	return orchestrator.OptionsFromConfig(a.Config, a.WorkDir)
}

// Orchestrator wires a ready-to-run orchestrator. in/out carry the consent
// prompt and banners.
func (a *App) Orchestrator(in io.Reader, out io.Writer) *orchestrator.Orchestrator {
	o := &orchestrator.Orchestrator{
		Resolver: a.Resolver(),
		Gate:     a.Gate(in, out),
		Patcher:  a.Engine(),
		Spawner:  &process.ExecSpawner{Log: a.Log},
		Reaper:   a.Reaper(),
		Stores:   a.Stores,
		Out:      out,
		Log:      a.Log,
		Opts:     a.Options(),
	}
	// a nil *update.Checker must not become a non-nil interface
	if u := a.Updater(); u != nil {
		o.Updater = u
	}
	return o
}
