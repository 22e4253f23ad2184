package orchestrator

import (
	"time"

	"github.com/throw-if-null/yolo/internal/config"
	"github.com/throw-if-null/yolo/internal/consent"
	"github.com/throw-if-null/yolo/internal/process"
	"github.com/throw-if-null/yolo/internal/script"
)

type Options struct {
	WorkDir        string
	Node           string
	BypassFlag     string
	BypassPosition Position

	InteractiveConsent consent.Mode
	AutorunConsent     consent.Mode

	PayloadFile string
	MarkerFile  string
	Stdin       process.StdinMode
	Script      script.Options
	ExitCommand string
	ExitGrace   time.Duration

	PollInterval time.Duration
	Notify       bool
}

// OptionsFromConfig maps a validated config onto run options.
func OptionsFromConfig(cfg config.Config, workDir string) Options {
	pos, err := ParsePosition(cfg.Target.BypassPosition)
	if err != nil {
		pos = Prepend
	}
	stdin, err := process.ParseStdinMode(cfg.Autorun.Stdin)
	if err != nil {
		stdin = process.StdinPTY
	}
	return Options{
		WorkDir:            workDir,
		Node:               cfg.Target.Node,
		BypassFlag:         cfg.Target.BypassFlag,
		BypassPosition:     pos,
		InteractiveConsent: consent.Mode(cfg.Consent.Interactive),
		AutorunConsent:     consent.Mode(cfg.Consent.Autorun),
		PayloadFile:        cfg.Autorun.PayloadFile,
		MarkerFile:         cfg.Autorun.MarkerFile,
		Stdin:              stdin,
		Script: script.Options{
			Ack:      cfg.Autorun.Ack,
			Settle:   cfg.Autorun.Settle(),
			Trailing: cfg.Autorun.Trailing(),
		},
		ExitCommand:  cfg.Autorun.ExitCommand,
		ExitGrace:    cfg.Autorun.ExitGrace(),
		PollInterval: cfg.Sentinel.PollInterval(),
		Notify:       cfg.Sentinel.Watch == "notify",
	}
}
