package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/throw-if-null/yolo/internal/app"
	"github.com/throw-if-null/yolo/internal/logging"
	"github.com/throw-if-null/yolo/internal/orchestrator"
	"github.com/throw-if-null/yolo/internal/telemetry"
	"github.com/throw-if-null/yolo/internal/version"
)

const (
	exitDeclined = 1
	exitInternal = 125
	exitCanceled = 130
)

var (
	dotenvLoad    = godotenv.Load
	telemetryInit = telemetry.Init
	getwd         = os.Getwd
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the wrapper and returns the process exit code.
func execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	code := 0
	cmd := newRootCmd(in, out, errOut, &code)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		if code == 0 {
			code = exitInternal
		}
	}
	return code
}

func newRootCmd(in io.Reader, out, errOut io.Writer, code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "yolo [claude arguments...]",
		Short: "Run the Claude CLI with its permission prompts bypassed",
		Long: `yolo patches the installed Claude CLI, asks for consent once, and runs the
patched copy with --dangerously-skip-permissions. Every argument is passed
through unchanged.

When ./.yolo-autorun exists its contents are typed into the CLI, and the run
ends as soon as ./.yolo-done appears.`,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := run(cmd.Context(), args, in, out, errOut)
			*code = c
			return err
		},
	}
}

// setup loads .env and config, starts telemetry and returns the wired
// orchestrator plus a shutdown func.
func setup(ctx context.Context, in io.Reader, out, errOut io.Writer) (*orchestrator.Orchestrator, func(context.Context) error, error) {
	// .env is optional
	_ = dotenvLoad()

	log := logging.New(out, errOut, os.Getenv("DEBUG") != "")
	wd, err := getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("working directory: %w", err)
	}
	a, err := app.New(wd, os.Getenv, log)
	if err != nil {
		return nil, nil, err
	}

	tshutdown, err := telemetryInit(ctx, telemetry.FromConfig(a.Config.Telemetry, version.Version))
	if err != nil {
		log.Warnf("telemetry disabled: %v", err)
		tshutdown = func(context.Context) error { return nil }
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tshutdown(ctx), a.Close())
	}
	return a.Orchestrator(in, out), shutdown, nil
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) (int, error) {
	orch, shutdown, err := setup(ctx, in, out, errOut)
	if err != nil {
		return exitInternal, err
	}
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	res, err := orch.Run(ctx, args)
	code := exitCode(res, err)
	// the consent prompt already said why; an interrupt needs no message
	if errors.Is(err, orchestrator.ErrConsentDeclined) || errors.Is(err, context.Canceled) {
		return code, nil
	}
	return code, err
}

func exitCode(res orchestrator.Result, err error) int {
	switch {
	case err == nil:
		return res.ExitCode
	case errors.Is(err, orchestrator.ErrConsentDeclined):
		return exitDeclined
	case errors.Is(err, context.Canceled):
		return exitCanceled
	case errors.Is(err, orchestrator.ErrSpawn) && res.ExitCode > 0:
		return res.ExitCode
	default:
		return exitInternal
	}
}
