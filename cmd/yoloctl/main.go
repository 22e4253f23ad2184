package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/throw-if-null/yolo/internal/app"
	"github.com/throw-if-null/yolo/internal/logging"
	"github.com/throw-if-null/yolo/internal/version"
)

var (
	dotenvLoad = godotenv.Load
	getwd      = os.Getwd
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	output string
}

func execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	c := &cli{in: in, out: out, errOut: errOut}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "yoloctl",
		Short: "Inspect and manage the yolo wrapper's state",
		Long: `yoloctl manages what the yolo wrapper keeps between runs: the consent
record, the patched CLI and the report of the last session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "table", "Output format (table, json, yaml)")

	root.AddCommand(
		newConsentCmd(c),
		newPatchCmd(c),
		newStatusCmd(c),
		newReapCmd(c),
		newConfigCmd(c),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(c.out, "yoloctl %s (%s)\n", version.Version, version.Commit)
			},
		},
	)
	return root
}

// app builds the same component graph the wrapper uses. Diagnostics go to
// stderr so structured output stays parseable.
func (c *cli) app() (*app.App, error) {
	_ = dotenvLoad()
	wd, err := getwd()
	if err != nil {
		return nil, fmt.Errorf("working directory: %w", err)
	}
	log := logging.New(c.errOut, c.errOut, os.Getenv("DEBUG") != "")
	return app.New(wd, os.Getenv, log)
}
