package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/throw-if-null/yolo/internal/reaper"
)

var getpgid = unix.Getpgid

func newReapCmd(c *cli) *cobra.Command {
	var pid int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reap --pid N",
		Short: "Terminate a process, its group and its descendants",
		Long: `reap sends SIGTERM to the process, its process group and every descendant,
waits the configured grace period, then sends SIGKILL. With --dry-run it only
prints what would be signalled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pid <= 1 {
				return errors.New("--pid must name a process other than init")
			}
			pgid, err := getpgid(pid)
			if err != nil {
				return fmt.Errorf("process %d: %w", pid, err)
			}
			a, err := c.app()
			if err != nil {
				return err
			}
			defer a.Close()

			r := a.Reaper()
			target := reaper.Target{PID: pid, PGID: pgid}
			var rep reaper.Report
			if dryRun {
				rep = r.Plan(cmd.Context(), target)
			} else {
				rep = r.Reap(cmd.Context(), target)
			}
			return c.render(rep, func(w *tabwriter.Writer) {
				if dryRun {
					fmt.Fprintln(w, "Dry run, nothing signalled.")
				}
				row(w, "GROUP", rep.Group)
				row(w, "PIDS", fmt.Sprint(rep.PIDs))
				row(w, "KILLED", rep.Killed)
				for _, f := range rep.Failures {
					row(w, "FAILURE", f)
				}
			})
		},
	}
	cmd.Flags().IntVar(&pid, "pid", 0, "Process to terminate")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be signalled without signalling")
	_ = cmd.MarkFlagRequired("pid")
	return cmd
}
