package main

import (
	"errors"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/throw-if-null/yolo/internal/api"
	"github.com/throw-if-null/yolo/internal/install"
	"github.com/throw-if-null/yolo/internal/orchestrator"
	"github.com/throw-if-null/yolo/internal/store"
	"github.com/throw-if-null/yolo/internal/version"
)

type autorunStatus struct {
	PayloadFile    string `json:"payload_file" yaml:"payload_file"`
	PayloadPresent bool   `json:"payload_present" yaml:"payload_present"`
	MarkerFile     string `json:"marker_file" yaml:"marker_file"`
	MarkerPresent  bool   `json:"marker_present" yaml:"marker_present"`
}

type statusReport struct {
	Version          string             `json:"version" yaml:"version"`
	Installation     api.Installation   `json:"installation" yaml:"installation"`
	InstalledVersion string             `json:"installed_version,omitempty" yaml:"installed_version,omitempty"`
	Patched          bool               `json:"patched" yaml:"patched"`
	Consent          *api.ConsentRecord `json:"consent,omitempty" yaml:"consent,omitempty"`
	StateBackend     string             `json:"state_backend" yaml:"state_backend"`
	Autorun          autorunStatus      `json:"autorun" yaml:"autorun"`
	LastSession      *api.SessionReport `json:"last_session,omitempty" yaml:"last_session,omitempty"`
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show installation, consent, autorun files and the last session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app()
			if err != nil {
				return err
			}
			defer a.Close()
			inst, err := a.Resolve(ctx)
			if err != nil {
				return err
			}

			rep := statusReport{
				Version:      version.Version,
				Installation: inst,
				Patched:      exists(inst.PatchedPath),
				StateBackend: a.Config.State.Backend,
				Autorun: autorunStatus{
					PayloadFile:    a.Config.Autorun.PayloadFile,
					PayloadPresent: exists(filepath.Join(a.WorkDir, a.Config.Autorun.PayloadFile)),
					MarkerFile:     a.Config.Autorun.MarkerFile,
					MarkerPresent:  exists(orchestrator.MarkerPath(a.Options())),
				},
			}
			if v, err := install.PackageVersion(inst.Dir); err == nil {
				rep.InstalledVersion = v
			}
			rec, err := a.Gate(c.in, c.errOut).Record(ctx, inst)
			switch {
			case err == nil:
				rep.Consent = &rec
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
			last, err := orchestrator.LastSession(ctx, a.Stores, inst.Dir)
			switch {
			case err == nil:
				rep.LastSession = &last
			case !errors.Is(err, store.ErrNotFound):
				a.Log.Warnf("last session: %v", err)
			}

			return c.render(rep, func(w *tabwriter.Writer) {
				row(w, "YOLO", rep.Version)
				row(w, "INSTALLATION", inst.Dir+" ("+inst.Source+")")
				row(w, "CLAUDE VERSION", orNone(rep.InstalledVersion))
				row(w, "ENTRY POINT", inst.EntryName)
				row(w, "PATCHED", rep.Patched)
				if rep.Consent != nil {
					row(w, "CONSENT", string(rep.Consent.Source)+" "+rep.Consent.GrantedAt)
				} else {
					row(w, "CONSENT", "-")
				}
				row(w, "STATE BACKEND", rep.StateBackend)
				row(w, "AUTORUN PAYLOAD", rep.Autorun.PayloadPresent)
				row(w, "COMPLETION MARKER", rep.Autorun.MarkerPresent)
				if l := rep.LastSession; l != nil {
					row(w, "LAST SESSION", l.SessionID)
					row(w, "  MODE", l.Mode)
					row(w, "  EXIT CODE", l.ExitCode)
					row(w, "  BY WATCHER", l.TerminatedByWatcher)
					row(w, "  FINISHED", l.FinishedAt)
					if l.Error != "" {
						row(w, "  ERROR", l.Error)
					}
				}
			})
		},
	}
}
