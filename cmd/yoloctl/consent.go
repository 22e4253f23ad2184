package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/throw-if-null/yolo/internal/api"
	"github.com/throw-if-null/yolo/internal/consent"
	"github.com/throw-if-null/yolo/internal/store"
)

type consentStatus struct {
	Installation string             `json:"installation" yaml:"installation"`
	Granted      bool               `json:"granted" yaml:"granted"`
	Record       *api.ConsentRecord `json:"record,omitempty" yaml:"record,omitempty"`
	Patched      bool               `json:"patched" yaml:"patched"`
	Needed       bool               `json:"needed" yaml:"needed"`
}

func newConsentCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consent",
		Short: "Show, grant or revoke consent for the resolved installation",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the consent record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			defer a.Close()
			inst, err := a.Resolve(cmd.Context())
			if err != nil {
				return err
			}
			st, err := consentState(cmd, a.Gate(c.in, c.errOut), inst)
			if err != nil {
				return err
			}
			return c.renderConsent(st)
		},
	}

	var yes bool
	grant := &cobra.Command{
		Use:   "grant",
		Short: "Record consent and prepare the patched CLI",
		Long: `grant shows the consent terms and records an affirmative answer. With --yes
the answer is taken from the command line. The patched CLI is written too, so
the next yolo run does not ask again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			inst, err := a.Resolve(ctx)
			if err != nil {
				return err
			}
			gate := a.Gate(c.in, c.out)
			if !yes {
				ok, err := gate.Request(ctx, consent.ModePrompt)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("consent declined")
				}
			}
			if err := gate.Persist(ctx, inst, api.ConsentOperator); err != nil {
				return fmt.Errorf("record consent: %w", err)
			}
			if _, err := a.Engine().Patch(inst); err != nil {
				return err
			}
			st, err := consentState(cmd, gate, inst)
			if err != nil {
				return err
			}
			return c.renderConsent(st)
		},
	}
	grant.Flags().BoolVarP(&yes, "yes", "y", false, "Accept the terms without prompting")

	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Delete the consent record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			defer a.Close()
			inst, err := a.Resolve(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Gate(c.in, c.errOut).Revoke(cmd.Context(), inst); err != nil {
				return fmt.Errorf("revoke consent: %w", err)
			}
			fmt.Fprintf(c.out, "Consent revoked for %s\n", inst.Dir)
			return nil
		},
	}

	cmd.AddCommand(status, grant, revoke)
	return cmd
}

func consentState(cmd *cobra.Command, gate *consent.Gate, inst api.Installation) (consentStatus, error) {
	st := consentStatus{Installation: inst.Dir}
	rec, err := gate.Record(cmd.Context(), inst)
	switch {
	case err == nil:
		st.Granted = true
		st.Record = &rec
	case !errors.Is(err, store.ErrNotFound):
		return st, err
	}
	if _, err := os.Stat(inst.PatchedPath); err == nil {
		st.Patched = true
	}
	st.Needed = !st.Granted || !st.Patched
	return st, nil
}

func (c *cli) renderConsent(st consentStatus) error {
	return c.render(st, func(w *tabwriter.Writer) {
		row(w, "INSTALLATION", st.Installation)
		row(w, "GRANTED", st.Granted)
		if st.Record != nil {
			row(w, "GRANTED AT", orNone(st.Record.GrantedAt))
			row(w, "SOURCE", st.Record.Source)
		}
		row(w, "PATCHED", st.Patched)
		row(w, "PROMPT ON NEXT RUN", st.Needed)
	})
}
