package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPatchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "patch",
		Short: "Rewrite the patched CLI from the installed entry point",
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
			rep, err := a.Engine().Patch(inst)
			if err != nil {
				return err
			}
			return c.render(rep, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Patched %s -> %s\n\n", rep.Source, rep.Output)
				fmt.Fprintln(w, "RULE\tHITS\tERROR")
				for _, r := range rep.Rules {
					fmt.Fprintf(w, "%s\t%d\t%s\n", r.Name, r.Hits, orNone(r.Error))
				}
			})
		},
	}
}
