package main

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func newConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "config prints .yolo/config.toml merged over the defaults, with environment overrides applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app()
			if err != nil {
				return err
			}
			defer a.Close()
			if c.output == "table" || c.output == "" {
				b, err := toml.Marshal(a.Config)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(c.out, string(b))
				return err
			}
			return c.render(a.Config, nil)
		},
	}
}
