package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// render writes v in the selected format. table prints the human form.
func (c *cli) render(v any, table func(w *tabwriter.Writer)) error {
	switch c.output {
	case "json":
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(c.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
		table(w)
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", c.output)
	}
}

func row(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "%s\t%v\n", key, value)
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
