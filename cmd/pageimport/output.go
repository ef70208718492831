package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/JonMunkholm/PageImport/internal/core"
)

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeResult(w io.Writer, res *core.RunResult, verbose bool) {
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	for _, o := range res.Outcomes {
		if !verbose && o.Severity == core.SeverityInfo && len(o.Notes) == 0 {
			continue
		}
		fmt.Fprintln(w, o.String())
	}

	fmt.Fprintf(w, "\n%d rows: %d imported (%d created, %d modified), %d unchanged, %d skipped, %d failed in %s\n",
		res.Rows, res.Imported, res.Created, res.Modified, res.Unchanged, res.Skipped, res.Failed, res.Duration.Round(1e6))
	if res.Truncated {
		fmt.Fprintln(w, "stopped at the row limit")
	}
	if res.Cancelled {
		fmt.Fprintln(w, "cancelled")
	}
}

func writeTemplates(w io.Writer, infos []core.TemplateInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range infos {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Label)
		for _, f := range t.Fields {
			req := ""
			if f.Required {
				req = "required"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", f.Name, f.Type, f.Label, req)
		}
	}
	return tw.Flush()
}
