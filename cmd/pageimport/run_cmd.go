package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/PageImport/internal/application"
	"github.com/JonMunkholm/PageImport/internal/core"
	"github.com/JonMunkholm/PageImport/internal/pages"
	"github.com/spf13/cobra"
)

type runOptions struct {
	template     string
	parent       string
	createParent bool
	policy       string
	autoCreate   bool
	maxRows      int
	delimiter    string
	quote        string
	mapping      []string
	verbose      bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <file.csv>",
		Short: "Import a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			overrides, err := parseMapFlags(opts.mapping)
			if err != nil {
				return err
			}

			app, err := openApp(ctx, root)
			if err != nil {
				return err
			}
			defer app.Close()

			cfg, err := opts.runConfig(cmd, app)
			if err != nil {
				return err
			}

			if opts.createParent {
				if _, err := pages.EnsurePath(ctx, app.Store, cfg.ParentPath, application.ContainerTemplate); err != nil {
					return fmt.Errorf("create parent: %w", err)
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := app.Service.Importer().Run(ctx, f, cfg, overrides, nil)
			if err != nil {
				return fmt.Errorf("%w\n%s", err, core.FormatUserError(err))
			}
			res.FileName = filepath.Base(args[0])

			if root.json {
				return writeJSON(res)
			}
			writeResult(os.Stdout, res, opts.verbose)
			if res.Failed > 0 {
				return fmt.Errorf("%d rows failed", res.Failed)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.template, "template", "t", "", "Template of the imported pages (required)")
	f.StringVarP(&opts.parent, "parent", "p", "/", "Path of the page the rows are imported under")
	f.BoolVar(&opts.createParent, "create-parent", false, "Create the parent path when missing")
	f.StringVar(&opts.policy, "policy", "", "Duplicate policy: skip, create-unique or modify")
	f.BoolVar(&opts.autoCreate, "auto-create", false, "Create referenced pages that do not exist")
	f.IntVar(&opts.maxRows, "max-rows", 0, "Stop after this many data rows (0 = no limit)")
	f.StringVarP(&opts.delimiter, "delimiter", "d", "", "Field delimiter (\\t or tab for tabs)")
	f.StringVar(&opts.quote, "quote", "", "Quote character")
	f.StringArrayVarP(&opts.mapping, "map", "m", nil, "Bind a column to a field, as index=field (repeatable; empty field unbinds)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Print every row, not only warnings and errors")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

// runConfig applies the flags the user set over the configured defaults.
func (o *runOptions) runConfig(cmd *cobra.Command, app *application.App) (core.RunConfig, error) {
	cfg, err := core.DefaultRunConfig(app.Config.Import)
	if err != nil {
		return cfg, err
	}
	cfg.Template = o.template
	cfg.ParentPath = o.parent

	flags := cmd.Flags()
	if flags.Changed("policy") {
		if cfg.DuplicatePolicy, err = core.ParseDuplicatePolicy(o.policy); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("auto-create") {
		cfg.AutoCreateReferences = o.autoCreate
	}
	if flags.Changed("max-rows") {
		cfg.MaxRows = o.maxRows
	}
	if flags.Changed("delimiter") {
		if cfg.Delimiter, err = core.ParseSeparator(o.delimiter); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("quote") {
		if cfg.Quote, err = core.ParseSeparator(o.quote); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// parseMapFlags turns ["0=title", "3="] into column overrides.
func parseMapFlags(values []string) (map[int]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[int]string, len(values))
	for _, v := range values {
		idx, field, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --map %q: want index=field", v)
		}
		n, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid --map %q: column index must be a non-negative integer", v)
		}
		out[n] = strings.TrimSpace(field)
	}
	return out, nil
}
