package main

import (
	"os"

	"github.com/JonMunkholm/PageImport/internal/core"
	_ "github.com/JonMunkholm/PageImport/internal/pages/templates"
	"github.com/spf13/cobra"
)

func newTemplatesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "templates [name]",
		Short: "List importable templates and their fields",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := core.ListTemplates()
			if len(args) == 1 {
				info, err := core.DescribeTemplate(args[0])
				if err != nil {
					return err
				}
				infos = []core.TemplateInfo{info}
			}
			if opts.json {
				return writeJSON(infos)
			}
			return writeTemplates(os.Stdout, infos)
		},
	}
}
