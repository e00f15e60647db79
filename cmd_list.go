package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/datawire/pydist/pkg/cliutil"
	"github.com/datawire/pydist/pkg/python/pkg_resources"
)

func init() {
	var argOutput string
	var argPaths *[]string
	cmd := &cobra.Command{
		Use:   "list [flags]",
		Short: "List the distributions installed on the search path",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			env := pkg_resources.ScanEnvironment(ctx, pkg_resources.NewPathCache(),
				searchPath(*argPaths), "", "")

			type row struct {
				Key        string `yaml:"key"`
				Version    string `yaml:"version"`
				Location   string `yaml:"location"`
				Precedence string `yaml:"precedence"`
			}
			var rows []row
			for _, key := range env.Keys() {
				for _, dist := range env.Get(key) {
					ver, err := dist.Version()
					if err != nil {
						return err
					}
					rows = append(rows, row{
						Key:        key,
						Version:    ver,
						Location:   dist.Location(),
						Precedence: dist.Precedence().String(),
					})
				}
			}

			switch argOutput {
			case "yaml":
				bs, err := yaml.Marshal(rows)
				if err != nil {
					return err
				}
				if _, err := os.Stdout.Write(bs); err != nil {
					return err
				}
			case "table":
				tab := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
				fmt.Fprintln(tab, "KEY\tVERSION\tPRECEDENCE\tLOCATION")
				for _, r := range rows {
					fmt.Fprintf(tab, "%s\t%s\t%s\t%s\n", r.Key, r.Version, r.Precedence, r.Location)
				}
				if err := tab.Flush(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("invalid output format %q", argOutput)
			}
			return nil
		},
	}
	argPaths = searchPathFlag(cmd.Flags())
	cmd.Flags().StringVarP(&argOutput, "output", "o", "table",
		"Output `format`: table or yaml")

	argparser.AddCommand(cmd)
}
