package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/datawire/pydist/pkg/cliutil"
	"github.com/datawire/pydist/pkg/python/pkg_resources"
	"github.com/datawire/pydist/pkg/python/pypa/entry_points"
)

func init() {
	var argGroup, argName string
	var argPaths *[]string
	cmd := &cobra.Command{
		Use:   "entry-points [flags]",
		Short: "List the entry points advertised on the search path",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			ws := pkg_resources.NewWorkingSet(ctx, nil, searchPath(*argPaths))

			type row struct {
				group string
				ep    entry_points.EntryPoint
				dist  *pkg_resources.Distribution
			}
			var rows []row
			for _, dist := range ws.Distributions() {
				epMap, err := dist.EntryPointsMap()
				if err != nil {
					return err
				}
				groups := make([]string, 0, len(epMap))
				for group := range epMap {
					if argGroup == "" || group == argGroup {
						groups = append(groups, group)
					}
				}
				sort.Strings(groups)
				for _, group := range groups {
					for _, ep := range epMap[group] {
						if argName != "" && ep.Name() != argName {
							continue
						}
						rows = append(rows, row{group: group, ep: ep, dist: dist})
					}
				}
			}

			tab := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(tab, "GROUP\tENTRY POINT\tDISTRIBUTION")
			for _, r := range rows {
				fmt.Fprintf(tab, "%s\t%s\t%s\n", r.group, r.ep.String(), r.dist.String())
			}
			return tab.Flush()
		},
	}
	argPaths = searchPathFlag(cmd.Flags())
	cmd.Flags().StringVar(&argGroup, "group", "",
		"Only list entry points in the named `group`")
	cmd.Flags().StringVar(&argName, "name", "",
		"Only list entry points with the given `name`")

	argparser.AddCommand(cmd)
}
