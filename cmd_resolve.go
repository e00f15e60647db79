package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/datawire/pydist/pkg/cliutil"
	"github.com/datawire/pydist/pkg/python/pep508"
	"github.com/datawire/pydist/pkg/python/pkg_resources"
)

func init() {
	var argExtras []string
	var argPaths, argMarkers *[]string
	cmd := &cobra.Command{
		Use:   "resolve [flags] REQUIREMENT...",
		Short: "Resolve requirements against the installed distributions",
		Long: "Resolve the given requirement strings against the distributions installed " +
			"on the search path, and print the distributions that would have to be " +
			"activated to satisfy them, in activation order.  An unsatisfiable " +
			"requirement (missing distribution, or version conflict) aborts the whole " +
			"resolution.",
		Args: cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			reqs, err := pep508.ParseRequirements(strings.Join(args, "\n"))
			if err != nil {
				return err
			}

			menv, err := markerEnv(*argMarkers)
			if err != nil {
				return err
			}

			cache := pkg_resources.NewPathCache()
			paths := searchPath(*argPaths)
			ws := pkg_resources.NewWorkingSet(ctx, cache, nil)
			ws.MarkerEnv = menv
			env := pkg_resources.ScanEnvironment(ctx, cache, paths, "", "")

			dists, err := ws.Resolve(ctx, reqs, env, nil, false, argExtras...)
			if err != nil {
				return err
			}

			tab := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			for _, dist := range dists {
				ver, err := dist.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(tab, "%s==%s\t%s\n", dist.Key(), ver, dist.Location())
			}
			return tab.Flush()
		},
	}
	argPaths = searchPathFlag(cmd.Flags())
	argMarkers = markerEnvFlag(cmd.Flags())
	cmd.Flags().StringArrayVar(&argExtras, "extra", nil,
		"Treat the named `extra` as active when evaluating requirement markers (repeatable)")

	argparser.AddCommand(cmd)
}
