package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datawire/pydist/pkg/cliutil"
	"github.com/datawire/pydist/pkg/python/pep508"
	"github.com/datawire/pydist/pkg/python/pkg_resources"
)

func init() {
	var argPaths, argMarkers *[]string
	cmd := &cobra.Command{
		Use:   "requires [flags] DIST [EXTRA...]",
		Short: "Print a distribution's requirements",
		Long: "Print the requirements of the named installed distribution: its " +
			"unconditional dependencies, plus those added by each named extra.",
		Args: cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			req, err := pep508.ParseRequirement(args[0])
			if err != nil {
				return err
			}
			extras := args[1:]

			env := pkg_resources.ScanEnvironment(ctx, pkg_resources.NewPathCache(),
				searchPath(*argPaths), "", "")
			var dist *pkg_resources.Distribution
			for _, candidate := range env.Get(req.Key()) {
				if candidate.Satisfies(*req) {
					dist = candidate
					break
				}
			}
			if dist == nil {
				return &pkg_resources.DistributionNotFoundError{Req: *req}
			}

			menv, err := markerEnv(*argMarkers)
			if err != nil {
				return err
			}
			dist = dist.Clone(func(spec *pkg_resources.DistributionSpec) {
				spec.MarkerEnv = menv
			})

			reqs, err := dist.Requires(extras...)
			if err != nil {
				return err
			}
			for _, dep := range reqs {
				fmt.Fprintln(os.Stdout, dep.String())
			}
			return nil
		},
	}
	argPaths = searchPathFlag(cmd.Flags())
	argMarkers = markerEnvFlag(cmd.Flags())

	argparser.AddCommand(cmd)
}
