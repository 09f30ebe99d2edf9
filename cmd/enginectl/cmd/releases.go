package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/service/common"
	"github.com/oshokin/enginectl/internal/service/deployer"
	"github.com/oshokin/enginectl/internal/service/fleet"
)

func newReleasesCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "releases",
		Short: "List deployed releases, marking the current one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetContext(g.queryContext(cmd.Context()))

			return withEnvironment(cmd.Context(), g, func(env *common.Environment) error {
				results, err := fleet.Run(cmd.Context(), env.Hosts, env.FleetOptions(),
					func(_ context.Context, h host.Host) (string, error) {
						releases, err := deployer.Releases(h, env.Layout)
						if err != nil {
							return "", err
						}

						if len(releases) == 0 {
							return "no releases", nil
						}

						versions := make([]string, 0, len(releases))

						for _, r := range releases {
							if r.Active {
								versions = append(versions, "*"+r.Version)
								continue
							}

							versions = append(versions, r.Version)
						}

						return strings.Join(versions, " "), nil
					})

				printResults(cmd.OutOrStdout(), results)

				return err
			})
		},
	}
}
