package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/service/common"
	"github.com/oshokin/enginectl/internal/service/provisioner"
)

func newProvisionCommand(g *globalOptions) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Prepare hosts to run engines",
		Long: "Create the engine directories and run the configured provisioning steps " +
			"on every targeted host. The first failing step aborts the host.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnvironment(cmd.Context(), g, func(env *common.Environment) error {
				opts := &provisioner.Options{
					Layout: env.Layout,
					Steps:  env.Config.Provision,
					Only:   only,
				}

				return runOnHosts(cmd.Context(), env, cmd.OutOrStdout(), engine.ActionProvision,
					func(ctx context.Context, h host.Host) (string, *engine.Event, error) {
						report, err := provisioner.Run(ctx, h, opts)
						if err != nil {
							return "", nil, err
						}

						names := make([]string, 0, len(report.Steps))
						for _, s := range report.Steps {
							names = append(names, s.Name)
						}

						line := "provisioned: " + strings.Join(names, ", ")

						return line, &engine.Event{Detail: line}, nil
					})
			})
		},
	}

	cmd.Flags().StringArrayVar(&only, "step", nil,
		fmt.Sprintf("run only this step (repeatable; %q is built in)", provisioner.PrepareDirectories))

	return cmd
}
