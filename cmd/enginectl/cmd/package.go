package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/enginectl/internal/config"
	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/service/packager"
)

func newPackageCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "package <version>",
		Short: "Build a release archive from the source tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			result, err := packager.Run(cmd.Context(), packagerOptions(cfg, args[0]))
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d files, sha512 %s)\n",
				result.ArchivePath, result.Files, result.Manifest.Checksum)

			return nil
		},
	}
}

func packagerOptions(cfg *config.Config, version string) *packager.Options {
	return &packager.Options{
		SourceDir:  cfg.SourceDir,
		StagingDir: cfg.StagingDir,
		Layout:     engine.NewLayout(cfg.Namespace, cfg.Package),
		Version:    version,
		Exclude:    cfg.Exclude,
	}
}
