package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oshokin/enginectl/internal/artifact"
	"github.com/oshokin/enginectl/internal/config"
	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/logger"
	"github.com/oshokin/enginectl/internal/service/common"
	"github.com/oshokin/enginectl/internal/service/deployer"
	"github.com/oshokin/enginectl/internal/service/packager"
)

// errManifestMismatch is returned when the manifest next to an archive describes another release.
var errManifestMismatch = errors.New("manifest does not describe the archive")

func newDeployCommand(g *globalOptions) *cobra.Command {
	var (
		archive  string
		packFrom bool
	)

	cmd := &cobra.Command{
		Use:   "deploy <version>",
		Short: "Deploy a release to the targeted hosts and make it current",
		Long: "Upload the release archive, unpack it into its own version directory, " +
			"switch the current pointer to it and build its environment. " +
			"A version that is already deployed on a host is rejected.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ver := args[0]
			if err := engine.ValidateVersion(ver); err != nil {
				return err
			}

			ctx := cmd.Context()

			return withEnvironment(ctx, g, func(env *common.Environment) error {
				archivePath, checksum, err := resolveArchive(ctx, env.Config, ver, archive, packFrom)
				if err != nil {
					return err
				}

				opts := &deployer.Options{
					Layout:   env.Layout,
					Version:  ver,
					Archive:  archivePath,
					Checksum: checksum,
					Build:    env.Config.Build,
					BuildEnv: env.Config.Launch.Env,
					Executor: env.Config.Executor,
				}

				return runOnHosts(ctx, env, cmd.OutOrStdout(), engine.ActionDeploy,
					func(ctx context.Context, h host.Host) (string, *engine.Event, error) {
						event := &engine.Event{Version: ver}

						report, err := deployer.Run(ctx, h, opts)
						if err != nil {
							return "", event, err
						}

						line := describeSwitch("deployed", report)
						event.Detail = line

						return line, event, nil
					})
			})
		},
	}

	cmd.Flags().StringVar(&archive, "archive", "", "release archive to deploy (default: the staging directory archive)")
	cmd.Flags().BoolVar(&packFrom, "package", false, "package the source tree before deploying")

	return cmd
}

func newActivateCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <version>",
		Short: "Point current at an already deployed release",
		Long:  "Atomically switch the current pointer to a deployed version. A running engine keeps running from the release it was started from.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ver := args[0]
			if err := engine.ValidateVersion(ver); err != nil {
				return err
			}

			return withEnvironment(cmd.Context(), g, func(env *common.Environment) error {
				return runOnHosts(cmd.Context(), env, cmd.OutOrStdout(), engine.ActionActivate,
					func(ctx context.Context, h host.Host) (string, *engine.Event, error) {
						event := &engine.Event{Version: ver}

						report, err := deployer.Activate(ctx, h, env.Layout, ver)
						if err != nil {
							return "", event, err
						}

						line := describeSwitch("activated", report)
						event.Detail = line

						return line, event, nil
					})
			})
		},
	}
}

// resolveArchive finds the archive to deploy and its expected checksum.
// A nil checksum lets the deployer compute it from the archive.
func resolveArchive(
	ctx context.Context,
	cfg *config.Config,
	ver, archive string,
	packFrom bool,
) (string, []byte, error) {
	if packFrom {
		result, err := packager.Run(ctx, packagerOptions(cfg, ver))
		if err != nil {
			return "", nil, err
		}

		checksum, err := result.Manifest.ChecksumBytes()

		return result.ArchivePath, checksum, err
	}

	layout := engine.NewLayout(cfg.Namespace, cfg.Package)

	if archive == "" {
		archive = filepath.Join(cfg.StagingDir, layout.ArchiveName(ver))
	}

	if _, err := os.Stat(archive); err != nil {
		return "", nil, fmt.Errorf("%w: archive %s: %w", engine.ErrTransfer, archive, err)
	}

	manifestPath := filepath.Join(filepath.Dir(archive), layout.ManifestName(ver))

	manifest, err := artifact.LoadManifest(manifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.DebugKV(ctx, "No manifest next to the archive, checksum will be computed", "archive", archive)
		return archive, nil, nil
	}

	if err != nil {
		return "", nil, err
	}

	if manifest.Version != ver || manifest.Archive != filepath.Base(archive) {
		return "", nil, fmt.Errorf("%s: %w", manifestPath, errManifestMismatch)
	}

	checksum, err := manifest.ChecksumBytes()
	if err != nil {
		return "", nil, err
	}

	return archive, checksum, nil
}

func describeSwitch(verb string, report *deployer.Report) string {
	if report.Previous == "" || report.Previous == report.Version {
		return fmt.Sprintf("%s %s", verb, report.Version)
	}

	return fmt.Sprintf("%s %s (was %s)", verb, report.Version, report.Previous)
}
