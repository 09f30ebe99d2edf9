package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/enginectl/internal/config"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/logger"
	"github.com/oshokin/enginectl/internal/service/common"
	"github.com/oshokin/enginectl/internal/version"
)

// errUnknownLogLevel is returned when --log-level names a level zap does not know.
var errUnknownLogLevel = errors.New("unknown log level")

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	// configPath to the configuration YAML file.
	configPath string
	// targets restricts host-targeted commands to these hosts.
	targets []string
	// logLevel overrides the configured log level when set.
	logLevel string
	// hostOptions are passed to every constructed host; tests inject fakes here.
	hostOptions []host.Option
}

// NewRootCommand builds the enginectl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&globalOptions{})
}

func newRootCommand(g *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "enginectl",
		Short: "Package, deploy and supervise engine releases",
		Long: "enginectl builds versioned release archives of an engine package, deploys them " +
			"into a per-host release store with an atomically switched current pointer, " +
			"and starts, stops and inspects the engine process running from the active release.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringArrayVarP(&g.targets, "target", "t", nil, "restrict the command to this host (repeatable)")
	flags.StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newInitCommand(g),
		newProvisionCommand(g),
		newPackageCommand(g),
		newDeployCommand(g),
		newActivateCommand(g),
		newReleasesCommand(g),
		newStartCommand(g),
		newStopCommand(g),
		newStatusCommand(g),
		newHistoryCommand(g),
	)

	version.AttachCobraVersionCommand(root)

	return root
}

// Execute runs the enginectl CLI and exits with non-zero status on error.
func Execute() {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := NewRootCommand().ExecuteContext(ctx)

	stop()

	if err != nil {
		logger.Error(ctx, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the log level.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}

	if !logger.SetLevelString(level) {
		return nil, fmt.Errorf("%q: %w", level, errUnknownLogLevel)
	}

	return cfg, nil
}

// queryContext quiets service logs for commands whose output is the report
// itself, unless a level was requested explicitly.
func (g *globalOptions) queryContext(ctx context.Context) context.Context {
	if g.logLevel != "" {
		return ctx
	}

	return logger.WithMinLevel(ctx, zapcore.WarnLevel)
}

// environment loads the configuration and assembles the targeted hosts.
func (g *globalOptions) environment(ctx context.Context) (*common.Environment, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	return common.NewEnvironment(ctx, cfg,
		common.WithTargets(g.targets...),
		common.WithHostOptions(g.hostOptions...))
}
