package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/service/common"
	"github.com/oshokin/enginectl/internal/service/supervisor"
)

// errInvalidPort is returned for a port outside 1-65535.
var errInvalidPort = errors.New("port must be a number between 1 and 65535")

const maxPort = 65535

// supervisorOp is one supervisor call on one host.
type supervisorOp func(ctx context.Context, s *supervisor.Supervisor) (*supervisor.Report, error)

func newStartCommand(g *globalOptions) *cobra.Command {
	var (
		force       bool
		stopTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start <host> <port>",
		Short: "Start the engine from the current release",
		Long: "Launch the engine in its own process group from the current release, " +
			"bound to the given address and port. A running instance is an error " +
			"unless --force restarts it.",
		Args: cobra.ExactArgs(2), //nolint:mnd // Bind host and port.
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}

			req := supervisor.StartRequest{
				BindHost: args[0],
				Port:     port,
				Force:    force,
			}

			return supervise(cmd, g, engine.ActionStart, stopTimeout,
				func(ctx context.Context, s *supervisor.Supervisor) (*supervisor.Report, error) {
					return s.Start(ctx, req)
				})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "restart a running instance")
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", supervisor.DefaultStopTimeout,
		"how long a forced restart waits for the old instance to exit")

	return cmd
}

func newStopCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Send SIGTERM to the running engine",
		Long: "Signal the recorded engine process and its descendants and remove the PID file. " +
			"Stopping an instance that is not running is reported, not failed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return supervise(cmd, g, engine.ActionStop, 0,
				func(ctx context.Context, s *supervisor.Supervisor) (*supervisor.Report, error) {
					return s.Stop(ctx)
				})
		},
	}
}

func newStatusCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the engine is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetContext(g.queryContext(cmd.Context()))

			return supervise(cmd, g, engine.ActionStatus, 0,
				func(ctx context.Context, s *supervisor.Supervisor) (*supervisor.Report, error) {
					return s.Status(ctx)
				})
		},
	}
}

// supervise runs op against a supervisor on every targeted host.
func supervise(cmd *cobra.Command, g *globalOptions, action engine.Action, stopTimeout time.Duration, op supervisorOp) error {
	return withEnvironment(cmd.Context(), g, func(env *common.Environment) error {
		opts := &supervisor.Options{
			Layout:      env.Layout,
			Launch:      env.Config.Launch.Command,
			Env:         env.Config.Launch.Env,
			Executor:    env.Config.Executor,
			StopScope:   env.Config.StopScope,
			StopTimeout: stopTimeout,
		}

		return runOnHosts(cmd.Context(), env, cmd.OutOrStdout(), action,
			func(ctx context.Context, h host.Host) (string, *engine.Event, error) {
				report, err := op(ctx, supervisor.New(h, opts))
				if err != nil {
					return "", nil, err
				}

				line := report.String()

				return line, &engine.Event{Version: report.Version, Detail: line}, nil
			})
	})
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > maxPort {
		return 0, fmt.Errorf("%q: %w", s, errInvalidPort)
	}

	return port, nil
}
