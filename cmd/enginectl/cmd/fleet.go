package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/service/common"
	"github.com/oshokin/enginectl/internal/service/fleet"
)

// hostOp runs one command on one host and returns the line printed for it
// together with the event recorded in the history ledger.
type hostOp func(ctx context.Context, h host.Host) (line string, event *engine.Event, err error)

// runOnHosts applies op to every targeted host, records each outcome and
// prints one line per host. The returned error aggregates host failures.
func runOnHosts(ctx context.Context, env *common.Environment, out io.Writer, action engine.Action, op hostOp) error {
	results, err := fleet.Run(ctx, env.Hosts, env.FleetOptions(), func(ctx context.Context, h host.Host) (string, error) {
		line, event, err := op(ctx, h)
		if event == nil {
			event = &engine.Event{}
		}

		event.Host = h.Name()
		event.Action = action

		env.Record(ctx, event, err)

		return line, err
	})

	printResults(out, results)

	return err
}

// printResults writes one line per host.
func printResults(out io.Writer, results []fleet.Result[string]) {
	for i := range results {
		r := &results[i]

		switch {
		case r.Skipped():
			_, _ = fmt.Fprintf(out, "%s: skipped\n", r.Host)
		case r.Err != nil:
			_, _ = fmt.Fprintf(out, "%s: failed: %v\n", r.Host, r.Err)
		default:
			_, _ = fmt.Fprintf(out, "%s: %s\n", r.Host, r.Value)
		}
	}
}

// withEnvironment opens the environment for the duration of fn.
func withEnvironment(ctx context.Context, g *globalOptions, fn func(env *common.Environment) error) (err error) {
	env, err := g.environment(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := env.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(env)
}
