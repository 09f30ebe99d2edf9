//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/oshokin/enginectl/internal/config"
	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/logger"
	"github.com/oshokin/enginectl/internal/repository/history"
	"github.com/oshokin/enginectl/internal/service/fleet"
)

// errUnknownTarget is returned when --target names a host missing from the config.
var errUnknownTarget = errors.New("unknown target host")

// Environment is everything a host-targeted command needs.
type Environment struct {
	// Config is the validated configuration.
	Config *config.Config
	// Layout is the on-host path layout of the configured package.
	Layout engine.Layout
	// Hosts are the targeted hosts, in configuration order.
	Hosts []host.Host
	// History records the outcome of every host operation.
	History history.Repository
	// Actor is the operator running the tool; nil when it cannot be detected.
	Actor *engine.Actor
}

// Option configures how the environment is assembled.
type Option func(*environmentOptions)

type environmentOptions struct {
	targets     []string
	hostOptions []host.Option
	history     history.Repository
}

// WithTargets restricts the environment to the named hosts.
func WithTargets(names ...string) Option {
	return func(o *environmentOptions) {
		o.targets = append(o.targets, names...)
	}
}

// WithHostOptions passes options to every constructed host.
func WithHostOptions(opts ...host.Option) Option {
	return func(o *environmentOptions) {
		o.hostOptions = append(o.hostOptions, opts...)
	}
}

// WithHistory uses repo instead of opening the configured history file.
func WithHistory(repo history.Repository) Option {
	return func(o *environmentOptions) {
		o.history = repo
	}
}

// NewEnvironment builds the hosts and opens the history ledger for cfg,
// which must already be validated.
func NewEnvironment(ctx context.Context, cfg *config.Config, opts ...Option) (*Environment, error) {
	var o environmentOptions
	for _, opt := range opts {
		opt(&o)
	}

	hosts, err := buildHosts(cfg, o.targets, o.hostOptions)
	if err != nil {
		return nil, err
	}

	repo := o.history
	if repo == nil {
		repo, err = openHistory(cfg.HistoryFile)
		if err != nil {
			return nil, err
		}
	}

	actor, err := DetectActor()
	if err != nil {
		logger.WarnKV(ctx, "Could not detect the operator", "error", err)
	}

	return &Environment{
		Config:  cfg,
		Layout:  engine.NewLayout(cfg.Namespace, cfg.Package),
		Hosts:   hosts,
		History: repo,
		Actor:   actor,
	}, nil
}

// FleetOptions returns the worker pool settings from the configuration.
func (e *Environment) FleetOptions() fleet.Options {
	return fleet.Options{
		Parallelism: e.Config.Parallelism,
		FailFast:    e.Config.FailFast,
	}
}

// Record stores the outcome of one host operation. A non-nil err marks the
// event failed and becomes its detail. Ledger failures are logged, never returned.
func (e *Environment) Record(ctx context.Context, event *engine.Event, err error) {
	event.Package = e.Config.Package
	event.Actor = e.Actor.Clone()
	event.Outcome = engine.OutcomeOK

	if err != nil {
		event.Outcome = engine.OutcomeFailed
		event.Detail = err.Error()
	}

	if recordErr := e.History.Record(ctx, event); recordErr != nil {
		logger.WarnKV(ctx, "Could not record history", "host", event.Host, "action", event.Action, "error", recordErr)
	}
}

// Close releases the history ledger.
func (e *Environment) Close() error {
	if e == nil || e.History == nil {
		return nil
	}

	return e.History.Close()
}

func buildHosts(cfg *config.Config, targets []string, opts []host.Option) ([]host.Host, error) {
	known := cfg.HostNames()

	for _, target := range targets {
		if !slices.Contains(known, target) {
			return nil, fmt.Errorf("%q: %w", target, errUnknownTarget)
		}
	}

	hosts := make([]host.Host, 0, len(cfg.Hosts))

	for _, h := range cfg.Hosts {
		if len(targets) > 0 && !slices.Contains(targets, h.Name) {
			continue
		}

		local, err := host.NewLocal(h.Name, h.Root, opts...)
		if err != nil {
			return nil, err
		}

		hosts = append(hosts, local)
	}

	return hosts, nil
}

func openHistory(path string) (history.Repository, error) {
	if path == config.HistoryDisabled {
		return history.Nop{}, nil
	}

	repo, err := history.Open(path)
	if err != nil {
		return nil, err
	}

	return repo, nil
}
