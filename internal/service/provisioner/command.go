package provisioner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/twpayne/go-vfs"

	"github.com/oshokin/enginectl/internal/config"
	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/logger"
)

// PrepareDirectories is the name of the built-in directory step.
const PrepareDirectories = "prepare_directories"

var errUnknownStep = errors.New("unknown provisioning step")

// Options contains inputs for a provisioning run.
type Options struct {
	// Layout names the directories to create.
	Layout engine.Layout
	// Steps are the configured shell steps, in order.
	Steps []config.Step
	// Only restricts the run to the named steps when non-empty.
	Only []string
}

// StepResult records one executed step.
type StepResult struct {
	Name     string
	Duration time.Duration
}

// Report lists the steps executed on one host.
type Report struct {
	Host  string
	Steps []StepResult
}

// step is one runnable provisioning action.
type step struct {
	name string
	run  func(ctx context.Context) error
}

// Run provisions h.
func Run(ctx context.Context, h host.Host, opts *Options) (*Report, error) {
	ctx = logger.WithName(ctx, "provisioner")
	ctx = logger.WithKV(ctx, "host", h.Name())

	steps, err := plan(h, opts)
	if err != nil {
		return nil, err
	}

	report := &Report{Host: h.Name()}

	for _, s := range steps {
		logger.InfoKV(ctx, "Running provisioning step", "step", s.name)

		started := time.Now()

		if err = s.run(ctx); err != nil {
			return report, fmt.Errorf("step %s: %w", s.name, err)
		}

		report.Steps = append(report.Steps, StepResult{Name: s.name, Duration: time.Since(started)})
	}

	logger.InfoKV(ctx, "Host provisioned", "steps", len(report.Steps))

	return report, nil
}

// StepNames lists every step a run would consider, built-in first.
func StepNames(steps []config.Step) []string {
	names := []string{PrepareDirectories}
	for _, s := range steps {
		names = append(names, s.Name)
	}

	return names
}

func plan(h host.Host, opts *Options) ([]step, error) {
	known := StepNames(opts.Steps)

	for _, name := range opts.Only {
		if !slices.Contains(known, name) {
			return nil, fmt.Errorf("%q (known: %s): %w", name, strings.Join(known, ", "), errUnknownStep)
		}
	}

	selected := func(name string) bool {
		return len(opts.Only) == 0 || slices.Contains(opts.Only, name)
	}

	var steps []step

	if selected(PrepareDirectories) {
		steps = append(steps, step{
			name: PrepareDirectories,
			run: func(context.Context) error {
				return prepareDirectories(h.FS(), opts.Layout)
			},
		})
	}

	for _, s := range opts.Steps {
		if !selected(s.Name) {
			continue
		}

		script := s.Run
		steps = append(steps, step{
			name: s.Name,
			run: func(ctx context.Context) error {
				return h.Run(ctx, &host.Command{Name: "sh", Args: []string{"-c", script}})
			},
		})
	}

	return steps, nil
}

func prepareDirectories(fs vfs.FS, layout engine.Layout) error {
	for _, dir := range []string{layout.EnginesDir(), layout.LogDir(), layout.RunDir()} {
		if err := vfs.MkdirAll(fs, dir, host.DirMode); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return nil
}
