package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twpayne/go-vfs"

	"github.com/oshokin/enginectl/internal/config"
	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/lock"
	"github.com/oshokin/enginectl/internal/logger"
	"github.com/oshokin/enginectl/internal/repository/pidfile"
	"github.com/oshokin/enginectl/internal/repository/release"
)

const (
	// DefaultStopTimeout bounds how long a forced restart waits for the old instance.
	DefaultStopTimeout = 10 * time.Second

	// exitPollInterval is how often a forced restart re-checks the old instance.
	exitPollInterval = 100 * time.Millisecond
)

var errStillRunning = errors.New("previous instance did not exit")

// Options configures a Supervisor.
type Options struct {
	// Layout names the package and its directories.
	Layout engine.Layout
	// Launch is the engine command template.
	Launch []string
	// Env is extra environment for the engine.
	Env map[string]string
	// Executor is exposed to the launch template.
	Executor string
	// StopScope is config.StopScopeTree or config.StopScopeChildren.
	StopScope string
	// StopTimeout bounds the wait of a forced restart; zero means DefaultStopTimeout.
	StopTimeout time.Duration
}

// StartRequest holds the per-start launch parameters.
type StartRequest struct {
	// BindHost is the address the engine listens on.
	BindHost string
	// Port is the port the engine listens on.
	Port int
	// Force restarts a running instance instead of failing.
	Force bool
}

// Report describes an instance after an operation.
type Report struct {
	Host  string
	State engine.State
	// PID is the top-level engine pid, if one was known.
	PID int
	// Version is the active release, if any.
	Version string
	// Signaled lists the pids a stop sent SIGTERM to.
	Signaled []int
	// Condition is an informational outcome such as engine.ErrStaleState.
	Condition error
	// StaleRemoved is set when a stale PID file was deleted.
	StaleRemoved bool
}

// String renders the report the way operators read it.
func (r *Report) String() string {
	var b strings.Builder

	switch r.State {
	case engine.StateRunning:
		fmt.Fprintf(&b, "running (pid %d", r.PID)
	case engine.StateStarting:
		fmt.Fprintf(&b, "started (pid %d", r.PID)
	case engine.StateStopped, engine.StateStoppedDirty:
		b.WriteString("not running")

		if len(r.Signaled) > 0 {
			fmt.Fprintf(&b, " (stopped pids %s)", joinInts(r.Signaled))
		}
	}

	if r.State.Alive() {
		if r.Version != "" {
			fmt.Fprintf(&b, ", release %s", r.Version)
		}

		b.WriteString(")")
	}

	switch {
	case r.StaleRemoved:
		b.WriteString(" (stale pid file removed)")
	case r.Condition != nil:
		fmt.Fprintf(&b, ": %v", r.Condition)
	}

	return b.String()
}

// Supervisor controls the engine instance of one package on one host.
type Supervisor struct {
	host   host.Host
	fs     vfs.FS
	opts   *Options
	pids   *pidfile.FileRepository
	store  *release.Store
	layout engine.Layout
}

// New returns a supervisor for opts.Layout on h.
func New(h host.Host, opts *Options) *Supervisor {
	return &Supervisor{
		host:   h,
		fs:     h.FS(),
		opts:   opts,
		pids:   pidfile.NewFileRepository(h.FS(), opts.Layout.PIDFile()),
		store:  release.NewStore(h, opts.Layout),
		layout: opts.Layout,
	}
}

// Start launches the engine from the active release and records its pid.
// It returns without waiting for the engine to become ready.
func (s *Supervisor) Start(ctx context.Context, req StartRequest) (*Report, error) {
	ctx = s.logContext(ctx)

	var report *Report

	err := s.withLock(func() error {
		var err error

		report, err = s.start(ctx, req)

		return err
	})
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Engine started", "pid", report.PID, "release", report.Version,
		"bind_host", req.BindHost, "port", req.Port)

	return report, nil
}

func (s *Supervisor) start(ctx context.Context, req StartRequest) (*Report, error) {
	current, err := s.inspect()
	if err != nil {
		return nil, err
	}

	switch current.State {
	case engine.StateRunning, engine.StateStarting:
		if !req.Force {
			return nil, fmt.Errorf("pid %d: %w", current.PID, engine.ErrAlreadyRunning)
		}

		logger.InfoKV(ctx, "Restarting running engine", "pid", current.PID)

		if _, err = s.stop(ctx); err != nil {
			return nil, err
		}

		if err = s.waitExit(ctx, current.PID); err != nil {
			return nil, err
		}
	case engine.StateStoppedDirty:
		logger.WarnKV(ctx, "Replacing stale pid file", "pid", current.PID)
	case engine.StateStopped:
	}

	version, err := s.store.Current()
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{s.layout.LogDir(), s.layout.RunDir()} {
		if err = vfs.MkdirAll(s.fs, dir, host.DirMode); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	cmd, err := host.NewCommand(s.opts.Launch, &engine.CommandData{
		Namespace: s.layout.Namespace,
		Package:   s.layout.Package,
		Version:   version,
		Executor:  s.opts.Executor,
		Host:      req.BindHost,
		Port:      req.Port,
		Dir:       s.host.Path(s.layout.CurrentDir()),
	})
	if err != nil {
		return nil, fmt.Errorf("render launch command: %w", err)
	}

	cmd.Dir = s.layout.CurrentDir()
	cmd.Env = s.opts.Env

	logger.DebugKV(ctx, "Launching engine", "command", cmd.String())

	pid, err := s.host.Spawn(cmd, s.layout.StdoutLog(), s.layout.StderrLog())
	if err != nil {
		return nil, err
	}

	if err = s.pids.Save(pid); err != nil {
		// An untracked engine could never be stopped again.
		_ = s.host.SignalGroup(pid, host.SIGTERM)

		return nil, err
	}

	return &Report{
		Host:    s.host.Name(),
		State:   engine.StateStarting,
		PID:     pid,
		Version: version,
	}, nil
}

// Stop sends SIGTERM to the engine processes and removes the PID file
// without waiting for them to exit. A missing or stale PID file is reported
// through Report.Condition, not as an error.
func (s *Supervisor) Stop(ctx context.Context) (*Report, error) {
	ctx = s.logContext(ctx)

	var report *Report

	err := s.withLock(func() error {
		var err error

		report, err = s.stop(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	if report.Condition != nil {
		logger.InfoKV(ctx, "Nothing to stop", "reason", report.Condition)
	} else {
		logger.InfoKV(ctx, "Engine stopped", "pid", report.PID, "signaled", report.Signaled)
	}

	return report, nil
}

func (s *Supervisor) stop(ctx context.Context) (*Report, error) {
	current, err := s.inspect()
	if err != nil {
		return nil, err
	}

	report := &Report{
		Host:    s.host.Name(),
		State:   engine.StateStopped,
		PID:     current.PID,
		Version: current.Version,
	}

	switch current.State {
	case engine.StateStopped:
		report.Condition = engine.ErrStopTargetMissing

		return report, nil
	case engine.StateStoppedDirty:
		report.Condition = current.Condition

		if err = s.pids.Remove(); err != nil {
			return nil, err
		}

		report.StaleRemoved = true

		return report, nil
	case engine.StateRunning, engine.StateStarting:
	}

	signaled, err := s.terminate(ctx, current.PID)

	// The file goes even when signalling failed, so no later call trusts it.
	if removeErr := s.pids.Remove(); removeErr != nil {
		err = errors.Join(err, removeErr)
	}

	if err != nil {
		return nil, err
	}

	report.Signaled = signaled

	return report, nil
}

// Status reports the instance state. A stale PID file is removed when no
// other operation holds the lock.
func (s *Supervisor) Status(ctx context.Context) (*Report, error) {
	ctx = s.logContext(ctx)

	report, err := s.inspect()
	if err != nil {
		return nil, err
	}

	if report.State == engine.StateStoppedDirty {
		report.StaleRemoved = s.removeStale(ctx, report.PID)
	}

	return report, nil
}

// inspect reads the PID file and checks the process table, without side effects.
func (s *Supervisor) inspect() (*Report, error) {
	report := &Report{
		Host:  s.host.Name(),
		State: engine.StateStopped,
	}

	// Liveness depends on the PID file only; a broken current pointer just
	// leaves the version unknown.
	if version, err := s.store.Current(); err == nil {
		report.Version = version
	}

	pid, err := s.pids.Load()

	switch {
	case errors.Is(err, pidfile.ErrNotFound):
		return report, nil
	case errors.Is(err, pidfile.ErrMalformed):
		report.State = engine.StateStoppedDirty
		report.Condition = fmt.Errorf("%w: %w", engine.ErrStaleState, err)

		return report, nil
	case err != nil:
		return nil, err
	}

	report.PID = pid

	alive, err := s.host.Alive(pid)
	if err != nil {
		return nil, err
	}

	if !alive {
		report.State = engine.StateStoppedDirty
		report.Condition = fmt.Errorf("pid %d: %w", pid, engine.ErrStaleState)

		return report, nil
	}

	report.State = engine.StateRunning

	return report, nil
}

// removeStale deletes the PID file of pid if no operation holds the lock,
// and reports whether it did.
func (s *Supervisor) removeStale(ctx context.Context, pid int) bool {
	held, err := lock.Acquire(s.host.Path(s.layout.LockFile()))
	if err != nil {
		logger.DebugKV(ctx, "Stale pid file left in place", "reason", err)

		return false
	}

	defer func() {
		_ = held.Release()
	}()

	// Another operation may have rewritten the file before the lock was taken.
	if current, err := s.pids.Load(); err == nil && current != pid {
		return false
	}

	if err = s.pids.Remove(); err != nil {
		logger.WarnKV(ctx, "Failed to remove stale pid file", "error", err)

		return false
	}

	logger.InfoKV(ctx, "Removed stale pid file", "pid", pid)

	return true
}

func (s *Supervisor) waitExit(ctx context.Context, pid int) error {
	timeout := s.opts.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(exitPollInterval)
	defer ticker.Stop()

	for {
		alive, err := s.host.Alive(pid)
		if err != nil {
			return err
		}

		if !alive {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("pid %d after %s: %w", pid, timeout, errStillRunning)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) withLock(fn func() error) error {
	return lock.With(s.host.Path(s.layout.LockFile()), fn)
}

func (s *Supervisor) logContext(ctx context.Context) context.Context {
	ctx = logger.WithName(ctx, "supervisor")

	return logger.WithFields(ctx, "host", s.host.Name(), "package", s.layout.Package)
}

// stopScope returns the configured scope, defaulting to the whole tree.
func (s *Supervisor) stopScope() string {
	if s.opts.StopScope == "" {
		return config.StopScopeTree
	}

	return s.opts.StopScope
}
