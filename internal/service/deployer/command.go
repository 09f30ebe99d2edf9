package deployer

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/lock"
	"github.com/oshokin/enginectl/internal/logger"
	"github.com/oshokin/enginectl/internal/repository/release"
)

// Options contains inputs for a deploy.
type Options struct {
	// Layout names the package and its directories.
	Layout engine.Layout
	// Version is the release being deployed.
	Version string
	// Archive is the local path of the packaged release.
	Archive string
	// Checksum is the expected archive checksum; nil computes it from Archive.
	Checksum []byte
	// Build is the environment build command template run inside the new release.
	Build []string
	// BuildEnv is extra environment for the build command.
	BuildEnv map[string]string
	// Executor is exposed to the build template.
	Executor string
}

// Report describes the outcome of a deploy or activation on one host.
type Report struct {
	Host    string
	Version string
	// Previous is the version current pointed at before, if any.
	Previous string
}

// deployer performs one deploy on one host.
// It is unexported; callers should use Run.
type deployer struct {
	host  host.Host
	opts  *Options
	store *release.Store
}

// Run deploys opts.Version to h. Each step maps its failure to an error kind:
// engine.ErrTransfer, engine.ErrUnpack or engine.ErrEnvironmentBuild.
func Run(ctx context.Context, h host.Host, opts *Options) (*Report, error) {
	ctx = logger.WithName(ctx, "deployer")
	ctx = logger.WithFields(ctx, "host", h.Name(), "package", opts.Layout.Package, "version", opts.Version)

	if err := engine.ValidateVersion(opts.Version); err != nil {
		return nil, err
	}

	d := &deployer{
		host:  h,
		opts:  opts,
		store: release.NewStore(h, opts.Layout),
	}

	var report *Report

	err := lock.With(h.Path(opts.Layout.LockFile()), func() error {
		var runErr error

		report, runErr = d.run(ctx)

		return runErr
	})
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Release deployed", "previous", report.Previous)

	return report, nil
}

func (d *deployer) run(ctx context.Context) (*Report, error) {
	version := d.opts.Version

	exists, err := d.store.Exists(version)
	if err != nil {
		return nil, err
	}

	if exists {
		return nil, fmt.Errorf("%s on %s: %w", version, d.host.Name(), engine.ErrVersionExists)
	}

	previous, err := d.store.Current()
	if err != nil && !errors.Is(err, engine.ErrNoActiveRelease) {
		return nil, err
	}

	upload := d.opts.Layout.UploadPath(version)

	logger.InfoKV(ctx, "Transferring archive", "target", upload)

	if err = d.host.Upload(ctx, d.opts.Archive, upload, d.opts.Checksum); err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrTransfer, err)
	}

	if err = d.store.Prepare(version); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Unpacking archive")

	if err = d.store.Unpack(ctx, upload, version); err != nil {
		return nil, err
	}

	if err = d.store.Activate(ctx, version); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Building environment")

	if err = d.buildEnvironment(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrEnvironmentBuild, err)
	}

	if err = d.host.FS().Remove(upload); err != nil {
		logger.WarnKV(ctx, "Failed to remove uploaded archive", "path", upload, "error", err)
	}

	return &Report{
		Host:     d.host.Name(),
		Version:  version,
		Previous: previous,
	}, nil
}

func (d *deployer) buildEnvironment(ctx context.Context) error {
	layout := d.opts.Layout

	cmd, err := host.NewCommand(d.opts.Build, &engine.CommandData{
		Namespace: layout.Namespace,
		Package:   layout.Package,
		Version:   d.opts.Version,
		Executor:  d.opts.Executor,
		Dir:       d.host.Path(layout.CurrentDir()),
	})
	if err != nil {
		return err
	}

	cmd.Dir = layout.CurrentDir()
	cmd.Env = d.opts.BuildEnv

	return d.host.Run(ctx, cmd)
}
