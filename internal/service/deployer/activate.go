package deployer

import (
	"context"
	"errors"

	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/lock"
	"github.com/oshokin/enginectl/internal/logger"
	"github.com/oshokin/enginectl/internal/repository/release"
)

// Activate points current at an already deployed version of the package.
// The running engine is not restarted.
func Activate(ctx context.Context, h host.Host, layout engine.Layout, version string) (*Report, error) {
	ctx = logger.WithName(ctx, "deployer")
	ctx = logger.WithFields(ctx, "host", h.Name(), "package", layout.Package, "version", version)

	store := release.NewStore(h, layout)
	report := &Report{Host: h.Name(), Version: version}

	err := lock.With(h.Path(layout.LockFile()), func() error {
		previous, err := store.Current()
		if err != nil && !errors.Is(err, engine.ErrNoActiveRelease) {
			return err
		}

		report.Previous = previous

		return store.Activate(ctx, version)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Release activated", "previous", report.Previous)

	return report, nil
}

// Releases lists the versions deployed on h, oldest first.
func Releases(h host.Host, layout engine.Layout) ([]release.Release, error) {
	return release.NewStore(h, layout).Releases()
}
