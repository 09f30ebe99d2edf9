package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields, defaults and rejected values.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing package.
	require.ErrorIs(t, Validate(new(Config)), errPackageRequired)

	// Package must be a single path component.
	require.ErrorIs(t, Validate(&Config{Package: "a/b"}), errInvalidName)

	// Defaults are filled in.
	cfg := &Config{Package: "iris"}
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultNamespace, cfg.Namespace)
	require.Equal(t, ".", cfg.SourceDir)
	require.Equal(t, DefaultStagingDir, cfg.StagingDir)
	require.Equal(t, []Host{{Name: DefaultHostName, Root: DefaultHostRoot}}, cfg.Hosts)
	require.Equal(t, 1, cfg.Parallelism)
	require.Equal(t, StopScopeTree, cfg.StopScope)
	require.Equal(t, filepath.Join(DefaultStagingDir, DefaultHistoryFilename), cfg.HistoryFile)
	require.Equal(t, "/opt/marvin/engine-executor/engine-executor.jar", cfg.Executor)
	require.Contains(t, cfg.Exclude, ".vagrant")
	require.NotEmpty(t, cfg.Launch.Command)
	require.NotEmpty(t, cfg.Build)
	require.Len(t, cfg.Provision, len(DefaultProvisionSteps()))

	// Bad stop scope.
	require.ErrorIs(t, Validate(&Config{Package: "iris", StopScope: "group"}), errInvalidStopScope)

	// Duplicate hosts.
	cfg = &Config{
		Package: "iris",
		Hosts:   []Host{{Name: "a"}, {Name: "a"}},
	}
	require.ErrorIs(t, Validate(cfg), errDuplicateHost)

	// Incomplete provisioning step.
	cfg = &Config{Package: "iris", Provision: []Step{{Name: "x"}}}
	require.ErrorIs(t, Validate(cfg), errInvalidStep)

	// Unknown log level.
	require.ErrorIs(t, Validate(&Config{Package: "iris", LogLevel: "loud"}), errUnknownLogLevel)

	// An explicitly empty step list disables provisioning steps.
	cfg = &Config{Package: "iris", Provision: []Step{}}
	require.NoError(t, Validate(cfg))
	require.Empty(t, cfg.Provision)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "enginectl.yaml")

	cfg := &Config{
		Package:     "iris",
		Namespace:   "acme",
		Hosts:       []Host{{Name: "web-1", Root: "/srv/web-1"}, {Name: "web-2"}},
		Parallelism: 2,
		StopScope:   StopScopeChildren,
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Package, loaded.Package)
	require.Equal(t, cfg.Namespace, loaded.Namespace)
	require.Equal(t, []string{"web-1", "web-2"}, loaded.HostNames())
	require.Equal(t, DefaultHostRoot, loaded.Hosts[1].Root)
	require.Equal(t, StopScopeChildren, loaded.StopScope)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())
}

// TestLoadMissingFile ensures a missing file is reported.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
