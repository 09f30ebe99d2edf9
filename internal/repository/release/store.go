package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/google/uuid"
	"github.com/twpayne/go-vfs"

	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/logger"
)

const (
	dirMode os.FileMode = 0o755

	// tempLinkPrefix marks pointers that are being switched in.
	tempLinkPrefix = ".current-"
)

var errCurrentNotLink = errors.New("current is not a symlink")

// Filesystem is the part of a host the store works with.
type Filesystem interface {
	// FS is the host filesystem addressed with host paths.
	FS() vfs.FS
	// Path maps a host path to a path the tool can open directly.
	Path(p string) string
}

// Release describes one deployed version.
type Release struct {
	Version string
	Active  bool
}

// Store manages the release directories of one package on one host.
type Store struct {
	host   Filesystem
	fs     vfs.FS
	layout engine.Layout
}

// NewStore returns a store for layout on host.
func NewStore(host Filesystem, layout engine.Layout) *Store {
	return &Store{
		host:   host,
		fs:     host.FS(),
		layout: layout,
	}
}

// Exists reports whether version is already populated.
func (s *Store) Exists(version string) (bool, error) {
	if err := engine.ValidateVersion(version); err != nil {
		return false, err
	}

	entries, err := s.fs.ReadDir(s.layout.VersionDir(version))

	switch {
	case os.IsNotExist(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read %s: %w", s.layout.VersionDir(version), err)
	}

	return len(entries) > 0, nil
}

// Prepare creates the directory of version. It is idempotent for an empty
// directory and refuses a populated one with engine.ErrVersionExists.
func (s *Store) Prepare(version string) error {
	exists, err := s.Exists(version)
	if err != nil {
		return err
	}

	if exists {
		return fmt.Errorf("%s: %w", version, engine.ErrVersionExists)
	}

	if err = vfs.MkdirAll(s.fs, s.layout.VersionDir(version), dirMode); err != nil {
		return fmt.Errorf("create %s: %w", s.layout.VersionDir(version), err)
	}

	return nil
}

// Unpack extracts the archive at the host path archive into the directory of version.
func (s *Store) Unpack(ctx context.Context, archive, version string) error {
	if err := engine.ValidateVersion(version); err != nil {
		return err
	}

	logger.DebugKV(ctx, "Unpacking release", "archive", archive, "version", version)

	if err := extract(s.host.Path(s.layout.VersionDir(version)), s.host.Path(archive)); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrUnpack, err)
	}

	return nil
}

// Activate points current at version. The switch is a rename of a new
// symlink over the old one, so current never goes missing.
func (s *Store) Activate(ctx context.Context, version string) error {
	if err := engine.ValidateVersion(version); err != nil {
		return err
	}

	info, err := s.fs.Stat(s.layout.VersionDir(version))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%s: %w", version, engine.ErrVersionNotFound)
	}

	if err = s.ensureCurrentIsLink(); err != nil {
		return err
	}

	tmp := path.Join(s.layout.BaseDir(), tempLinkPrefix+uuid.NewString())

	// Relative target keeps the link valid wherever the host root is mounted.
	if err = s.fs.Symlink(version, tmp); err != nil {
		return fmt.Errorf("create pointer: %w", err)
	}

	if err = s.fs.Rename(tmp, s.layout.CurrentDir()); err != nil {
		_ = s.fs.Remove(tmp)

		return fmt.Errorf("switch current: %w", err)
	}

	logger.DebugKV(ctx, "Switched current release", "version", version)

	return nil
}

// Current returns the version current points at.
func (s *Store) Current() (string, error) {
	target, err := s.fs.Readlink(s.layout.CurrentDir())
	if err != nil {
		if os.IsNotExist(err) {
			return "", engine.ErrNoActiveRelease
		}

		return "", fmt.Errorf("read current: %w", err)
	}

	return path.Base(target), nil
}

// Releases lists deployed versions, oldest first, marking the active one.
func (s *Store) Releases() ([]Release, error) {
	entries, err := s.fs.ReadDir(s.layout.BaseDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read %s: %w", s.layout.BaseDir(), err)
	}

	current, err := s.Current()
	if err != nil && !errors.Is(err, engine.ErrNoActiveRelease) {
		return nil, err
	}

	versions := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || name == engine.CurrentLink || strings.HasPrefix(name, ".") {
			continue
		}

		versions = append(versions, name)
	}

	SortVersions(versions)

	out := make([]Release, 0, len(versions))
	for _, v := range versions {
		out = append(out, Release{Version: v, Active: v == current})
	}

	return out, nil
}

// SortVersions orders versions by semantic version when both sides parse,
// placing parseable versions before free-form ones and comparing the rest
// lexically.
func SortVersions(versions []string) {
	parsed := make(map[string]*semver.Version, len(versions))

	for _, v := range versions {
		if sv, err := semver.NewVersion(v); err == nil {
			parsed[v] = sv
		}
	}

	sort.SliceStable(versions, func(i, j int) bool {
		a, aok := parsed[versions[i]]
		b, bok := parsed[versions[j]]

		switch {
		case aok && bok:
			if a.Equal(b) {
				return versions[i] < versions[j]
			}

			return a.LessThan(b)
		case aok != bok:
			return aok
		default:
			return versions[i] < versions[j]
		}
	})
}

func (s *Store) ensureCurrentIsLink() error {
	info, err := s.fs.Lstat(s.layout.CurrentDir())

	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return fmt.Errorf("inspect current: %w", err)
	case info.Mode()&os.ModeSymlink == 0:
		return fmt.Errorf("%s: %w", s.layout.CurrentDir(), errCurrentNotLink)
	}

	return nil
}
