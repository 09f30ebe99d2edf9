package engine

import (
	"fmt"
	"path"
	"strings"
)

// CurrentLink is the name of the pointer to the active release.
const CurrentLink = "current"

// Layout computes the on-host paths of one engine package.
// All paths are absolute, slash-separated and relative to the host root.
type Layout struct {
	Namespace string
	Package   string
}

// NewLayout returns the layout for pkg under namespace ns.
func NewLayout(ns, pkg string) Layout {
	return Layout{Namespace: ns, Package: pkg}
}

// EnginesDir is the parent of every package's release store.
func (l Layout) EnginesDir() string {
	return path.Join("/opt", l.Namespace, "engines")
}

// LogDir holds stdout and stderr captures.
func (l Layout) LogDir() string {
	return path.Join("/var/log", l.Namespace, "engines")
}

// RunDir holds PID and lock files.
func (l Layout) RunDir() string {
	return path.Join("/var/run", l.Namespace, "engines")
}

// BaseDir is the release store of the package.
func (l Layout) BaseDir() string {
	return path.Join(l.EnginesDir(), l.Package)
}

// VersionDir is the directory a release version is unpacked into.
func (l Layout) VersionDir(version string) string {
	return path.Join(l.BaseDir(), version)
}

// CurrentDir is the pointer to the active release.
func (l Layout) CurrentDir() string {
	return path.Join(l.BaseDir(), CurrentLink)
}

// StdoutLog receives the engine's standard output.
func (l Layout) StdoutLog() string {
	return path.Join(l.LogDir(), l.Package+".out")
}

// StderrLog receives the engine's standard error.
func (l Layout) StderrLog() string {
	return path.Join(l.LogDir(), l.Package+".err")
}

// PIDFile stores the pid of the top-level engine process.
func (l Layout) PIDFile() string {
	return path.Join(l.RunDir(), l.Package+".pid")
}

// LockFile serializes mutating operations on the package.
func (l Layout) LockFile() string {
	return path.Join(l.RunDir(), l.Package+".lock")
}

// ArchiveName is the file name of a packaged release.
func (l Layout) ArchiveName(version string) string {
	return fmt.Sprintf("%s-%s.tar.gz", l.Package, version)
}

// ManifestName is the file name of the checksum manifest next to an archive.
func (l Layout) ManifestName(version string) string {
	return fmt.Sprintf("%s-%s.yaml", l.Package, version)
}

// UploadPath is where a release archive lands on the host before unpacking.
func (l Layout) UploadPath(version string) string {
	return path.Join("/tmp", l.ArchiveName(version))
}

// ValidateVersion checks that version can be used as a single directory name
// next to the current pointer.
func ValidateVersion(version string) error {
	switch {
	case version == "":
		return fmt.Errorf("%w: empty", ErrInvalidVersion)
	case version == "." || version == "..":
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	case version == CurrentLink:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidVersion, version)
	case strings.HasPrefix(version, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidVersion, version)
	case strings.ContainsAny(version, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidVersion, version)
	}

	return nil
}

// CommandData is what command templates are rendered with.
type CommandData struct {
	Namespace string
	Package   string
	Version   string
	Executor  string
	// Host and Port are the bind address of a started engine.
	Host string
	Port int
	// Dir is the active release directory as seen by the tool.
	Dir string
}
