package version

import (
	"fmt"

	"github.com/Masterminds/semver"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("enginectl version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// Semver parses the build version; ldflags may inject a value that is not semver.
func Semver() (*semver.Version, error) {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("parse build version %q: %w", Version, err)
	}

	return v, nil
}
