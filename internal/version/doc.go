// Package version exposes build metadata of enginectl.
//
// Version, Commit and BuildTime are injected at build time via Go ldflags
// and default to placeholder values for local builds. The version is also
// stamped into every package manifest the tool writes.
package version
