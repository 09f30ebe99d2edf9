// Package release implements the per-host release store of an engine package.
//
// Every release version is unpacked into its own directory under the package
// base directory and is never modified afterwards. A single "current"
// symlink names the active version and is switched by renaming a freshly
// created temporary link over it, so readers always see either the old or
// the new release.
package release
