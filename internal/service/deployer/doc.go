// Package deployer installs release archives on hosts.
//
// A deploy transfers the archive, unpacks it into a fresh version directory,
// switches the current pointer and builds the runtime environment inside the
// new release. Any failure aborts the remaining steps and nothing is rolled
// back; Activate repoints current at an earlier release instead.
package deployer
