// Package packager builds release archives of an engine project.
//
// The source tree is walked in lexical order and written as a gzip-compressed
// tarball into the staging directory, skipping excluded entries and anything
// that is neither a directory nor a regular file. A YAML manifest with the
// archive checksum is written next to it for the deployer to verify.
package packager
