// Package artifact describes packaged engine releases.
//
// A release archive travels with a YAML Manifest holding its SHA-512
// checksum. The checksum is verified when the archive is applied on a host.
package artifact
