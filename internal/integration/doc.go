// Package integration exercises packaging, deployment and supervision
// together against real processes and per-test host roots.
package integration
