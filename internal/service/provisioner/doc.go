// Package provisioner prepares hosts to run engines.
//
// Provisioning is a fixed sequence of named steps: the built-in
// prepare_directories step creates the engine, log and run directories, and
// the configured steps run as shell commands on the host. The first failing
// step aborts the sequence.
package provisioner
