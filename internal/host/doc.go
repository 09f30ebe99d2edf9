// Package host abstracts a deployment target.
//
// A Host exposes its filesystem through go-vfs, runs commands to completion,
// spawns detached background processes and inspects the process table.
// Local is the only implementation: it operates on the machine the tool
// runs on, with every path resolved under a configurable root directory so
// several hosts can be simulated side by side.
package host
