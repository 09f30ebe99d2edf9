// Package supervisor starts, stops and inspects the engine process of a host.
//
// The top-level engine pid is kept in a PID file. Liveness is always checked
// against the process table, so a PID file left behind by a crashed engine is
// reported as stale instead of running. The engine is launched in its own
// process group; Stop either signals that group together with every
// descendant, or only the top-level process and its direct children.
package supervisor
