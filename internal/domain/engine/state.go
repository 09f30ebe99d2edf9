package engine

// State is the observed lifecycle state of an engine instance.
type State int

const (
	// StateStopped means no PID file exists.
	StateStopped State = iota
	// StateStarting means the process was spawned but the PID file is not written yet.
	StateStarting
	// StateRunning means the PID file names a live process.
	StateRunning
	// StateStoppedDirty means the PID file names a process that no longer exists.
	StateStoppedDirty
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStoppedDirty:
		return "stopped-dirty"
	default:
		return "unknown"
	}
}

// Alive reports whether the state has a live process behind it.
func (s State) Alive() bool {
	return s == StateRunning || s == StateStarting
}
