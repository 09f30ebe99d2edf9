package engine

import "fmt"

// Actor identifies who performed an operation.
type Actor struct {
	// Hostname is the machine the operator ran the tool on.
	Hostname string
	// Username is the system user who ran the tool.
	Username string
}

// String renders the actor as user@host.
func (a *Actor) String() string {
	if a == nil {
		return ""
	}

	return fmt.Sprintf("%s@%s", a.Username, a.Hostname)
}

// Clone returns a copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}
