package engine

import "time"

// Action names an operation recorded in the history ledger.
type Action string

// Recorded actions.
const (
	ActionProvision Action = "provision"
	ActionDeploy    Action = "deploy"
	ActionActivate  Action = "activate"
	ActionStart     Action = "start"
	ActionStop      Action = "stop"
	ActionStatus    Action = "status"
)

// Outcome is the result of a recorded operation.
type Outcome string

// Recorded outcomes.
const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// Event is one history ledger entry: an operation on one host.
type Event struct {
	ID        string
	Host      string
	Package   string
	Version   string
	Action    Action
	Outcome   Outcome
	Detail    string
	Actor     *Actor
	Timestamp time.Time
}
