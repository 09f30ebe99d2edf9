// Package engine contains the core domain types of engine deployment.
//
// It defines the on-host Layout of releases, logs and PID files, release
// version validation, instance states, the operator Actor and the history
// Event, together with the error kinds every service reports.
package engine
