// Package common holds helpers shared by the CLI commands.
//
// It detects the current system actor (hostname/username) for the history
// ledger and assembles the per-invocation environment: the loaded
// configuration, the targeted hosts and the opened history repository.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
