// Package history keeps a ledger of engine operations in SQLite.
//
// Every deploy, activate, start, stop, status and provision run against a
// host is recorded with its outcome and the operator who ran it, so the
// release timeline of a fleet can be reconstructed afterwards.
package history
