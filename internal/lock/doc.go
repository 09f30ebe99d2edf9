// Package lock provides exclusive advisory file locks.
//
// Locks are taken with flock(2) without waiting: a held lock fails fast with
// engine.ErrLocked. The kernel drops the lock when the holder exits, so a
// crashed run never leaves a stale lock behind.
package lock
