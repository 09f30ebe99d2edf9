package engine

import "errors"

// Error kinds. Services wrap them together with the underlying cause, so
// callers match with errors.Is and still see the original failure.
var (
	// ErrInvalidVersion is returned for a release version unusable as a directory name.
	ErrInvalidVersion = errors.New("invalid release version")
	// ErrPackaging is returned when the release archive cannot be built.
	ErrPackaging = errors.New("packaging failed")
	// ErrTransfer is returned when the archive cannot be delivered to a host.
	ErrTransfer = errors.New("transfer failed")
	// ErrUnpack is returned when the archive cannot be extracted into its version directory.
	ErrUnpack = errors.New("unpack failed")
	// ErrEnvironmentBuild is returned when the environment build command fails.
	ErrEnvironmentBuild = errors.New("environment build failed")
	// ErrVersionExists is returned when a version directory is already populated.
	ErrVersionExists = errors.New("release version already deployed")
	// ErrVersionNotFound is returned when activating a version that was never deployed.
	ErrVersionNotFound = errors.New("release version not deployed")
	// ErrNoActiveRelease is returned when no current release is installed.
	ErrNoActiveRelease = errors.New("no active release")
	// ErrAlreadyRunning is returned when starting an instance that is alive.
	ErrAlreadyRunning = errors.New("engine already running")
	// ErrLocked is returned when another operation holds the host lock.
	ErrLocked = errors.New("another operation is in progress")
	// ErrStopTargetMissing reports a stop without a PID file. It is informational.
	ErrStopTargetMissing = errors.New("no pid file, nothing to stop")
	// ErrStaleState reports a PID file whose process is gone. It is informational.
	ErrStaleState = errors.New("stale pid file")
)

// IsSoft reports whether err is an informational condition rather than a failure.
func IsSoft(err error) bool {
	return errors.Is(err, ErrStopTargetMissing) || errors.Is(err, ErrStaleState)
}
