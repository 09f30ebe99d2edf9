package host

import (
	"context"
	"errors"

	"github.com/twpayne/go-vfs"
	"golang.org/x/sys/unix"
)

// SIGTERM is the signal used to ask engine processes to exit.
const SIGTERM = unix.SIGTERM

var (
	// ErrNoSuchProcess is returned when signalling a process that is gone.
	ErrNoSuchProcess = errors.New("no such process")

	errEmptyCommand = errors.New("command is empty")
)

// Host is a deployment target.
type Host interface {
	ProcessTable

	// Name identifies the host in reports.
	Name() string
	// FS is the host filesystem. Paths are absolute host paths.
	FS() vfs.FS
	// Path maps a host path to a path usable by the tool itself.
	Path(p string) string
	// Run executes cmd to completion. A non-zero exit is an error.
	Run(ctx context.Context, cmd *Command) error
	// Spawn starts cmd detached in its own process group with output
	// redirected into the given host files, and returns its pid.
	Spawn(cmd *Command, stdoutPath, stderrPath string) (int, error)
	// Upload copies a local file to remotePath, verifying its checksum.
	Upload(ctx context.Context, localPath, remotePath string, checksum []byte) error
}

// Process is one entry of the host process table.
type Process struct {
	PID        int
	PPID       int
	Executable string
}

// ProcessTable inspects and signals host processes.
type ProcessTable interface {
	// Processes lists every process on the host.
	Processes() ([]Process, error)
	// Alive reports whether pid names a live, non-zombie process.
	Alive(pid int) (bool, error)
	// ProcessGroup returns the process group id of pid.
	ProcessGroup(pid int) (int, error)
	// OwnProcessGroup returns the process group of the tool itself.
	OwnProcessGroup() int
	// Signal delivers sig to pid.
	Signal(pid int, sig unix.Signal) error
	// SignalGroup delivers sig to every member of process group pgid.
	SignalGroup(pgid int, sig unix.Signal) error
}
