package host

import (
	"errors"
	"fmt"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sys/unix"
)

// Processes lists the process table.
func (l *Local) Processes() ([]Process, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		out = append(out, Process{
			PID:        p.Pid(),
			PPID:       p.PPid(),
			Executable: p.Executable(),
		})
	}

	return out, nil
}

// Alive reports whether pid exists and has not exited. Zombies are dead.
func (l *Local) Alive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	p, err := ps.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("find process %d: %w", pid, err)
	}

	if p == nil {
		return false, nil
	}

	return !isZombie(pid), nil
}

// ProcessGroup returns the process group id of pid.
func (l *Local) ProcessGroup(pid int) (int, error) {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return 0, wrapSignalError(pid, err)
	}

	return pgid, nil
}

// OwnProcessGroup returns the process group of the running tool.
func (l *Local) OwnProcessGroup() int {
	return unix.Getpgrp()
}

// Signal delivers sig to pid.
func (l *Local) Signal(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("pid %d: %w", pid, ErrNoSuchProcess)
	}

	return wrapSignalError(pid, unix.Kill(pid, sig))
}

// SignalGroup delivers sig to the process group pgid.
func (l *Local) SignalGroup(pgid int, sig unix.Signal) error {
	if pgid <= 1 {
		return fmt.Errorf("process group %d: %w", pgid, ErrNoSuchProcess)
	}

	return wrapSignalError(-pgid, unix.Kill(-pgid, sig))
}

func wrapSignalError(pid int, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("pid %d: %w", pid, ErrNoSuchProcess)
	default:
		return fmt.Errorf("pid %d: %w", pid, err)
	}
}
