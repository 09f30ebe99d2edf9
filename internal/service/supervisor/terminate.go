package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/oshokin/enginectl/internal/config"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/logger"
)

// terminate sends SIGTERM to the processes selected by the stop scope and
// returns their pids. Processes that vanish in the meantime are ignored.
func (s *Supervisor) terminate(ctx context.Context, pid int) ([]int, error) {
	procs, err := s.host.Processes()
	if err != nil {
		return nil, err
	}

	if s.stopScope() == config.StopScopeChildren {
		targets := append([]int{pid}, children(procs, pid)...)

		return targets, s.signalEach(ctx, targets)
	}

	descendants := descendants(procs, pid)
	targets := append([]int{pid}, descendants...)

	pgid, err := s.host.ProcessGroup(pid)
	if err != nil && !errors.Is(err, host.ErrNoSuchProcess) {
		return nil, err
	}

	// Only a group the engine leads is signalled as a whole; a shared group
	// could contain the tool itself.
	if err == nil && pgid == pid && pgid != s.host.OwnProcessGroup() {
		logger.DebugKV(ctx, "Signalling process group", "pgid", pgid)

		if err = ignoreGone(s.host.SignalGroup(pgid, host.SIGTERM)); err != nil {
			return nil, err
		}

		// Descendants that left the group still need their own signal.
		return targets, s.signalEach(ctx, outsideGroup(s.host, descendants, pgid))
	}

	return targets, s.signalEach(ctx, targets)
}

func (s *Supervisor) signalEach(ctx context.Context, pids []int) error {
	for _, pid := range pids {
		logger.DebugKV(ctx, "Signalling process", "pid", pid)

		if err := ignoreGone(s.host.Signal(pid, host.SIGTERM)); err != nil {
			return fmt.Errorf("terminate: %w", err)
		}
	}

	return nil
}

// children returns the direct children of pid, sorted.
func children(procs []host.Process, pid int) []int {
	var out []int

	for _, p := range procs {
		if p.PPID == pid && p.PID != pid {
			out = append(out, p.PID)
		}
	}

	sort.Ints(out)

	return out
}

// descendants returns every process below pid, breadth first.
func descendants(procs []host.Process, pid int) []int {
	byParent := make(map[int][]int, len(procs))
	for _, p := range procs {
		if p.PID != p.PPID {
			byParent[p.PPID] = append(byParent[p.PPID], p.PID)
		}
	}

	for _, kids := range byParent {
		sort.Ints(kids)
	}

	var (
		out   []int
		queue = []int{pid}
		seen  = map[int]struct{}{pid: {}}
	)

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		for _, child := range byParent[next] {
			if _, ok := seen[child]; ok {
				continue
			}

			seen[child] = struct{}{}
			out = append(out, child)
			queue = append(queue, child)
		}
	}

	return out
}

func outsideGroup(table host.ProcessTable, pids []int, pgid int) []int {
	var out []int

	for _, pid := range pids {
		if g, err := table.ProcessGroup(pid); err == nil && g != pgid {
			out = append(out, pid)
		}
	}

	return out
}

func ignoreGone(err error) error {
	if errors.Is(err, host.ErrNoSuchProcess) {
		return nil
	}

	return err
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}

	return strings.Join(parts, ", ")
}
