package supervisor

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/oshokin/enginectl/internal/config"
	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/host"
	"github.com/oshokin/enginectl/internal/lock"
	"github.com/oshokin/enginectl/internal/repository/release"
)

const (
	waitFor = 10 * time.Second
	tick    = 20 * time.Millisecond
)

var testLayout = engine.NewLayout("marvin", "iris")

// treeScript starts a chain of shells, one per level up to depth. Each level
// records its pid and, when terminated, leaves a marker file behind.
const treeScript = `level=$1; depth=$2; marks=$3
trap 'echo TERM > "$marks/level$level"; exit 0' TERM
if [ "$level" -lt "$depth" ]; then sh "$0" $((level + 1)) "$depth" "$marks" & fi
echo $$ > "$marks/pid$level"
while :; do sleep 0.05; done
`

func newHostWithRelease(t *testing.T) *host.Local {
	t.Helper()

	h, err := host.NewLocal("web-1", t.TempDir())
	require.NoError(t, err)

	store := release.NewStore(h, testLayout)
	require.NoError(t, store.Prepare("1.0.0"))
	require.NoError(t, store.Activate(context.Background(), "1.0.0"))

	return h
}

func newSupervisor(h host.Host, launch []string, scope string) *Supervisor {
	return New(h, &Options{
		Layout:    testLayout,
		Launch:    launch,
		Env:       map[string]string{"ENGINE_ENV": "test"},
		Executor:  "/opt/marvin/engine-executor/engine-executor.jar",
		StopScope: scope,
	})
}

func waitDead(t *testing.T, h host.ProcessTable, pid int) {
	t.Helper()

	require.Eventually(t, func() bool {
		alive, err := h.Alive(pid)
		return err == nil && !alive
	}, waitFor, tick)
}

func pidFileExists(h *host.Local) bool {
	_, err := os.Stat(h.Path(testLayout.PIDFile()))
	return err == nil
}

// TestStartStatusStop walks an instance through its lifecycle.
func TestStartStatusStop(t *testing.T) {
	t.Parallel()

	h := newHostWithRelease(t)
	s := newSupervisor(h, []string{
		"sh", "-c", "echo {{.Host}}:{{.Port}} {{.Package}} {{.Version}} $ENGINE_ENV; pwd; exec sleep 30",
	}, config.StopScopeTree)
	ctx := context.Background()

	report, err := s.Start(ctx, StartRequest{BindHost: "127.0.0.1", Port: 8000})
	require.NoError(t, err)
	require.Equal(t, engine.StateStarting, report.State)
	require.Equal(t, "1.0.0", report.Version)
	require.Positive(t, report.PID)

	pidContents, err := os.ReadFile(h.Path(testLayout.PIDFile()))
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(report.PID)+"\n", string(pidContents))

	status, err := s.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.StateRunning, status.State)
	require.Equal(t, report.PID, status.PID)
	require.NoError(t, status.Condition)
	require.Contains(t, status.String(), "running (pid "+strconv.Itoa(report.PID)+", release 1.0.0)")

	require.Eventually(t, func() bool {
		out, _ := os.ReadFile(h.Path(testLayout.StdoutLog()))
		return strings.HasPrefix(string(out), "127.0.0.1:8000 iris 1.0.0 test\n")
	}, waitFor, tick)

	// The engine runs from the release the current pointer names.
	out, err := os.ReadFile(h.Path(testLayout.StdoutLog()))
	require.NoError(t, err)
	require.Contains(t, string(out), testLayout.CurrentDir())

	stopped, err := s.Stop(ctx)
	require.NoError(t, err)
	require.NoError(t, stopped.Condition)
	require.Equal(t, engine.StateStopped, stopped.State)
	require.Contains(t, stopped.Signaled, report.PID)
	require.False(t, pidFileExists(h))

	waitDead(t, h, report.PID)

	status, err = s.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.StateStopped, status.State)
	require.NoError(t, status.Condition)
	require.Equal(t, "not running", status.String())
}

// TestStartRunningInstance refuses a second start and restarts on force.
func TestStartRunningInstance(t *testing.T) {
	t.Parallel()

	h := newHostWithRelease(t)
	s := newSupervisor(h, []string{"sh", "-c", "exec sleep 30"}, config.StopScopeTree)
	ctx := context.Background()

	first, err := s.Start(ctx, StartRequest{BindHost: "0.0.0.0", Port: 8000})
	require.NoError(t, err)

	_, err = s.Start(ctx, StartRequest{BindHost: "0.0.0.0", Port: 8000})
	require.ErrorIs(t, err, engine.ErrAlreadyRunning)

	status, err := s.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, first.PID, status.PID)

	second, err := s.Start(ctx, StartRequest{BindHost: "0.0.0.0", Port: 8000, Force: true})
	require.NoError(t, err)
	require.NotEqual(t, first.PID, second.PID)

	alive, err := h.Alive(first.PID)
	require.NoError(t, err)
	require.False(t, alive)

	_, err = s.Stop(ctx)
	require.NoError(t, err)
	waitDead(t, h, second.PID)
}

// TestExitedInstanceIsStale reports an engine that died on its own.
func TestExitedInstanceIsStale(t *testing.T) {
	t.Parallel()

	h := newHostWithRelease(t)
	s := newSupervisor(h, []string{"sh", "-c", "exit 0"}, config.StopScopeTree)
	ctx := context.Background()

	report, err := s.Start(ctx, StartRequest{BindHost: "0.0.0.0", Port: 8000})
	require.NoError(t, err)

	waitDead(t, h, report.PID)

	status, err := s.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.StateStoppedDirty, status.State)
	require.ErrorIs(t, status.Condition, engine.ErrStaleState)
	require.True(t, status.StaleRemoved)
	require.Equal(t, "not running (stale pid file removed)", status.String())
	require.False(t, pidFileExists(h))

	status, err = s.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.StateStopped, status.State)

	// A dead instance does not block a new start.
	report, err = s.Start(ctx, StartRequest{BindHost: "0.0.0.0", Port: 8000})
	require.NoError(t, err)
	waitDead(t, h, report.PID)
}

// TestStopWithoutPidFile is informational, not a failure.
func TestStopWithoutPidFile(t *testing.T) {
	t.Parallel()

	h := newHostWithRelease(t)
	s := newSupervisor(h, []string{"true"}, config.StopScopeTree)

	report, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, report.Condition, engine.ErrStopTargetMissing)
	require.Empty(t, report.Signaled)
}

// TestStopStalePidFile removes the file without signalling anything.
func TestStopStalePidFile(t *testing.T) {
	t.Parallel()

	h := newHostWithRelease(t)
	s := newSupervisor(h, []string{"true"}, config.StopScopeTree)

	require.NoError(t, os.MkdirAll(h.Path(testLayout.RunDir()), host.DirMode))
	require.NoError(t, os.WriteFile(h.Path(testLayout.PIDFile()), []byte(strconv.Itoa(math.MaxInt32)), 0o644))

	report, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, report.Condition, engine.ErrStaleState)
	require.True(t, report.StaleRemoved)
	require.Empty(t, report.Signaled)
	require.False(t, pidFileExists(h))

	// Garbage in the pid file counts as stale as well.
	require.NoError(t, os.WriteFile(h.Path(testLayout.PIDFile()), []byte("garbage"), 0o644))

	report, err = s.Stop(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, report.Condition, engine.ErrStaleState)
	require.False(t, pidFileExists(h))
}

// TestStatusKeepsStaleFileWhileLocked leaves cleanup to the lock holder.
func TestStatusKeepsStaleFileWhileLocked(t *testing.T) {
	t.Parallel()

	h := newHostWithRelease(t)
	s := newSupervisor(h, []string{"true"}, config.StopScopeTree)

	require.NoError(t, os.MkdirAll(h.Path(testLayout.RunDir()), host.DirMode))
	require.NoError(t, os.WriteFile(h.Path(testLayout.PIDFile()), []byte(strconv.Itoa(math.MaxInt32)), 0o644))

	held, err := lock.Acquire(h.Path(testLayout.LockFile()))
	require.NoError(t, err)

	status, err := s.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, engine.StateStoppedDirty, status.State)
	require.False(t, status.StaleRemoved)
	require.True(t, pidFileExists(h))

	_, err = s.Start(context.Background(), StartRequest{BindHost: "0.0.0.0", Port: 1})
	require.ErrorIs(t, err, engine.ErrLocked)

	_, err = s.Stop(context.Background())
	require.ErrorIs(t, err, engine.ErrLocked)

	require.NoError(t, held.Release())
}

// TestBrokenCurrentPointer keeps status and stop usable when current is not
// a symlink.
func TestBrokenCurrentPointer(t *testing.T) {
	t.Parallel()

	h := newHostWithRelease(t)
	s := newSupervisor(h, []string{"true"}, config.StopScopeTree)

	current := h.Path(testLayout.CurrentDir())
	require.NoError(t, os.Remove(current))
	require.NoError(t, os.MkdirAll(current, host.DirMode))

	status, err := s.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, engine.StateStopped, status.State)
	require.Empty(t, status.Version)
	require.Equal(t, "not running", status.String())

	report, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, report.Condition, engine.ErrStopTargetMissing)
}

var errProcessTable = errors.New("process table unavailable")

// unreadableTable is a host whose process table cannot be listed.
type unreadableTable struct {
	*host.Local
}

func (unreadableTable) Processes() ([]host.Process, error) {
	return nil, errProcessTable
}

// TestStopRemovesPidFileOnSignalFailure drops the PID file even when the
// engine could not be signalled.
func TestStopRemovesPidFileOnSignalFailure(t *testing.T) {
	t.Parallel()

	h := newHostWithRelease(t)
	ctx := context.Background()

	report, err := newSupervisor(h, []string{"sleep", "30"}, config.StopScopeTree).
		Start(ctx, StartRequest{BindHost: "127.0.0.1", Port: 8000})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = unix.Kill(-report.PID, unix.SIGKILL)
	})

	_, err = newSupervisor(unreadableTable{Local: h}, []string{"true"}, config.StopScopeTree).Stop(ctx)
	require.ErrorIs(t, err, errProcessTable)
	require.False(t, pidFileExists(h))
}

// TestStartWithoutRelease needs an active release.
func TestStartWithoutRelease(t *testing.T) {
	t.Parallel()

	h, err := host.NewLocal("web-1", t.TempDir())
	require.NoError(t, err)

	s := newSupervisor(h, []string{"true"}, config.StopScopeTree)

	_, err = s.Start(context.Background(), StartRequest{BindHost: "0.0.0.0", Port: 8000})
	require.ErrorIs(t, err, engine.ErrNoActiveRelease)
	require.False(t, pidFileExists(h))
}

// startTree launches a three level process chain and waits for all levels.
func startTree(t *testing.T, scope string) (*host.Local, *Supervisor, string) {
	t.Helper()

	h := newHostWithRelease(t)
	marks := t.TempDir()
	script := filepath.Join(t.TempDir(), "tree.sh")
	require.NoError(t, os.WriteFile(script, []byte(treeScript), 0o755))

	s := newSupervisor(h, []string{"sh", script, "1", "3", marks}, scope)

	_, err := s.Start(context.Background(), StartRequest{BindHost: "0.0.0.0", Port: 8000})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for level := 1; level <= 3; level++ {
			if _, err := os.Stat(filepath.Join(marks, "pid"+strconv.Itoa(level))); err != nil {
				return false
			}
		}

		return true
	}, waitFor, tick)

	t.Cleanup(func() {
		for level := 1; level <= 3; level++ {
			if pid, err := readPid(filepath.Join(marks, "pid"+strconv.Itoa(level))); err == nil {
				_ = unix.Kill(pid, unix.SIGKILL)
			}
		}
	})

	return h, s, marks
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func marked(marks string, level int) bool {
	_, err := os.Stat(filepath.Join(marks, "level"+strconv.Itoa(level)))
	return err == nil
}

// TestStopChildrenScope signals the top process and its children only.
func TestStopChildrenScope(t *testing.T) {
	t.Parallel()

	h, s, marks := startTree(t, config.StopScopeChildren)

	report, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.False(t, pidFileExists(h))

	pid2, err := readPid(filepath.Join(marks, "pid2"))
	require.NoError(t, err)
	require.Contains(t, report.Signaled, pid2)

	require.Eventually(t, func() bool {
		return marked(marks, 1) && marked(marks, 2)
	}, waitFor, tick)

	// The grandchild was never targeted.
	time.Sleep(300 * time.Millisecond)
	require.False(t, marked(marks, 3))

	pid3, err := readPid(filepath.Join(marks, "pid3"))
	require.NoError(t, err)
	require.NotContains(t, report.Signaled, pid3)

	alive, err := h.Alive(pid3)
	require.NoError(t, err)
	require.True(t, alive)
}

// TestStopTreeScope reaches every level of the process tree.
func TestStopTreeScope(t *testing.T) {
	t.Parallel()

	h, s, marks := startTree(t, config.StopScopeTree)

	report, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.False(t, pidFileExists(h))

	pid3, err := readPid(filepath.Join(marks, "pid3"))
	require.NoError(t, err)
	require.Contains(t, report.Signaled, pid3)

	require.Eventually(t, func() bool {
		return marked(marks, 1) && marked(marks, 2) && marked(marks, 3)
	}, waitFor, tick)

	waitDead(t, h, pid3)
}

// TestDescendants walks a synthetic process table.
func TestDescendants(t *testing.T) {
	t.Parallel()

	procs := []host.Process{
		{PID: 1, PPID: 0},
		{PID: 10, PPID: 1},
		{PID: 11, PPID: 10},
		{PID: 13, PPID: 10},
		{PID: 12, PPID: 11},
		{PID: 20, PPID: 1},
		{PID: 21, PPID: 12},
	}

	require.Equal(t, []int{11, 13}, children(procs, 10))
	require.Equal(t, []int{11, 13, 12, 21}, descendants(procs, 10))
	require.Empty(t, descendants(procs, 20))
}

// TestReportString covers operator-facing messages.
func TestReportString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "started (pid 7, release 2.0.0)",
		(&Report{State: engine.StateStarting, PID: 7, Version: "2.0.0"}).String())
	require.Equal(t, "not running (stopped pids 7, 8)",
		(&Report{State: engine.StateStopped, Signaled: []int{7, 8}}).String())
	require.Equal(t, "not running: "+engine.ErrStopTargetMissing.Error(),
		(&Report{State: engine.StateStopped, Condition: engine.ErrStopTargetMissing}).String())
	require.Equal(t, "not running (stale pid file removed)",
		(&Report{State: engine.StateStoppedDirty, Condition: engine.ErrStaleState, StaleRemoved: true}).String())
}
