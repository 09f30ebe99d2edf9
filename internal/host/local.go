package host

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/twpayne/go-vfs"

	"github.com/oshokin/enginectl/internal/artifact"
	"github.com/oshokin/enginectl/internal/logger"
)

const (
	// DirMode is used for every directory created on a host.
	DirMode os.FileMode = 0o755
	// FileMode is used for logs, PID files and uploaded archives.
	FileMode os.FileMode = 0o644

	// stderrTail bounds how much command stderr is quoted in errors.
	stderrTail = 512
)

// Local is the machine the tool runs on, seen through a root directory.
type Local struct {
	name string
	root string
	fs   *vfs.PathFS
	exec Exec
}

// Option configures a Local host.
type Option func(*Local)

// WithExec replaces the command runner, typically with a FakeExec in tests.
func WithExec(e Exec) Option {
	return func(l *Local) {
		l.exec = e
	}
}

// NewLocal returns a host named name whose paths live under root,
// creating root when it does not exist yet.
func NewLocal(name, root string, opts ...Option) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root of %s: %w", name, err)
	}

	// PathFS resolves paths below the root but never creates the root itself.
	if err = os.MkdirAll(abs, DirMode); err != nil {
		return nil, fmt.Errorf("create root of %s: %w", name, err)
	}

	l := &Local{
		name: name,
		root: abs,
		fs:   vfs.NewPathFS(vfs.HostOSFS, abs),
		exec: DefaultExec,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Name returns the host name.
func (l *Local) Name() string {
	return l.name
}

// Root returns the directory host paths are resolved under.
func (l *Local) Root() string {
	return l.root
}

// FS returns the rooted host filesystem.
//
//nolint:ireturn // go-vfs is consumed through its interface.
func (l *Local) FS() vfs.FS {
	return l.fs
}

// Path maps a host path onto the local filesystem.
func (l *Local) Path(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(p))
}

// Run executes cmd with its working directory resolved on the host.
func (l *Local) Run(ctx context.Context, cmd *Command) error {
	c := *cmd
	if c.Dir != "" {
		c.Dir = l.Path(c.Dir)
	}

	var stdout, stderr bytes.Buffer

	c.Stdout = teeWriter(c.Stdout, &stdout)
	c.Stderr = teeWriter(c.Stderr, &stderr)

	logger.DebugKV(ctx, "Running command", "host", l.name, "command", c.String(), "dir", c.Dir)

	res := l.exec(ctx, &c)

	if stdout.Len() > 0 {
		logger.DebugKV(ctx, "Command output", "host", l.name, "stdout", stdout.String())
	}

	if res.Error != nil {
		return fmt.Errorf("run %q (exit status %d): %w%s",
			c.String(), res.ExitStatus, res.Error, formatTail(stderr.String()))
	}

	return nil
}

// Spawn starts cmd in the background without tying it to any context.
// Output files are truncated. The child is reaped by a goroutine so it
// never lingers as a zombie while the tool is still running.
func (l *Local) Spawn(cmd *Command, stdoutPath, stderrPath string) (int, error) {
	stdout, err := l.fs.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FileMode)
	if err != nil {
		return 0, fmt.Errorf("open stdout log: %w", err)
	}
	defer stdout.Close()

	stderr, err := l.fs.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FileMode)
	if err != nil {
		return 0, fmt.Errorf("open stderr log: %w", err)
	}
	defer stderr.Close()

	//nolint:gosec // The command line comes from the operator's configuration.
	proc := exec.Command(cmd.Name, cmd.Args...)
	proc.Stdout = stdout
	proc.Stderr = stderr
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if cmd.Dir != "" {
		proc.Dir = l.Path(cmd.Dir)
	}

	proc.Env = commandEnv(cmd.Env, proc.Dir)

	if err := proc.Start(); err != nil {
		return 0, fmt.Errorf("start %q: %w", cmd.String(), err)
	}

	go func() {
		_ = proc.Wait()
	}()

	return proc.Process.Pid, nil
}

// Upload copies localPath to remotePath through a checksum-verified atomic
// replace. A nil checksum is computed from the file itself. On failure the
// destination is left as it was.
func (l *Local) Upload(ctx context.Context, localPath, remotePath string, checksum []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Clean(localPath))
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}

	if checksum == nil {
		if checksum, err = artifact.Checksum(bytes.NewReader(data)); err != nil {
			return err
		}
	}

	if err = vfs.MkdirAll(l.fs, path.Dir(remotePath), DirMode); err != nil {
		return fmt.Errorf("create %s: %w", path.Dir(remotePath), err)
	}

	// go-update swaps files, so the target has to exist beforehand.
	created := false

	if _, err = l.fs.Stat(remotePath); os.IsNotExist(err) {
		if err = l.fs.WriteFile(remotePath, nil, FileMode); err != nil {
			return fmt.Errorf("create %s: %w", remotePath, err)
		}

		created = true
	}

	logger.DebugKV(ctx, "Applying upload", "host", l.name, "target", remotePath, "size", len(data))

	options := goupdate.Options{
		TargetPath: l.Path(remotePath),
		TargetMode: FileMode,
		Checksum:   checksum,
		Hash:       artifact.ChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		if created {
			_ = l.fs.Remove(remotePath)
		}

		return fmt.Errorf("apply %s: %w", remotePath, err)
	}

	return nil
}

func teeWriter(w io.Writer, buf *bytes.Buffer) io.Writer {
	if w == nil {
		return buf
	}

	return io.MultiWriter(w, buf)
}

func formatTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}

	return ": " + s
}
