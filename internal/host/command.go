package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"text/template"
	"time"

	"golang.org/x/sys/unix"
)

// Command is a process invocation on a host.
type Command struct {
	Name           string
	Args           []string
	Stdout, Stderr io.Writer
	Stdin          io.Reader
	// Env is added on top of the tool's own environment.
	Env map[string]string
	// Dir is the working directory of this command, as a host path.
	Dir string
}

// Result is the outcome of a finished command.
type Result struct {
	ExitStatus int
	Error      error
}

// Exec runs a command to completion.
type Exec func(ctx context.Context, cmd *Command) Result

// waitDelay bounds how long a cancelled command may keep its pipes open.
const waitDelay = 5 * time.Second

// DefaultExec runs cmd with os/exec in its own process group. Cancelling ctx
// terminates the whole group so shell pipelines do not outlive the command.
func DefaultExec(ctx context.Context, c *Command) Result {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = commandEnv(c.Env, c.Dir)
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = waitDelay
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitStatus: 1, Error: err}
	}

	if err := cmd.Wait(); err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return Result{ExitStatus: exitError.ExitCode(), Error: exitError}
		}

		return Result{ExitStatus: 1, Error: err}
	}

	return Result{ExitStatus: 0, Error: nil}
}

// String renders the command line for logs.
func (c *Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// RenderArgs expands text/template placeholders in every element of argv.
// Unknown keys are an error rather than an empty string.
func RenderArgs(argv []string, data any) ([]string, error) {
	out := make([]string, 0, len(argv))

	for i, arg := range argv {
		tpl, err := template.New(fmt.Sprintf("arg%d", i)).Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("parse argument %d: %w", i, err)
		}

		var buf bytes.Buffer
		if err := tpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render argument %d: %w", i, err)
		}

		out = append(out, buf.String())
	}

	return out, nil
}

// NewCommand renders argv with data and builds a command from it.
func NewCommand(argv []string, data any) (*Command, error) {
	if len(argv) == 0 {
		return nil, errEmptyCommand
	}

	rendered, err := RenderArgs(argv, data)
	if err != nil {
		return nil, err
	}

	return &Command{Name: rendered[0], Args: rendered[1:]}, nil
}

// commandEnv is the tool environment plus extra. PWD follows dir so that
// shells report the logical path, e.g. .../current rather than the version
// directory it resolves to.
func commandEnv(extra map[string]string, dir string) []string {
	env := mergeEnv(os.Environ(), extra)
	if dir != "" {
		env = append(env, "PWD="+dir)
	}

	return env
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(extra))
	env = append(env, base...)

	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}

	return env
}
