package host

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// FakeInput identifies an expected command.
type FakeInput struct {
	Name string
	Args string
}

// FakeOutput is what a fake command writes and returns.
type FakeOutput struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// NewFakeInput builds the lookup key for a command.
func NewFakeInput(name string, args []string) FakeInput {
	return FakeInput{
		Name: name,
		Args: strings.Join(args, ","),
	}
}

// FakeExec is an Exec that answers from a table and remembers every call.
type FakeExec struct {
	mu           sync.Mutex
	expectations map[FakeInput]FakeOutput
	calls        []*Command
}

// NewFake returns a FakeExec answering with expectations.
func NewFake(expectations map[FakeInput]FakeOutput) *FakeExec {
	return &FakeExec{expectations: expectations}
}

// Exec implements the Exec signature.
func (f *FakeExec) Exec(_ context.Context, cmd *Command) Result {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	output, ok := f.expectations[NewFakeInput(cmd.Name, cmd.Args)]
	if !ok {
		return Result{ExitStatus: 1, Error: fmt.Errorf("unexpected input: %s", cmd)}
	}

	if err := writeAll(cmd.Stdout, output.Stdout); err != nil {
		return Result{ExitStatus: 1, Error: err}
	}

	if err := writeAll(cmd.Stderr, output.Stderr); err != nil {
		return Result{ExitStatus: 1, Error: err}
	}

	if output.ExitStatus != 0 {
		return Result{ExitStatus: output.ExitStatus, Error: fmt.Errorf("exit status %d", output.ExitStatus)}
	}

	return Result{}
}

// Calls returns the commands executed so far.
func (f *FakeExec) Calls() []*Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*Command(nil), f.calls...)
}

func writeAll(w io.Writer, s string) error {
	if w == nil || s == "" {
		return nil
	}

	_, err := io.WriteString(w, s)

	return err
}
