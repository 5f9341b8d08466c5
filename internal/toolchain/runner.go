package toolchain

import (
	"bytes"
	"context"
	"io"
	"os/exec"
)

// Command describes one subprocess invocation.
// A nil Env inherits the current process environment.
type Command struct {
	Name   string
	Args   []string
	Env    []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes commands (mockable)
type Runner interface {
	Run(ctx context.Context, c Command) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts the command and waits for it to finish.
func (ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) // #nosec G204 -- binaries come from configuration
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return cmd.Run()
}

// Output runs c capturing stdout and stderr.
func Output(ctx context.Context, r Runner, c Command) (stdout, stderr []byte, err error) {
	var outBuf, errBuf bytes.Buffer
	c.Stdout = &outBuf
	c.Stderr = &errBuf
	err = r.Run(ctx, c)
	return outBuf.Bytes(), errBuf.Bytes(), err
}
