package toolchain

import (
	"context"
	"fmt"
	"io"
)

// fakeResult scripts the outcome of one command
type fakeResult struct {
	stdout []byte
	stderr string
	err    error
}

// fakeRunner is a mock Runner keyed by binary name
type fakeRunner struct {
	results map[string]fakeResult
	calls   []Command
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: make(map[string]fakeResult)}
}

func (f *fakeRunner) on(name string, result fakeResult) *fakeRunner {
	f.results[name] = result
	return f
}

func (f *fakeRunner) Run(_ context.Context, c Command) error {
	f.calls = append(f.calls, c)
	result, ok := f.results[c.Name]
	if !ok {
		return fmt.Errorf("unexpected command %s", c.Name)
	}
	if c.Stdout != nil && len(result.stdout) > 0 {
		if _, err := c.Stdout.Write(result.stdout); err != nil {
			return err
		}
	}
	if c.Stderr != nil && result.stderr != "" {
		if _, err := io.WriteString(c.Stderr, result.stderr); err != nil {
			return err
		}
	}
	return result.err
}
