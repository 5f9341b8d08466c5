// Package torchext drives the host framework's just-in-time extension build
// through the configured Python interpreter.
package torchext

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"nativeops/internal/logging"
	"nativeops/internal/toolchain"
)

//go:embed bridge.py
var bridgeScript string

const resultPrefix = "NATIVEOPS_RESULT "

var (
	// ErrFacilityUnavailable is returned when the interpreter or the framework cannot be started.
	ErrFacilityUnavailable = errors.New("host framework unavailable")
	// ErrLoadFailed is returned when the framework reports a failed extension build.
	ErrLoadFailed = errors.New("extension load failed")
)

// Introspection holds the framework's header and library locations and its
// shared library suffixes.
type Introspection struct {
	IncludePaths []string `json:"include_paths"`
	LibraryPaths []string `json:"library_paths"`
	LibExt       string   `json:"lib_ext"`
	CLibExt      string   `json:"clib_ext"`
}

// LoadRequest is one compile+link call into the framework.
type LoadRequest struct {
	Name              string   `json:"name"`
	Sources           []string `json:"sources"`
	BuildDirectory    string   `json:"build_directory"`
	ExtraCFlags       []string `json:"extra_cflags"`
	ExtraCUDACFlags   []string `json:"extra_cuda_cflags"`
	ExtraLDFlags      []string `json:"extra_ldflags"`
	ExtraIncludePaths []string `json:"extra_include_paths"`
	Verbose           bool     `json:"verbose"`

	// Env is the subprocess environment; nil inherits the process environment.
	Env []string `json:"-"`
}

// Facility is the host framework's extension-build facility (mockable)
type Facility interface {
	Introspect(ctx context.Context, env []string) (Introspection, error)
	Load(ctx context.Context, req LoadRequest) (string, error)
}

// DefaultExtensions returns the framework's library suffixes for goos.
func DefaultExtensions(goos string) (libExt, clibExt string) {
	if goos == "windows" {
		return ".pyd", ".dll"
	}
	return ".so", ".so"
}

// PythonFacility runs the bridge script under a Python interpreter.
type PythonFacility struct {
	runner toolchain.Runner
	python string
	logger *logging.Logger
	output io.Writer
	goos   string
}

// NewPythonFacility creates a facility. Compiler output is streamed to output.
func NewPythonFacility(runner toolchain.Runner, python, goos string, output io.Writer, logger *logging.Logger) *PythonFacility {
	if output == nil {
		output = io.Discard
	}
	return &PythonFacility{
		runner: runner,
		python: python,
		logger: logger,
		output: output,
		goos:   goos,
	}
}

type bridgeResult struct {
	Introspection
	Artifact string `json:"artifact,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Introspect asks the framework for its include and library paths.
func (f *PythonFacility) Introspect(ctx context.Context, env []string) (Introspection, error) {
	stdout, stderr, err := toolchain.Output(ctx, f.runner, f.command("paths", env))
	if err != nil {
		return Introspection{}, f.startError(err, stderr)
	}

	result, ok, err := findResult(stdout)
	if err != nil {
		return Introspection{}, fmt.Errorf("%w: %v", ErrFacilityUnavailable, err)
	}
	if !ok {
		return Introspection{}, fmt.Errorf("%w: interpreter produced no result", ErrFacilityUnavailable)
	}

	info := result.Introspection
	defLib, defCLib := DefaultExtensions(f.goos)
	if info.LibExt == "" {
		info.LibExt = defLib
	}
	if info.CLibExt == "" {
		info.CLibExt = defCLib
	}

	f.logger.Debug("torch.paths.resolved", "Resolved framework paths", map[string]interface{}{
		"include_paths": len(info.IncludePaths),
		"library_paths": len(info.LibraryPaths),
		"lib_ext":       info.LibExt,
		"clib_ext":      info.CLibExt,
	})

	return info, nil
}

// Load compiles and links the extension and returns the artifact path.
func (f *PythonFacility) Load(ctx context.Context, req LoadRequest) (string, error) {
	payload, err := json.Marshal(normalize(req))
	if err != nil {
		return "", fmt.Errorf("failed to encode load request: %w", err)
	}

	var stderr bytes.Buffer
	lines := &resultWriter{out: f.output}
	cmd := f.command("load", req.Env)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = lines
	cmd.Stderr = io.MultiWriter(f.output, &stderr)

	f.logger.Info("torch.load.start", "Building extension", map[string]interface{}{
		"name":      req.Name,
		"sources":   req.Sources,
		"build_dir": req.BuildDirectory,
	})

	runErr := f.runner.Run(ctx, cmd)
	lines.Flush()

	if lines.result != nil && lines.result.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrLoadFailed, lines.result.Error)
	}
	if runErr != nil {
		if lines.result == nil {
			return "", f.startError(runErr, stderr.Bytes())
		}
		return "", fmt.Errorf("%w: %v", ErrLoadFailed, runErr)
	}
	if lines.result == nil || lines.result.Artifact == "" {
		return "", fmt.Errorf("%w: interpreter produced no result", ErrLoadFailed)
	}

	return lines.result.Artifact, nil
}

func (f *PythonFacility) command(verb string, env []string) toolchain.Command {
	return toolchain.Command{
		Name: f.python,
		Args: []string{"-c", bridgeScript, verb},
		Env:  env,
	}
}

func (f *PythonFacility) startError(err error, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: interpreter %q not found", ErrFacilityUnavailable, f.python)
	}
	detail := lastLine(string(stderr))
	if detail == "" {
		return fmt.Errorf("%w: %v", ErrFacilityUnavailable, err)
	}
	return fmt.Errorf("%w: %v: %s", ErrFacilityUnavailable, err, detail)
}

func normalize(req LoadRequest) LoadRequest {
	orEmpty := func(s []string) []string {
		if s == nil {
			return []string{}
		}
		return s
	}
	req.Sources = orEmpty(req.Sources)
	req.ExtraCFlags = orEmpty(req.ExtraCFlags)
	req.ExtraCUDACFlags = orEmpty(req.ExtraCUDACFlags)
	req.ExtraLDFlags = orEmpty(req.ExtraLDFlags)
	req.ExtraIncludePaths = orEmpty(req.ExtraIncludePaths)
	return req
}

func findResult(stdout []byte) (*bridgeResult, bool, error) {
	for _, line := range strings.Split(string(stdout), "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, resultPrefix) {
			continue
		}
		var result bridgeResult
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, resultPrefix)), &result); err != nil {
			return nil, false, fmt.Errorf("failed to parse bridge result: %w", err)
		}
		return &result, true, nil
	}
	return nil, false, nil
}

// lastLine returns the last non-empty line, which for a Python traceback is the exception.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// resultWriter forwards compiler output line by line and captures the result line.
type resultWriter struct {
	out     io.Writer
	pending []byte
	result  *bridgeResult
}

func (w *resultWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.line(w.pending[:i+1])
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing partial line.
func (w *resultWriter) Flush() {
	if len(w.pending) > 0 {
		w.line(w.pending)
		w.pending = nil
	}
}

func (w *resultWriter) line(b []byte) {
	if result, ok, err := findResult(b); err == nil && ok {
		w.result = result
		return
	}
	_, _ = w.out.Write(b)
}
