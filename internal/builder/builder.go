// Package builder assembles compiler flags and hands the compile and link step
// to the host framework.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nativeops/internal/envcfg"
	"nativeops/internal/logging"
	"nativeops/internal/torchext"
)

// ErrBuildFailed wraps any failure reported by the framework build.
var ErrBuildFailed = errors.New("extension build failed")

var (
	// BaseCFlags are passed to the host C++ compiler.
	BaseCFlags = []string{"/Ox", "/std:c++17"}

	// BaseCUDAFlags are passed to nvcc ahead of the architecture flags.
	BaseCUDAFlags = []string{
		"-O3",
		"-std=c++17",
		"-DUSE_NVTX=ON",
		"-U__CUDA_NO_HALF_OPERATORS__",
		"-U__CUDA_NO_HALF_CONVERSIONS__",
		"-U__CUDA_NO_BFLOAT16_OPERATORS__",
		"-U__CUDA_NO_BFLOAT16_CONVERSIONS__",
		"-U__CUDA_NO_BFLOAT162_OPERATORS__",
		"-U__CUDA_NO_BFLOAT162_CONVERSIONS__",
		"--use_fast_math",
	}
)

// ArchFlagSource produces nvcc architecture flags after validating the hardware.
type ArchFlagSource interface {
	ArchitectureFlags() ([]string, error)
}

// Options are the configurable additions to the fixed flag sets.
type Options struct {
	ExtraCFlags       []string
	ExtraCUDACFlags   []string
	ExtraLDFlags      []string
	ExtraIncludePaths []string
	Verbose           bool
}

// Request describes one extension build.
type Request struct {
	Name     string
	Sources  []string
	BuildDir string
	Env      *envcfg.Environment
}

// Result describes a finished build and the flags it used.
type Result struct {
	Artifact     string        `json:"artifact"`
	CFlags       []string      `json:"cflags"`
	CUDAFlags    []string      `json:"cuda_flags"`
	LDFlags      []string      `json:"ldflags"`
	IncludePaths []string      `json:"include_paths"`
	Duration     time.Duration `json:"duration_ns"`
}

// Builder compiles the extension through the framework facility.
type Builder struct {
	arch     ArchFlagSource
	facility torchext.Facility
	opts     Options
	logger   *logging.Logger
}

// New creates a builder.
func New(arch ArchFlagSource, facility torchext.Facility, opts Options, logger *logging.Logger) *Builder {
	return &Builder{
		arch:     arch,
		facility: facility,
		opts:     opts,
		logger:   logger,
	}
}

// CFlags returns the fixed C++ flags followed by extra.
func CFlags(extra []string) []string {
	return concat(BaseCFlags, extra)
}

// CUDAFlags returns the fixed CUDA flags, then arch, then extra.
func CUDAFlags(arch, extra []string) []string {
	return concat(BaseCUDAFlags, arch, extra)
}

// Build validates the hardware, assembles the flag sets and runs the
// framework build. Hardware errors are returned as they are; everything the
// framework reports wraps ErrBuildFailed.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	archFlags, err := b.arch.ArchitectureFlags()
	if err != nil {
		return nil, err
	}

	result := &Result{
		CFlags:       CFlags(b.opts.ExtraCFlags),
		CUDAFlags:    CUDAFlags(archFlags, b.opts.ExtraCUDACFlags),
		LDFlags:      concat(b.opts.ExtraLDFlags),
		IncludePaths: concat(b.opts.ExtraIncludePaths),
	}

	var env []string
	if req.Env != nil {
		env = req.Env.Environ()
	}

	b.logger.Info("build.start", "Building extension", map[string]interface{}{
		"name":       req.Name,
		"sources":    req.Sources,
		"build_dir":  req.BuildDir,
		"cflags":     result.CFlags,
		"cuda_flags": result.CUDAFlags,
	})

	start := time.Now()
	artifact, err := b.facility.Load(ctx, torchext.LoadRequest{
		Name:              req.Name,
		Sources:           req.Sources,
		BuildDirectory:    req.BuildDir,
		ExtraCFlags:       result.CFlags,
		ExtraCUDACFlags:   result.CUDAFlags,
		ExtraLDFlags:      result.LDFlags,
		ExtraIncludePaths: result.IncludePaths,
		Verbose:           b.opts.Verbose,
		Env:               env,
	})
	result.Duration = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	result.Artifact = artifact

	b.logger.Info("build.compiled", "Extension compiled", map[string]interface{}{
		"artifact":    artifact,
		"duration_ms": result.Duration.Milliseconds(),
	})

	return result, nil
}

func concat(parts ...[]string) []string {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]string, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
