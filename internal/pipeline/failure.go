package pipeline

import (
	"errors"
	"fmt"

	"nativeops/internal/gpu"
	"nativeops/internal/toolchain"
	"nativeops/internal/torchext"
)

// Kind groups failures by cause.
type Kind string

const (
	// KindEnvironmentUnavailable covers a missing compiler, compiler environment or framework,
	// and GPUs the driver cannot read.
	KindEnvironmentUnavailable Kind = "environment_unavailable"
	// KindUnsupportedHardware is a GPU below the capability floor.
	KindUnsupportedHardware Kind = "unsupported_hardware"
	// KindBuildFailure is anything else raised while building or installing.
	KindBuildFailure Kind = "build_failure"
)

// Failure is a classified pipeline error. Every kind exits with status 1.
type Failure struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ExitCode is the process status for the failure.
func (f *Failure) ExitCode() int {
	return 1
}

// Classify maps err to a Failure for op. An existing Failure is returned as is.
func Classify(op string, err error) *Failure {
	var existing *Failure
	if errors.As(err, &existing) {
		return existing
	}

	kind := KindBuildFailure
	switch {
	case errors.Is(err, toolchain.ErrToolchainNotFound),
		errors.Is(err, toolchain.ErrToolchainInvocation),
		errors.Is(err, toolchain.ErrCompilerEnvUnavailable),
		errors.Is(err, torchext.ErrFacilityUnavailable),
		errors.Is(err, gpu.ErrDetectionFailed):
		kind = KindEnvironmentUnavailable
	case errors.Is(err, gpu.ErrUnsupportedHardware):
		kind = KindUnsupportedHardware
	}

	return &Failure{Kind: kind, Op: op, Err: err}
}
