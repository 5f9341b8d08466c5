package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"nativeops/internal/logging"
)

var (
	// ErrToolchainNotFound is returned when the CUDA compiler is not on the search path.
	ErrToolchainNotFound = errors.New("'nvcc' not found. Ensure CUDA is installed and 'nvcc' is in the system PATH")
	// ErrToolchainInvocation is returned when the CUDA compiler exits with an error.
	ErrToolchainInvocation = errors.New("failed to run 'nvcc --version'")
)

// DefaultCompiler is the CUDA compiler binary name.
const DefaultCompiler = "nvcc"

var releasePattern = regexp.MustCompile(`(?mi)^Cuda compilation tools, release (\d+)\.(\d+)`)

// CompilerVersion is the output of `nvcc --version`.
type CompilerVersion struct {
	Raw     string `json:"raw"`
	Release string `json:"release,omitempty"`
}

// Verifier confirms the CUDA compiler is installed and runnable.
type Verifier struct {
	runner Runner
	logger *logging.Logger
	binary string
}

// NewVerifier creates a verifier for the default nvcc binary.
func NewVerifier(runner Runner, logger *logging.Logger) *Verifier {
	return &Verifier{
		runner: runner,
		logger: logger,
		binary: DefaultCompiler,
	}
}

// Check runs the compiler with --version. Presence is the only requirement;
// the release number is parsed for reporting and never compared.
func (v *Verifier) Check(ctx context.Context) (CompilerVersion, error) {
	stdout, stderr, err := Output(ctx, v.runner, Command{
		Name: v.binary,
		Args: []string{"--version"},
	})
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return CompilerVersion{}, ErrToolchainNotFound
		}
		detail := strings.TrimSpace(string(stderr))
		if detail != "" {
			return CompilerVersion{}, fmt.Errorf("%w. Details: %v: %s", ErrToolchainInvocation, err, detail)
		}
		return CompilerVersion{}, fmt.Errorf("%w. Details: %v", ErrToolchainInvocation, err)
	}

	version := CompilerVersion{
		Raw:     string(stdout),
		Release: parseRelease(string(stdout)),
	}

	v.logger.Info("nvcc.version.detected", "nvcc version detected", map[string]interface{}{
		"release": version.Release,
		"output":  strings.TrimSpace(version.Raw),
	})

	return version, nil
}

func parseRelease(output string) string {
	matches := releasePattern.FindStringSubmatch(output)
	if len(matches) != 3 {
		return ""
	}
	return matches[1] + "." + matches[2]
}
