package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"nativeops/internal/logging"
)

// ErrCompilerEnvUnavailable is returned when the MSVC environment cannot be resolved.
var ErrCompilerEnvUnavailable = errors.New("MSVC compiler environment unavailable")

const (
	defaultVswhere   = `C:\Program Files (x86)\Microsoft Visual Studio\Installer\vswhere.exe`
	vcToolsComponent = "Microsoft.VisualStudio.Component.VC.Tools.x86.x64"
)

// VCEnvResolver resolves the environment variables vcvarsall.bat sets up for
// a target architecture such as "x86_amd64".
type VCEnvResolver struct {
	runner  Runner
	logger  *logging.Logger
	goos    string
	vswhere string
}

// NewVCEnvResolver creates a resolver for the running platform.
func NewVCEnvResolver(runner Runner, logger *logging.Logger) *VCEnvResolver {
	return &VCEnvResolver{
		runner:  runner,
		logger:  logger,
		goos:    runtime.GOOS,
		vswhere: vswherePath(),
	}
}

// NewVCEnvResolverFor creates a resolver pinned to goos and a vswhere location (for testing).
func NewVCEnvResolverFor(runner Runner, logger *logging.Logger, goos, vswhere string) *VCEnvResolver {
	return &VCEnvResolver{runner: runner, logger: logger, goos: goos, vswhere: vswhere}
}

func vswherePath() string {
	if pf := os.Getenv("ProgramFiles(x86)"); pf != "" {
		return filepath.Join(pf, "Microsoft Visual Studio", "Installer", "vswhere.exe")
	}
	return defaultVswhere
}

// Resolve returns the compiler environment with lower-cased keys. Hosts other
// than Windows have no vcvarsall and get an empty overlay.
func (r *VCEnvResolver) Resolve(ctx context.Context, arch string) (map[string]string, error) {
	if r.goos != "windows" {
		r.logger.Warn("msvc.env.skipped", "MSVC environment is only resolved on Windows", map[string]interface{}{
			"os": r.goos,
		})
		return map[string]string{}, nil
	}

	installPath, err := r.findInstallation(ctx)
	if err != nil {
		return nil, err
	}

	vcvarsall := installPath + `\VC\Auxiliary\Build\vcvarsall.bat`
	stdout, stderr, err := Output(ctx, r.runner, Command{
		Name: "cmd.exe",
		Args: []string{"/u", "/c", vcvarsall, arch, "&&", "set"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: vcvarsall.bat %s failed: %v: %s", ErrCompilerEnvUnavailable, arch, err, strings.TrimSpace(string(stderr)))
	}

	text, err := decodeConsoleOutput(stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: decode vcvarsall output: %v", ErrCompilerEnvUnavailable, err)
	}

	env := ParseEnvironmentBlock(text)
	if len(env) == 0 {
		return nil, fmt.Errorf("%w: vcvarsall.bat %s produced no environment", ErrCompilerEnvUnavailable, arch)
	}

	r.logger.Info("msvc.env.resolved", "Resolved MSVC environment", map[string]interface{}{
		"arch":         arch,
		"installation": installPath,
		"variables":    len(env),
	})

	return env, nil
}

func (r *VCEnvResolver) findInstallation(ctx context.Context) (string, error) {
	stdout, _, err := Output(ctx, r.runner, Command{
		Name: r.vswhere,
		Args: []string{
			"-latest", "-prerelease",
			"-requires", vcToolsComponent,
			"-property", "installationPath",
			"-products", "*",
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: vswhere failed to find MSVC install: %v", ErrCompilerEnvUnavailable, err)
	}

	installPath := strings.TrimSpace(string(stdout))
	if installPath == "" {
		return "", fmt.Errorf("%w: no Visual Studio installation with C++ tools", ErrCompilerEnvUnavailable)
	}
	// vswhere lists one installation per line; -latest keeps only one
	if i := strings.IndexAny(installPath, "\r\n"); i >= 0 {
		installPath = strings.TrimSpace(installPath[:i])
	}
	return installPath, nil
}

// decodeConsoleOutput decodes `cmd /u` output, which is UTF-16LE.
func decodeConsoleOutput(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	// Plain ASCII output means the shell ignored /u
	if len(b)%2 != 0 || !bytes.Contains(b, []byte{0}) {
		return string(b), nil
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := decoder.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ParseEnvironmentBlock parses `set` output into a map with lower-cased keys.
// Lines without a key or a value are dropped.
func ParseEnvironmentBlock(text string) map[string]string {
	env := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" || value == "" {
			continue
		}
		env[strings.ToLower(key)] = value
	}
	return env
}
