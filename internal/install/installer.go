// Package install places the compiled extension into the runtimes layout.
package install

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"nativeops/internal/fsutil"
	"nativeops/internal/logging"
)

// ErrDigestMismatch is returned when the installed copy differs from the build output.
var ErrDigestMismatch = errors.New("installed artifact does not match build output")

// Layout names the artifact on both sides of the copy.
type Layout struct {
	Name              string // library base name, e.g. "NativeTorchCudaOps"
	RuntimeIdentifier string // e.g. "win-x64"
	LibExt            string // suffix of the build output
	CLibExt           string // suffix of the installed library
}

// Result describes an installed artifact.
type Result struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Digest string `json:"blake2b_256"`
	Size   int64  `json:"size"`
}

// Installer copies build output into <runtimes>/<rid>/native/.
type Installer struct {
	layout Layout
	logger *logging.Logger
}

// NewInstaller creates an installer for layout.
func NewInstaller(layout Layout, logger *logging.Logger) *Installer {
	return &Installer{layout: layout, logger: logger}
}

// SourcePath is the build output expected in buildDir.
func (i *Installer) SourcePath(buildDir string) string {
	return filepath.Join(buildDir, i.layout.Name+i.layout.LibExt)
}

// TargetPath is where the library is installed under runtimesDir.
func (i *Installer) TargetPath(runtimesDir string) string {
	return filepath.Join(runtimesDir, i.layout.RuntimeIdentifier, "native", i.layout.Name+i.layout.CLibExt)
}

// Install copies the build output, creating the target directory, and verifies
// the copy by digest. A missing build output returns an fs.ErrNotExist error
// and leaves the runtimes tree untouched.
func (i *Installer) Install(buildDir, runtimesDir string) (*Result, error) {
	source := i.SourcePath(buildDir)
	target := i.TargetPath(runtimesDir)

	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("build output %s: %w", source, err)
	}

	if err := fsutil.CopyFile(source, target); err != nil {
		return nil, fmt.Errorf("failed to copy %s to %s: %w", source, target, err)
	}

	sourceDigest, size, err := Digest(source, i.logger)
	if err != nil {
		return nil, err
	}
	targetDigest, _, err := Digest(target, i.logger)
	if err != nil {
		return nil, err
	}
	if sourceDigest != targetDigest {
		return nil, fmt.Errorf("%w: %s", ErrDigestMismatch, target)
	}

	i.logger.Info("install.copied", fmt.Sprintf("Copied build output to: %s", target), map[string]interface{}{
		"source": source,
		"target": target,
		"digest": sourceDigest,
		"size":   size,
	})

	return &Result{
		Source: source,
		Target: target,
		Digest: sourceDigest,
		Size:   size,
	}, nil
}

// Digest returns the hex BLAKE2b-256 digest and size of the file at path.
func Digest(path string, logger *logging.Logger) (string, int64, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer fsutil.CloseWithError(f.Close, logger, path)

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
