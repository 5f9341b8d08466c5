package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"nativeops/internal/logging"
)

const (
	// DefaultDirPermissions is the permission used for build and runtime directories
	DefaultDirPermissions = 0o755
	// DefaultFilePermissions is the permission used for report files
	DefaultFilePermissions = 0o644
)

// ResolveDir returns the directory named by envKey, made absolute when possible,
// or defaultDir when the variable is unset.
func ResolveDir(envKey, defaultDir string) string {
	if env := os.Getenv(envKey); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
		return env
	}
	return defaultDir
}

// EnsureDirectory creates the directory tree if it doesn't exist.
func EnsureDirectory(path string) error {
	if err := os.MkdirAll(path, DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path exists. Stat errors other than not-exist count as present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// RemoveTree recursively deletes path, suppressing every error.
// It reports whether the path existed beforehand.
func RemoveTree(path string) bool {
	if !Exists(path) {
		return false
	}
	_ = os.RemoveAll(path)
	return true
}

// CopyFile copies srcPath to destPath preserving the source mode and creating
// the destination directory. A missing source returns an fs.ErrNotExist error.
func CopyFile(srcPath, destPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		return err
	}

	if mkErr := os.MkdirAll(filepath.Dir(destPath), DefaultDirPermissions); mkErr != nil {
		return mkErr
	}

	in, err := os.Open(filepath.Clean(srcPath))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

// AtomicWriteFile writes data to a file atomically by first writing to a temp file
// and then renaming it to the target path. This ensures the file is never partially written.
func AtomicWriteFile(path string, data []byte, perm os.FileMode, logger *logging.Logger) error {
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
			if logger != nil {
				logger.Warn("fs.cleanup.failed", "Failed to remove temp file", map[string]interface{}{
					"path":  tmpPath,
					"error": removeErr.Error(),
				})
			}
		}
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// CloseWithError closes a resource and logs any error if a logger is provided.
func CloseWithError(closer func() error, logger *logging.Logger, resource string) {
	if err := closer(); err != nil {
		if logger != nil {
			logger.Warn("fs.close.failed", fmt.Sprintf("Failed to close %s", resource), map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
