package projectdir

import (
	"os"

	"nativeops/internal/fsutil"
)

// EnvRoot overrides the project root.
const EnvRoot = "NATIVEOPS_ROOT"

// Root resolves the project root respecting overrides, falling back to the
// working directory.
func Root() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return fsutil.ResolveDir(EnvRoot, cwd)
}
