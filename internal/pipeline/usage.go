package pipeline

import (
	"fmt"
	"io"
)

// PrintUsage writes the command line help.
func PrintUsage(w io.Writer, version string) {
	fmt.Fprintf(w, `buildnativeops - CUDA extension build tool (version %s)

Usage:
  buildnativeops                 Verify nvcc, build the extension and install it into runtimes/
  buildnativeops include         Print the framework include and library paths as JSON
  buildnativeops clean           Remove the build directory
  buildnativeops gpu-check [--save]
                                 Show detected GPUs, compute capabilities and codegen flags
  buildnativeops version         Print version information
  buildnativeops help            Show this help message

Verbs are matched anywhere on the command line; "include" wins over "clean".

GPU detection needs NVML, which is only compiled in with the cuda build tag
(go build -tags cuda). Release builds must use it; without it no GPUs are seen
and the compute capability check is skipped.

Configuration:
  nativeops.yaml, nativeops.yml or nativeops.toml in the project root
  NATIVEOPS_ROOT       Project root (default: current directory)
  NATIVEOPS_CONFIG     Explicit configuration file
  NATIVEOPS_PYTHON     Python interpreter with PyTorch installed
  NATIVEOPS_LOG_LEVEL  debug, info, warn or error
`, version)
}
