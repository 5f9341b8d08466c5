package config

const (
	// DefaultBuildName is the base name of the compiled extension.
	DefaultBuildName = "NativeTorchCudaOps"
	// DefaultMinCapability is the lowest supported compute capability code (7.5).
	DefaultMinCapability = 75
)

// DefaultTargetCapabilities is the fixed code generation allow-list.
var DefaultTargetCapabilities = []int{75, 80, 86, 89, 90}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BuildName:         DefaultBuildName,
		Sources:           []string{"src/nativeops.cpp"},
		BuildDir:          "build",
		RuntimesDir:       "runtimes",
		RuntimeIdentifier: "win-x64",
		Python:            "python",
		CompilerArch:      "x86_amd64",
		GPU: GPUConfig{
			MinCapability:      DefaultMinCapability,
			TargetCapabilities: append([]int(nil), DefaultTargetCapabilities...),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
