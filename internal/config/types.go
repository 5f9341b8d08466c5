package config

// Config represents the complete build configuration
type Config struct {
	BuildName         string        `yaml:"build_name" toml:"build_name"`
	Sources           []string      `yaml:"sources" toml:"sources"`
	BuildDir          string        `yaml:"build_dir" toml:"build_dir"`
	RuntimesDir       string        `yaml:"runtimes_dir" toml:"runtimes_dir"`
	RuntimeIdentifier string        `yaml:"runtime_identifier" toml:"runtime_identifier"`
	Python            string        `yaml:"python" toml:"python"`
	CompilerArch      string        `yaml:"compiler_arch" toml:"compiler_arch"`
	Timeout           string        `yaml:"timeout" toml:"timeout"`
	GPU               GPUConfig     `yaml:"gpu" toml:"gpu"`
	Flags             FlagsConfig   `yaml:"flags" toml:"flags"`
	Logging           LoggingConfig `yaml:"logging" toml:"logging"`

	// Source is the file the configuration was read from, empty for defaults.
	Source string `yaml:"-" toml:"-"`
}

// GPUConfig controls capability validation and code generation targets
type GPUConfig struct {
	MinCapability      int   `yaml:"min_capability" toml:"min_capability"`
	TargetCapabilities []int `yaml:"target_capabilities" toml:"target_capabilities"`
}

// FlagsConfig holds flags appended after the fixed compiler flag sets
type FlagsConfig struct {
	ExtraCFlags       []string `yaml:"extra_cflags" toml:"extra_cflags"`
	ExtraCUDACFlags   []string `yaml:"extra_cuda_cflags" toml:"extra_cuda_cflags"`
	ExtraLDFlags      []string `yaml:"extra_ldflags" toml:"extra_ldflags"`
	ExtraIncludePaths []string `yaml:"extra_include_paths" toml:"extra_include_paths"`
	Quiet             bool     `yaml:"quiet" toml:"quiet"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}
