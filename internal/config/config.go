package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath names an explicit configuration file.
	EnvConfigPath = "NATIVEOPS_CONFIG"
	// EnvPython overrides the interpreter used for the host framework.
	EnvPython = "NATIVEOPS_PYTHON"
	// EnvLogLevel overrides logging.level.
	EnvLogLevel = "NATIVEOPS_LOG_LEVEL"
)

// projectConfigFiles are probed in order inside the project root.
var projectConfigFiles = []string{"nativeops.yaml", "nativeops.yml", "nativeops.toml"}

// Load loads and merges configuration for the project rooted at root
// Priority: defaults < project config file < environment overrides
func Load(root string) (Config, error) {
	cfg := DefaultConfig()

	if explicit := strings.TrimSpace(os.Getenv(EnvConfigPath)); explicit != "" {
		if err := mergeConfigFile(&cfg, explicit); err != nil {
			return cfg, fmt.Errorf("failed to load config from %s: %w", explicit, err)
		}
		cfg.Source = explicit
	} else {
		for _, name := range projectConfigFiles {
			path := filepath.Join(root, name)
			err := mergeConfigFile(&cfg, path)
			if err == nil {
				cfg.Source = path
				break
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return cfg, fmt.Errorf("failed to load project config: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		return cfg, fmt.Errorf("config.validation.error: %v", formatValidationErrors(validationErrors))
	}

	return cfg, nil
}

// mergeConfigFile reads a YAML or TOML file and merges it into the existing config
func mergeConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from the project root or an explicit override
	if err != nil {
		return err
	}

	var overlay Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &overlay); err != nil {
			return fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	mergeConfig(cfg, &overlay)
	return nil
}

// mergeConfig merges non-zero values from src into dst
func mergeConfig(dst, src *Config) {
	if src.BuildName != "" {
		dst.BuildName = src.BuildName
	}
	if len(src.Sources) > 0 {
		dst.Sources = src.Sources
	}
	if src.BuildDir != "" {
		dst.BuildDir = src.BuildDir
	}
	if src.RuntimesDir != "" {
		dst.RuntimesDir = src.RuntimesDir
	}
	if src.RuntimeIdentifier != "" {
		dst.RuntimeIdentifier = src.RuntimeIdentifier
	}
	if src.Python != "" {
		dst.Python = src.Python
	}
	if src.CompilerArch != "" {
		dst.CompilerArch = src.CompilerArch
	}
	if src.Timeout != "" {
		dst.Timeout = src.Timeout
	}

	if src.GPU.MinCapability != 0 {
		dst.GPU.MinCapability = src.GPU.MinCapability
	}
	if len(src.GPU.TargetCapabilities) > 0 {
		dst.GPU.TargetCapabilities = src.GPU.TargetCapabilities
	}

	// Extra flags are additive across layers
	dst.Flags.ExtraCFlags = append(dst.Flags.ExtraCFlags, src.Flags.ExtraCFlags...)
	dst.Flags.ExtraCUDACFlags = append(dst.Flags.ExtraCUDACFlags, src.Flags.ExtraCUDACFlags...)
	dst.Flags.ExtraLDFlags = append(dst.Flags.ExtraLDFlags, src.Flags.ExtraLDFlags...)
	dst.Flags.ExtraIncludePaths = append(dst.Flags.ExtraIncludePaths, src.Flags.ExtraIncludePaths...)
	dst.Flags.Quiet = dst.Flags.Quiet || src.Flags.Quiet

	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
	if src.Logging.File != "" {
		dst.Logging.File = src.Logging.File
	}
}

func applyEnvOverrides(cfg *Config) {
	if python := strings.TrimSpace(os.Getenv(EnvPython)); python != "" {
		cfg.Python = python
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
}

// formatValidationErrors formats validation errors for display
func formatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	if len(errors) == 1 {
		return errors[0].Error()
	}
	result := fmt.Sprintf("%d validation errors:\n", len(errors))
	for _, err := range errors {
		result += "  - " + err.Error() + "\n"
	}
	return result
}

// ResolvePath joins p onto root unless p is already absolute.
func ResolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// BuildPath returns the intermediate build directory for root.
func (c Config) BuildPath(root string) string {
	return ResolvePath(root, c.BuildDir)
}

// RuntimesPath returns the runtime distribution directory for root.
func (c Config) RuntimesPath(root string) string {
	return ResolvePath(root, c.RuntimesDir)
}

// SourcePaths returns the extension sources resolved against root.
func (c Config) SourcePaths(root string) []string {
	paths := make([]string, 0, len(c.Sources))
	for _, src := range c.Sources {
		paths = append(paths, ResolvePath(root, src))
	}
	return paths
}

// TimeoutDuration parses Timeout. Zero means no deadline.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Timeout)
}
