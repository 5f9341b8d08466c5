package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBuild()...)
	errors = append(errors, c.validateGPU()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTimeout()...)

	return errors
}

func (c *Config) validateBuild() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.BuildName) == "" || strings.ContainsAny(c.BuildName, `/\`) {
		errors = append(errors, ValidationError{
			Path:    "build_name",
			Message: fmt.Sprintf("must be a non-empty file base name, got '%s'", c.BuildName),
		})
	}

	if len(c.Sources) == 0 {
		errors = append(errors, ValidationError{
			Path:    "sources",
			Message: "at least one source file is required",
		})
	}

	if strings.TrimSpace(c.BuildDir) == "" {
		errors = append(errors, ValidationError{Path: "build_dir", Message: "must not be empty"})
	}

	if strings.TrimSpace(c.RuntimesDir) == "" {
		errors = append(errors, ValidationError{Path: "runtimes_dir", Message: "must not be empty"})
	}

	if c.RuntimeIdentifier == "" || filepath.Base(c.RuntimeIdentifier) != c.RuntimeIdentifier {
		errors = append(errors, ValidationError{
			Path:    "runtime_identifier",
			Message: fmt.Sprintf("must be a single path segment, got '%s'", c.RuntimeIdentifier),
		})
	}

	if strings.TrimSpace(c.Python) == "" {
		errors = append(errors, ValidationError{Path: "python", Message: "must not be empty"})
	}

	return errors
}

func (c *Config) validateGPU() []ValidationError {
	var errors []ValidationError

	if c.GPU.MinCapability <= 0 {
		errors = append(errors, ValidationError{
			Path:    "gpu.min_capability",
			Message: fmt.Sprintf("must be positive, got %d", c.GPU.MinCapability),
		})
	}

	if len(c.GPU.TargetCapabilities) == 0 {
		errors = append(errors, ValidationError{
			Path:    "gpu.target_capabilities",
			Message: "at least one target capability is required",
		})
	}

	for _, target := range c.GPU.TargetCapabilities {
		if target < c.GPU.MinCapability {
			errors = append(errors, ValidationError{
				Path:    "gpu.target_capabilities",
				Message: fmt.Sprintf("target %d is below min_capability %d", target, c.GPU.MinCapability),
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		errors = append(errors, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validLevels, c.Logging.Level),
		})
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, c.Logging.Format) {
		errors = append(errors, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("must be one of %v, got '%s'", validFormats, c.Logging.Format),
		})
	}

	return errors
}

func (c *Config) validateTimeout() []ValidationError {
	d, err := c.TimeoutDuration()
	if err != nil {
		return []ValidationError{{
			Path:    "timeout",
			Message: fmt.Sprintf("invalid duration '%s': %v", c.Timeout, err),
		}}
	}
	if d < 0 {
		return []ValidationError{{
			Path:    "timeout",
			Message: fmt.Sprintf("must not be negative, got %s", d),
		}}
	}
	return nil
}

// contains checks if a string is in a slice
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
