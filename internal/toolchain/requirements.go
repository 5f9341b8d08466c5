package toolchain

import (
	"fmt"
	"os/exec"
	"strings"
)

// ToolRequirement describes a build tool dependency.
type ToolRequirement struct {
	// Name is the primary tool binary name (e.g., "nvcc", "cl").
	Name string

	// Alternatives are tool names that also satisfy this requirement.
	Alternatives []string

	// Optional tools are reported but never fail the check.
	Optional bool

	// Purpose is a human-readable description of why this tool is needed.
	Purpose string
}

// ToolStatus is the lookup result for one requirement.
type ToolStatus struct {
	Requirement ToolRequirement
	Found       string // binary that satisfied the requirement, empty if none
	Path        string
}

var lookPath = exec.LookPath

// ResolveTools looks up every requirement, trying alternatives in order.
func ResolveTools(requirements []ToolRequirement) []ToolStatus {
	statuses := make([]ToolStatus, 0, len(requirements))
	for _, req := range requirements {
		status := ToolStatus{Requirement: req}
		for _, candidate := range append([]string{req.Name}, req.Alternatives...) {
			if path, err := lookPath(candidate); err == nil {
				status.Found = candidate
				status.Path = path
				break
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// CheckRequiredTools verifies all non-optional tools are available and
// lists every missing one in a single error.
func CheckRequiredTools(requirements []ToolRequirement) error {
	var missingTools []string

	for _, status := range ResolveTools(requirements) {
		req := status.Requirement
		if status.Found != "" || req.Optional {
			continue
		}
		if req.Purpose != "" {
			missingTools = append(missingTools, fmt.Sprintf("%s (%s)", req.Name, req.Purpose))
		} else {
			missingTools = append(missingTools, req.Name)
		}
	}

	if len(missingTools) == 0 {
		return nil
	}

	if len(missingTools) == 1 {
		return fmt.Errorf("%s not found in PATH", missingTools[0])
	}

	return fmt.Errorf("missing required tools: %s", strings.Join(missingTools, ", "))
}

// BuildRequirements lists the tools a CUDA extension build depends on.
func BuildRequirements(python string, goos string) []ToolRequirement {
	reqs := []ToolRequirement{
		{Name: DefaultCompiler, Purpose: "CUDA compiler"},
		// the facility runs exactly this interpreter, so no alternatives
		{Name: python, Purpose: "host framework interpreter"},
	}
	if goos == "windows" {
		// cl.exe only appears on PATH after the compiler environment is applied
		reqs = append(reqs, ToolRequirement{Name: "cl", Optional: true, Purpose: "MSVC C++ compiler"})
	} else {
		reqs = append(reqs, ToolRequirement{Name: "c++", Alternatives: []string{"g++", "clang++"}, Optional: true, Purpose: "C++ compiler"})
	}
	reqs = append(reqs, ToolRequirement{Name: "ninja", Optional: true, Purpose: "extension build backend"})
	return reqs
}
