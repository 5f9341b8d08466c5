// Package ui renders the human-readable reports printed by the CLI.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"nativeops/internal/gpu"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd700")).MarginTop(1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fd75f")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)
)

// GPUCheck is the input of RenderGPUCheck.
type GPUCheck struct {
	Report        gpu.Report
	MinCapability int
	Flags         []string
	Err           error // detection or validation failure, nil when all devices pass
}

// Summary is the input of RenderBuildSummary.
type Summary struct {
	Name        string
	CUDARelease string
	Devices     int
	Artifact    string
	Target      string
	Digest      string
	Duration    time.Duration
}

// RenderGPUCheck formats the detected devices, the capability verdict and the
// codegen flags.
func RenderGPUCheck(c GPUCheck) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("=== GPU Capability Report ==="))
	b.WriteString("\n")

	if !c.Report.NVMLOk {
		b.WriteString(errorStyle.Render("NVML Status: UNAVAILABLE"))
		b.WriteString("\n")
		if c.Report.ErrorMessage != "" {
			b.WriteString(field("Error", c.Report.ErrorMessage))
		}
		b.WriteString(hintStyle.Render("No devices visible; capability validation is skipped."))
		b.WriteString("\n")
	} else {
		b.WriteString(okStyle.Render("NVML Status: OK"))
		b.WriteString("\n")
		b.WriteString(field("Driver Version", c.Report.DriverVersion))
		b.WriteString(field("CUDA Version", FormatCUDAVersion(c.Report.CUDAVersion)))
		b.WriteString(field("GPU Count", fmt.Sprintf("%d", len(c.Report.Devices))))

		for _, d := range c.Report.Devices {
			b.WriteString(sectionStyle.Render(fmt.Sprintf("GPU %d", d.Index)))
			b.WriteString("\n")
			b.WriteString(field("  Name", d.Name))
			b.WriteString(field("  UUID", d.UUID))
			b.WriteString(field("  Memory", fmt.Sprintf("%d MB", d.MemoryMB)))
			verdict := okStyle.Render("supported")
			if d.Capability.Code() < c.MinCapability {
				verdict = errorStyle.Render("unsupported")
			}
			b.WriteString(labelStyle.Render("  Compute Capability: ") + valueStyle.Render(d.Capability.String()) + " " + verdict + "\n")
		}
	}

	b.WriteString(sectionStyle.Render("Code Generation"))
	b.WriteString("\n")
	if c.Err != nil {
		b.WriteString(errorStyle.Render(c.Err.Error()))
		b.WriteString("\n")
		return b.String()
	}
	for i := 0; i+1 < len(c.Flags); i += 2 {
		b.WriteString("  " + valueStyle.Render(c.Flags[i]+" "+c.Flags[i+1]) + "\n")
	}
	return b.String()
}

// RenderBuildSummary formats a finished build.
func RenderBuildSummary(s Summary) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("=== %s ===", s.Name)))
	b.WriteString("\n")
	if s.CUDARelease != "" {
		b.WriteString(field("CUDA Release", s.CUDARelease))
	}
	b.WriteString(field("GPUs", fmt.Sprintf("%d", s.Devices)))
	b.WriteString(field("Artifact", s.Artifact))
	b.WriteString(field("Installed", s.Target))
	b.WriteString(field("BLAKE2b-256", s.Digest))
	b.WriteString(field("Duration", s.Duration.Round(time.Millisecond).String()))
	return b.String()
}

// FormatCUDAVersion renders the driver's integer CUDA version (12040 -> "12.4").
func FormatCUDAVersion(v int) string {
	if v <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}

func field(label, value string) string {
	return labelStyle.Render(label+": ") + valueStyle.Render(value) + "\n"
}
