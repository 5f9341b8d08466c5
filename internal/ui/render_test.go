package ui

import (
	"strings"
	"testing"
	"time"

	"nativeops/internal/gpu"
)

func TestRenderGPUCheck_Devices(t *testing.T) {
	out := RenderGPUCheck(GPUCheck{
		Report: gpu.Report{
			NVMLOk:        true,
			DriverVersion: "550.54",
			CUDAVersion:   12040,
			Devices: []gpu.Device{
				{Index: 0, Name: "RTX 4090", UUID: "GPU-1", MemoryMB: 24564, Capability: gpu.Capability{Major: 8, Minor: 9}},
			},
		},
		MinCapability: 75,
		Flags:         gpu.CodegenFlags([]int{75, 90}),
	})

	for _, want := range []string{"RTX 4090", "8.9", "supported", "12.4", "-gencode arch=compute_75,code=sm_75", "arch=compute_90,code=sm_90"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderGPUCheck_Unsupported(t *testing.T) {
	dev := gpu.Device{Index: 1, Name: "GTX 1080", Capability: gpu.Capability{Major: 6, Minor: 1}}
	out := RenderGPUCheck(GPUCheck{
		Report:        gpu.Report{NVMLOk: true, Devices: []gpu.Device{dev}},
		MinCapability: 75,
		Err:           &gpu.UnsupportedCapabilityError{Device: dev, Min: 75},
	})

	if !strings.Contains(out, "unsupported") || !strings.Contains(out, "less than 7.5") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "-gencode") {
		t.Error("no flags should be shown when validation fails")
	}
}

func TestRenderGPUCheck_NoNVML(t *testing.T) {
	out := RenderGPUCheck(GPUCheck{
		Report: gpu.Report{ErrorMessage: "NVML support disabled"},
		Flags:  gpu.CodegenFlags([]int{75}),
	})
	if !strings.Contains(out, "UNAVAILABLE") || !strings.Contains(out, "NVML support disabled") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "arch=compute_75,code=sm_75") {
		t.Error("flags are produced even without visible devices")
	}
}

func TestRenderBuildSummary(t *testing.T) {
	out := RenderBuildSummary(Summary{
		Name:        "NativeTorchCudaOps",
		CUDARelease: "12.4",
		Devices:     2,
		Artifact:    "build/NativeTorchCudaOps.pyd",
		Target:      "runtimes/win-x64/native/NativeTorchCudaOps.dll",
		Digest:      "abc123",
		Duration:    1500 * time.Millisecond,
	})
	for _, want := range []string{"NativeTorchCudaOps", "12.4", "win-x64", "abc123", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFormatCUDAVersion(t *testing.T) {
	tests := map[int]string{12040: "12.4", 11080: "11.8", 0: "unknown"}
	for in, want := range tests {
		if got := FormatCUDAVersion(in); got != want {
			t.Errorf("FormatCUDAVersion(%d) = %q, want %q", in, got, want)
		}
	}
}

