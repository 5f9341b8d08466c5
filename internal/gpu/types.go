package gpu

import "fmt"

// Capability is a CUDA compute capability (major.minor)
type Capability struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// Code combines the pair into the two-digit form used by nvcc (7.5 -> 75)
func (c Capability) Code() int {
	return c.Major*10 + c.Minor
}

func (c Capability) String() string {
	return fmt.Sprintf("%d.%d", c.Major, c.Minor)
}

// Device represents information about a single GPU
type Device struct {
	Index      int        `json:"index"`
	Name       string     `json:"name"`
	UUID       string     `json:"uuid"`
	MemoryMB   uint64     `json:"memory_mb"`
	Capability Capability `json:"compute_capability"`
}

// Report represents the complete GPU detection report
type Report struct {
	DriverVersion string   `json:"driver_version"`
	CUDAVersion   int      `json:"cuda_version"`
	NVMLOk        bool     `json:"nvml_ok"`
	Devices       []Device `json:"devices"`
	ErrorMessage  string   `json:"error_message,omitempty"`
}
