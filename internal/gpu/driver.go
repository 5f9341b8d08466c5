package gpu

import "errors"

var (
	// ErrNVML wraps failures reported by the NVML library.
	ErrNVML = errors.New("nvml error")
	// ErrNVMLDisabled is returned by the driver of binaries built without the cuda tag.
	ErrNVMLDisabled = errors.New("NVML disabled: rebuild with -tags cuda")
)

// DeviceHandle is the per-device subset of NVML used for detection
type DeviceHandle interface {
	Name() (string, error)
	UUID() (string, error)
	MemoryTotal() (uint64, error)
	CudaComputeCapability() (major, minor int, err error)
}

// Driver is the subset of the GPU driver API used for detection (mockable)
type Driver interface {
	Init() error
	Shutdown() error
	DeviceCount() (int, error)
	DeviceByIndex(index int) (DeviceHandle, error)
	DriverVersion() (string, error)
	CUDADriverVersion() (int, error)
}
