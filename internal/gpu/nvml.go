//go:build cuda

package gpu

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlDevice wraps nvml.Device to implement DeviceHandle
type nvmlDevice struct {
	device nvml.Device
}

func (w nvmlDevice) Name() (string, error) {
	name, ret := w.device.GetName()
	return name, nvmlError(ret)
}

func (w nvmlDevice) UUID() (string, error) {
	uuid, ret := w.device.GetUUID()
	return uuid, nvmlError(ret)
}

func (w nvmlDevice) MemoryTotal() (uint64, error) {
	mem, ret := w.device.GetMemoryInfo()
	return mem.Total, nvmlError(ret)
}

func (w nvmlDevice) CudaComputeCapability() (int, int, error) {
	major, minor, ret := w.device.GetCudaComputeCapability()
	return major, minor, nvmlError(ret)
}

// NVMLDriver implements Driver using the actual NVML library
type NVMLDriver struct{}

// NewNVMLDriver creates a new NVML-backed driver
func NewNVMLDriver() Driver {
	return &NVMLDriver{}
}

// Init initializes NVML
func (d *NVMLDriver) Init() error {
	return nvmlError(nvml.Init())
}

// Shutdown shuts down NVML
func (d *NVMLDriver) Shutdown() error {
	return nvmlError(nvml.Shutdown())
}

// DeviceCount returns the number of visible GPU devices
func (d *NVMLDriver) DeviceCount() (int, error) {
	count, ret := nvml.DeviceGetCount()
	return count, nvmlError(ret)
}

// DeviceByIndex returns a handle to a GPU device
func (d *NVMLDriver) DeviceByIndex(index int) (DeviceHandle, error) {
	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, nvmlError(ret)
	}
	return nvmlDevice{device: device}, nil
}

// DriverVersion returns the kernel driver version
func (d *NVMLDriver) DriverVersion() (string, error) {
	version, ret := nvml.SystemGetDriverVersion()
	return version, nvmlError(ret)
}

// CUDADriverVersion returns the CUDA driver API version (e.g. 12020)
func (d *NVMLDriver) CUDADriverVersion() (int, error) {
	version, ret := nvml.SystemGetCudaDriverVersion()
	return version, nvmlError(ret)
}

func nvmlError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNVML, nvml.ErrorString(ret))
}
