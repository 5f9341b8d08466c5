//go:build !cuda

package gpu

// disabledDriver reports NVML as unavailable for builds without CUDA support.
type disabledDriver struct{}

// NewNVMLDriver returns a driver whose Init always fails with ErrNVMLDisabled.
func NewNVMLDriver() Driver {
	return disabledDriver{}
}

func (disabledDriver) Init() error { return ErrNVMLDisabled }
func (disabledDriver) Shutdown() error { return nil }
func (disabledDriver) DeviceCount() (int, error) { return 0, ErrNVMLDisabled }
func (disabledDriver) DeviceByIndex(int) (DeviceHandle, error) { return nil, ErrNVMLDisabled }
func (disabledDriver) DriverVersion() (string, error) { return "", ErrNVMLDisabled }
func (disabledDriver) CUDADriverVersion() (int, error) { return 0, ErrNVMLDisabled }
