package gpu

import "errors"

var errFake = errors.New("fake driver failure")

// fakeDriver is a mock implementation of Driver for testing
type fakeDriver struct {
	initErr        error
	countErr       error
	driverVersion  string
	cudaVersion    int
	devices        []fakeDevice
	handleErrIndex int
	shutdownCalls  int
}

// fakeDevice represents a mock GPU device
type fakeDevice struct {
	name          string
	uuid          string
	memoryTotal   uint64
	major         int
	minor         int
	capabilityErr error
}

func newFakeDriver(devices ...fakeDevice) *fakeDriver {
	return &fakeDriver{
		driverVersion:  "551.61",
		cudaVersion:    12040,
		devices:        devices,
		handleErrIndex: -1,
	}
}

func (f *fakeDriver) Init() error { return f.initErr }

func (f *fakeDriver) Shutdown() error {
	f.shutdownCalls++
	return nil
}

func (f *fakeDriver) DeviceCount() (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.devices), nil
}

func (f *fakeDriver) DeviceByIndex(index int) (DeviceHandle, error) {
	if index == f.handleErrIndex || index < 0 || index >= len(f.devices) {
		return nil, errFake
	}
	return f.devices[index], nil
}

func (f *fakeDriver) DriverVersion() (string, error) { return f.driverVersion, nil }

func (f *fakeDriver) CUDADriverVersion() (int, error) { return f.cudaVersion, nil }

func (d fakeDevice) Name() (string, error) { return d.name, nil }

func (d fakeDevice) UUID() (string, error) { return d.uuid, nil }

func (d fakeDevice) MemoryTotal() (uint64, error) { return d.memoryTotal, nil }

func (d fakeDevice) CudaComputeCapability() (int, int, error) {
	return d.major, d.minor, d.capabilityErr
}

var (
	rtx4090 = fakeDevice{name: "NVIDIA GeForce RTX 4090", uuid: "GPU-4090", memoryTotal: 24 << 30, major: 8, minor: 9}
	rtx2080 = fakeDevice{name: "NVIDIA GeForce RTX 2080", uuid: "GPU-2080", memoryTotal: 8 << 30, major: 7, minor: 5}
	gtx1080 = fakeDevice{name: "NVIDIA GeForce GTX 1080", uuid: "GPU-1080", memoryTotal: 8 << 30, major: 6, minor: 1}
)
