package gpu

import (
	"encoding/json"
	"errors"
	"fmt"

	"nativeops/internal/fsutil"
	"nativeops/internal/logging"
)

// ErrDetectionFailed is returned when NVML is up but a device cannot be enumerated or read.
var ErrDetectionFailed = errors.New("GPU detection failed")

// Detector handles GPU detection and reporting
type Detector struct {
	driver Driver
	logger *logging.Logger
}

// NewDetector creates a new GPU detector backed by NVML
func NewDetector(logger *logging.Logger) *Detector {
	return &Detector{
		driver: NewNVMLDriver(),
		logger: logger,
	}
}

// NewDetectorWithDriver creates a detector with a custom driver (for testing)
func NewDetectorWithDriver(driver Driver, logger *logging.Logger) *Detector {
	return &Detector{
		driver: driver,
		logger: logger,
	}
}

// Detect enumerates visible devices and reads their compute capabilities.
// A driver that cannot be initialised yields a report with no devices and no error.
// Once the driver is up, every visible device must be readable: a failed count,
// handle or capability read returns ErrDetectionFailed along with the partial report.
func (d *Detector) Detect() (Report, error) {
	d.logger.Debug("gpu.detect.start", "Starting GPU detection", nil)

	report := Report{
		Devices: make([]Device, 0),
	}

	if err := d.driver.Init(); err != nil {
		report.NVMLOk = false
		report.ErrorMessage = fmt.Sprintf("Failed to initialize NVML: %v", err)
		d.logger.Warn("gpu.nvml.init.failed", "NVML initialization failed, no devices visible", map[string]interface{}{
			"error": err.Error(),
		})
		return report, nil
	}
	defer func() {
		if err := d.driver.Shutdown(); err != nil {
			d.logger.Debug("gpu.nvml.shutdown.failed", "NVML shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	report.NVMLOk = true

	if driverVersion, err := d.driver.DriverVersion(); err != nil {
		d.logger.Warn("gpu.driver.version.failed", "Failed to get driver version", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		report.DriverVersion = driverVersion
	}

	if cudaVersion, err := d.driver.CUDADriverVersion(); err != nil {
		d.logger.Warn("gpu.cuda.version.failed", "Failed to get CUDA version", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		report.CUDAVersion = cudaVersion
	}

	count, err := d.driver.DeviceCount()
	if err != nil {
		report.ErrorMessage = fmt.Sprintf("Failed to get device count: %v", err)
		return report, fmt.Errorf("%w: device count: %v", ErrDetectionFailed, err)
	}

	d.logger.Info("gpu.device.count", "Found GPU devices", map[string]interface{}{
		"count": count,
	})

	for i := 0; i < count; i++ {
		handle, err := d.driver.DeviceByIndex(i)
		if err != nil {
			report.ErrorMessage = fmt.Sprintf("Failed to get handle for device %d: %v", i, err)
			return report, fmt.Errorf("%w: device %d handle: %v", ErrDetectionFailed, i, err)
		}

		major, minor, err := handle.CudaComputeCapability()
		if err != nil {
			report.ErrorMessage = fmt.Sprintf("Failed to read compute capability of device %d: %v", i, err)
			return report, fmt.Errorf("%w: device %d capability: %v", ErrDetectionFailed, i, err)
		}

		device := Device{
			Index:      i,
			Capability: Capability{Major: major, Minor: minor},
		}

		if name, err := handle.Name(); err == nil {
			device.Name = name
		}
		if uuid, err := handle.UUID(); err == nil {
			device.UUID = uuid
		}
		if total, err := handle.MemoryTotal(); err == nil {
			device.MemoryMB = total / (1024 * 1024)
		}

		report.Devices = append(report.Devices, device)

		d.logger.Info("gpu.device.detected", "GPU device detected", map[string]interface{}{
			"index":              i,
			"name":               device.Name,
			"compute_capability": device.Capability.String(),
		})
	}

	return report, nil
}

// SaveReport saves the GPU report to a JSON file
func (d *Detector) SaveReport(report Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := fsutil.AtomicWriteFile(path, data, fsutil.DefaultFilePermissions, d.logger); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	d.logger.Info("gpu.report.saved", "GPU report saved", map[string]interface{}{
		"filepath": path,
	})

	return nil
}
