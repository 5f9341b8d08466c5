package gpu

import (
	"errors"
	"fmt"
	"sort"

	"nativeops/internal/logging"
)

// ErrUnsupportedHardware marks a device below the supported compute capability floor.
var ErrUnsupportedHardware = errors.New("unsupported GPU")

// UnsupportedCapabilityError names the first device below the floor.
type UnsupportedCapabilityError struct {
	Device Device
	Min    int
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("GPUs with compute capability less than %d.%d are not supported (device %d %q has %s)",
		e.Min/10, e.Min%10, e.Device.Index, e.Device.Name, e.Device.Capability)
}

func (e *UnsupportedCapabilityError) Unwrap() error {
	return ErrUnsupportedHardware
}

// ValidateCapabilities fails on the first device whose capability code is below min.
func ValidateCapabilities(devices []Device, min int) error {
	for _, device := range devices {
		if device.Capability.Code() < min {
			return &UnsupportedCapabilityError{Device: device, Min: min}
		}
	}
	return nil
}

// CodegenFlags emits one "-gencode arch=compute_X,code=sm_X" pair per target,
// ascending and without duplicates. Detected hardware plays no part in this.
func CodegenFlags(targets []int) []string {
	unique := make([]int, 0, len(targets))
	seen := make(map[int]struct{}, len(targets))
	for _, target := range targets {
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		unique = append(unique, target)
	}
	sort.Ints(unique)

	flags := make([]string, 0, 2*len(unique))
	for _, target := range unique {
		flags = append(flags, "-gencode", fmt.Sprintf("arch=compute_%d,code=sm_%d", target, target))
	}
	return flags
}

// Prober validates the visible hardware and produces nvcc architecture flags.
type Prober struct {
	detector      *Detector
	minCapability int
	targets       []int
	logger        *logging.Logger
	last          Report
}

// NewProber creates a prober enforcing minCapability and emitting flags for targets.
func NewProber(detector *Detector, minCapability int, targets []int, logger *logging.Logger) *Prober {
	return &Prober{
		detector:      detector,
		minCapability: minCapability,
		targets:       append([]int(nil), targets...),
		logger:        logger,
	}
}

// ArchitectureFlags detects devices, rejects any below the floor before a single
// flag is generated, then returns the codegen flags for the fixed target list.
// Errors are returned unlogged; the caller reports them.
func (p *Prober) ArchitectureFlags() ([]string, error) {
	report, err := p.detector.Detect()
	p.last = report
	if err != nil {
		return nil, err
	}

	if err := ValidateCapabilities(report.Devices, p.minCapability); err != nil {
		return nil, err
	}

	flags := CodegenFlags(p.targets)
	p.logger.Debug("gpu.codegen.flags", "Generated codegen flags", map[string]interface{}{
		"targets": p.targets,
	})
	return flags, nil
}

// LastReport returns the detection report from the most recent ArchitectureFlags call.
func (p *Prober) LastReport() Report {
	return p.last
}

// SaveReport writes the most recent detection report to path.
func (p *Prober) SaveReport(path string) error {
	return p.detector.SaveReport(p.last, path)
}
