package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nativeops/internal/builder"
	"nativeops/internal/config"
	"nativeops/internal/envcfg"
	"nativeops/internal/gpu"
	"nativeops/internal/logging"
	"nativeops/internal/toolchain"
	"nativeops/internal/torchext"
)

type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) Check(context.Context) (toolchain.CompilerVersion, error) {
	f.calls++
	if f.err != nil {
		return toolchain.CompilerVersion{}, f.err
	}
	return toolchain.CompilerVersion{Raw: "Cuda compilation tools, release 12.4, V12.4.99", Release: "12.4"}, nil
}

type fakeResolver struct {
	overlay map[string]string
	err     error
	calls   int
}

func (f *fakeResolver) Resolve(context.Context, string) (map[string]string, error) {
	f.calls++
	return f.overlay, f.err
}

type fakeFacility struct {
	info          torchext.Introspection
	introspectErr error
	loadErr       error
	introspectEnv [][]string
	loads         []torchext.LoadRequest
}

func (f *fakeFacility) Introspect(_ context.Context, env []string) (torchext.Introspection, error) {
	f.introspectEnv = append(f.introspectEnv, env)
	return f.info, f.introspectErr
}

func (f *fakeFacility) Load(_ context.Context, req torchext.LoadRequest) (string, error) {
	f.loads = append(f.loads, req)
	if f.loadErr != nil {
		return "", f.loadErr
	}
	artifact := filepath.Join(req.BuildDirectory, req.Name+f.info.LibExt)
	if err := os.WriteFile(artifact, []byte("ELF shared object"), 0o644); err != nil {
		return "", err
	}
	return artifact, nil
}

type fakeProber struct {
	report gpu.Report
	err    error
	calls  int
}

func (f *fakeProber) ArchitectureFlags() ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return gpu.CodegenFlags(config.DefaultTargetCapabilities), nil
}

func (f *fakeProber) LastReport() gpu.Report {
	return f.report
}

func (f *fakeProber) SaveReport(path string) error {
	data, err := json.Marshal(f.report)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type harness struct {
	root     string
	stdout   bytes.Buffer
	logs     bytes.Buffer
	verifier *fakeVerifier
	resolver *fakeResolver
	facility *fakeFacility
	prober   *fakeProber
	cfg      config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		root:     t.TempDir(),
		verifier: &fakeVerifier{},
		resolver: &fakeResolver{overlay: map[string]string{"path": "/vc/bin"}},
		facility: &fakeFacility{info: torchext.Introspection{
			IncludePaths: []string{"/torch/include", "/torch/include/torch/csrc/api/include"},
			LibraryPaths: []string{"/torch/lib"},
			LibExt:       ".so",
			CLibExt:      ".so",
		}},
		prober: &fakeProber{report: gpu.Report{NVMLOk: true, Devices: []gpu.Device{
			{Index: 0, Name: "RTX 4090", Capability: gpu.Capability{Major: 8, Minor: 9}},
		}}},
		cfg: config.DefaultConfig(),
	}
}

func (h *harness) run(args ...string) int {
	logger := logging.NewWriterLogger(logging.LevelDebug, logging.FormatText, &h.logs)
	o := New(h.cfg, h.root, Deps{
		Verifier:    h.verifier,
		EnvResolver: h.resolver,
		Facility:    h.facility,
		Prober:      h.prober,
		BaseEnv: func() *envcfg.Environment {
			return envcfg.New([]string{"PATH=/usr/bin"})
		},
		Stdout: &h.stdout,
	}, logger, "test")
	return o.Run(context.Background(), args)
}

func (h *harness) buildDir() string {
	return filepath.Join(h.root, "build")
}

func (h *harness) runtimesDir() string {
	return filepath.Join(h.root, "runtimes")
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("%s should not exist (stat err = %v)", path, err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		args []string
		want Mode
	}{
		{nil, ModeBuild},
		{[]string{"unknown"}, ModeBuild},
		{[]string{"include"}, ModeIncludes},
		{[]string{"clean"}, ModeClean},
		{[]string{"x", "clean"}, ModeClean},
		{[]string{"clean", "include"}, ModeIncludes},
		{[]string{"gpu-check"}, ModeGPUCheck},
		{[]string{"--help"}, ModeHelp},
		{[]string{"-h"}, ModeHelp},
		{[]string{"version"}, ModeVersion},
		{[]string{"CLEAN"}, ModeBuild},
		{[]string{"Include", "clean"}, ModeClean},
		{[]string{"HELP"}, ModeBuild},
	}
	for _, tt := range tests {
		if got := ParseMode(tt.args); got != tt.want {
			t.Errorf("ParseMode(%v) = %s, want %s", tt.args, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{toolchain.ErrToolchainNotFound, KindEnvironmentUnavailable},
		{fmt.Errorf("wrap: %w", toolchain.ErrToolchainInvocation), KindEnvironmentUnavailable},
		{toolchain.ErrCompilerEnvUnavailable, KindEnvironmentUnavailable},
		{torchext.ErrFacilityUnavailable, KindEnvironmentUnavailable},
		{&gpu.UnsupportedCapabilityError{Min: 75}, KindUnsupportedHardware},
		{fmt.Errorf("%w: device 1 capability: nvml error", gpu.ErrDetectionFailed), KindEnvironmentUnavailable},
		{fmt.Errorf("%w: boom", builder.ErrBuildFailed), KindBuildFailure},
		{fs.ErrNotExist, KindBuildFailure},
	}
	for _, tt := range tests {
		f := Classify("op", tt.err)
		if f.Kind != tt.want {
			t.Errorf("Classify(%v).Kind = %s, want %s", tt.err, f.Kind, tt.want)
		}
		if f.ExitCode() != 1 {
			t.Errorf("ExitCode() = %d, want 1", f.ExitCode())
		}
		if !errors.Is(f, tt.err) {
			t.Errorf("Failure should unwrap to %v", tt.err)
		}
	}

	inner := Classify("inner", gpu.ErrUnsupportedHardware)
	if got := Classify("outer", fmt.Errorf("ctx: %w", inner)); got != inner {
		t.Error("an existing Failure must be returned unchanged")
	}
}

func TestRun_Include(t *testing.T) {
	h := newHarness(t)

	if code := h.run("include"); code != 0 {
		t.Fatalf("exit code = %d, logs:\n%s", code, h.logs.String())
	}

	dec := json.NewDecoder(strings.NewReader(h.stdout.String()))
	var includes, libs []string
	if err := dec.Decode(&includes); err != nil {
		t.Fatalf("first array: %v", err)
	}
	if err := dec.Decode(&libs); err != nil {
		t.Fatalf("second array: %v", err)
	}
	if len(includes) != 2 || libs[0] != "/torch/lib" {
		t.Errorf("includes = %v, libs = %v", includes, libs)
	}
	if !strings.Contains(h.stdout.String(), "[\n  \"/torch/include\"") {
		t.Errorf("arrays should be indented by two spaces:\n%s", h.stdout.String())
	}

	if h.verifier.calls != 0 || h.resolver.calls != 0 {
		t.Error("include must not check the toolchain or resolve the compiler environment")
	}
	if h.facility.introspectEnv[0] != nil {
		t.Error("include must use the unmodified process environment")
	}
	assertMissing(t, h.buildDir())
}

func TestRun_IncludeWinsOverClean(t *testing.T) {
	h := newHarness(t)
	if err := os.MkdirAll(h.buildDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	if code := h.run("clean", "include"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if _, err := os.Stat(h.buildDir()); err != nil {
		t.Error("build directory must survive when include is also given")
	}
}

func TestRun_IncludeFacilityUnavailable(t *testing.T) {
	h := newHarness(t)
	h.facility.introspectErr = fmt.Errorf("%w: No module named 'torch'", torchext.ErrFacilityUnavailable)

	if code := h.run("include"); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if h.stdout.Len() != 0 {
		t.Errorf("nothing should be printed, got %q", h.stdout.String())
	}
}

func TestRun_CleanMissingDirectory(t *testing.T) {
	h := newHarness(t)

	if code := h.run("clean"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	assertMissing(t, h.buildDir())
	if !strings.Contains(h.logs.String(), "Build directory does not exist, nothing to clean.") {
		t.Errorf("missing log line:\n%s", h.logs.String())
	}
	if h.verifier.calls != 0 {
		t.Error("clean must not check the toolchain")
	}
}

func TestRun_CleanExistingDirectory(t *testing.T) {
	h := newHarness(t)
	nested := filepath.Join(h.buildDir(), "obj")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "kernel.o"), []byte("o"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := h.run("clean"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	assertMissing(t, h.buildDir())
	if !strings.Contains(h.logs.String(), "Cleaned build directory: ") {
		t.Errorf("missing log line:\n%s", h.logs.String())
	}
}

func TestRun_BuildSucceeds(t *testing.T) {
	h := newHarness(t)

	if code := h.run(); code != 0 {
		t.Fatalf("exit code = %d, logs:\n%s", code, h.logs.String())
	}

	target := filepath.Join(h.runtimesDir(), "win-x64", "native", "NativeTorchCudaOps.so")
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("installed artifact missing: %v", err)
	}
	if string(data) != "ELF shared object" {
		t.Errorf("installed content = %q", data)
	}

	if len(h.facility.loads) != 1 {
		t.Fatalf("expected one Load, got %d", len(h.facility.loads))
	}
	req := h.facility.loads[0]
	if !containsEntry(req.Env, "PATH=/vc/bin"+string(os.PathListSeparator)+"/usr/bin") {
		t.Errorf("compiler environment not applied: %v", req.Env)
	}
	if req.Sources[0] != filepath.Join(h.root, "src", "nativeops.cpp") {
		t.Errorf("sources = %v", req.Sources)
	}
	if !req.Verbose {
		t.Error("builds are verbose by default")
	}

	raw, err := os.ReadFile(filepath.Join(h.buildDir(), ReportFile))
	if err != nil {
		t.Fatalf("build report missing: %v", err)
	}
	var report BuildReport
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("build report is not JSON: %v", err)
	}
	if report.Compiler.Release != "12.4" || report.Install.Target != target || report.RunID == "" {
		t.Errorf("unexpected report %+v", report)
	}

	if !strings.Contains(h.logs.String(), "Build succeeded.") {
		t.Errorf("missing success log:\n%s", h.logs.String())
	}
	if !strings.Contains(h.stdout.String(), "NativeTorchCudaOps") {
		t.Errorf("summary not printed:\n%s", h.stdout.String())
	}
}

func TestRun_CompilerMissing(t *testing.T) {
	h := newHarness(t)
	h.verifier.err = toolchain.ErrToolchainNotFound

	if code := h.run(); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if h.resolver.calls != 0 || len(h.facility.loads) != 0 {
		t.Error("nothing may run after the compiler check fails")
	}
	assertMissing(t, h.buildDir())
	if !strings.Contains(h.logs.String(), "'nvcc' not found") {
		t.Errorf("missing error log:\n%s", h.logs.String())
	}
}

func TestRun_CompilerEnvUnavailable(t *testing.T) {
	h := newHarness(t)
	h.resolver.err = toolchain.ErrCompilerEnvUnavailable

	if code := h.run(); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	assertMissing(t, h.buildDir())
}

func TestRun_UnsupportedHardware(t *testing.T) {
	h := newHarness(t)
	h.prober.err = &gpu.UnsupportedCapabilityError{
		Device: gpu.Device{Name: "GTX 1080", Capability: gpu.Capability{Major: 6, Minor: 1}},
		Min:    75,
	}

	if code := h.run(); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if len(h.facility.loads) != 0 {
		t.Error("no build may start on unsupported hardware")
	}
	assertMissing(t, h.runtimesDir())
	if !strings.Contains(h.logs.String(), "unsupported_hardware") {
		t.Errorf("failure kind not logged:\n%s", h.logs.String())
	}
}

func TestRun_UnreadableGPU(t *testing.T) {
	h := newHarness(t)
	h.prober.err = fmt.Errorf("%w: device 1 capability: nvml error", gpu.ErrDetectionFailed)

	if code := h.run(); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if len(h.facility.loads) != 0 {
		t.Error("no build may start when a GPU cannot be read")
	}
	assertMissing(t, h.runtimesDir())
	if !strings.Contains(h.logs.String(), "environment_unavailable") {
		t.Errorf("failure kind not logged:\n%s", h.logs.String())
	}
}

func TestRun_FacilityFailureInstallsNothing(t *testing.T) {
	h := newHarness(t)
	h.facility.loadErr = fmt.Errorf("%w: Error building extension", torchext.ErrLoadFailed)

	if code := h.run(); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	assertMissing(t, h.runtimesDir())
	assertMissing(t, filepath.Join(h.buildDir(), ReportFile))
	if !strings.Contains(h.logs.String(), "Build failed: ") {
		t.Errorf("missing failure log:\n%s", h.logs.String())
	}
}

func TestRun_GPUCheck(t *testing.T) {
	h := newHarness(t)

	if code := h.run("gpu-check"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(h.stdout.String(), "arch=compute_90,code=sm_90") {
		t.Errorf("flags missing:\n%s", h.stdout.String())
	}

	assertMissing(t, h.buildDir())

	h2 := newHarness(t)
	h2.prober.err = &gpu.UnsupportedCapabilityError{Min: 75}
	if code := h2.run("gpu-check"); code != 1 {
		t.Errorf("exit code = %d, want 1 on unsupported hardware", code)
	}
}

func TestRun_GPUCheckSave(t *testing.T) {
	h := newHarness(t)

	if code := h.run("gpu-check", "--save"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	raw, err := os.ReadFile(filepath.Join(h.buildDir(), GPUReportFile))
	if err != nil {
		t.Fatalf("gpu report missing: %v", err)
	}
	var report gpu.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("gpu report is not JSON: %v", err)
	}
	if len(report.Devices) != 1 || report.Devices[0].Name != "RTX 4090" {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestRun_HelpAndVersion(t *testing.T) {
	h := newHarness(t)
	if code := h.run("help"); code != 0 || !strings.Contains(h.stdout.String(), "Usage:") {
		t.Errorf("help: code=%d output=%q", code, h.stdout.String())
	}
	if !strings.Contains(h.stdout.String(), "go build -tags cuda") {
		t.Errorf("help should name the cuda build tag:\n%s", h.stdout.String())
	}

	h2 := newHarness(t)
	if code := h2.run("version"); code != 0 || !strings.Contains(h2.stdout.String(), "version test") {
		t.Errorf("version: code=%d output=%q", code, h2.stdout.String())
	}
}

func containsEntry(env []string, entry string) bool {
	for _, e := range env {
		if e == entry {
			return true
		}
	}
	return false
}

