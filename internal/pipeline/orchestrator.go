// Package pipeline dispatches the command line to one of the terminal actions
// and runs the build pipeline.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"time"

	"nativeops/internal/builder"
	"nativeops/internal/config"
	"nativeops/internal/envcfg"
	"nativeops/internal/fsutil"
	"nativeops/internal/gpu"
	"nativeops/internal/install"
	"nativeops/internal/logging"
	"nativeops/internal/toolchain"
	"nativeops/internal/torchext"
	"nativeops/internal/ui"
)

const (
	// ReportFile is written into the build directory after a successful build.
	ReportFile = "build_report.json"
	// GPUReportFile is written into the build directory by "gpu-check --save".
	GPUReportFile = "gpu_report.json"
)

// CompilerVerifier confirms the CUDA compiler is usable.
type CompilerVerifier interface {
	Check(ctx context.Context) (toolchain.CompilerVersion, error)
}

// EnvResolver returns the platform compiler environment overlay.
type EnvResolver interface {
	Resolve(ctx context.Context, arch string) (map[string]string, error)
}

// Prober validates hardware and produces architecture flags.
type Prober interface {
	ArchitectureFlags() ([]string, error)
	LastReport() gpu.Report
	SaveReport(path string) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Verifier    CompilerVerifier
	EnvResolver EnvResolver
	Facility    torchext.Facility
	Prober      Prober

	// BaseEnv snapshots the environment the build starts from; defaults to envcfg.FromOS.
	BaseEnv func() *envcfg.Environment
	Stdout  io.Writer
	GOOS    string
}

// BuildReport is persisted as build/build_report.json.
type BuildReport struct {
	RunID        string                    `json:"run_id"`
	Name         string                    `json:"name"`
	Version      string                    `json:"version"`
	ConfigSource string                    `json:"config_source,omitempty"`
	StartedAt    time.Time                 `json:"started_at"`
	FinishedAt   time.Time                 `json:"finished_at"`
	Compiler     toolchain.CompilerVersion `json:"compiler"`
	GPU          gpu.Report                `json:"gpu"`
	Build        *builder.Result           `json:"build"`
	Install      *install.Result           `json:"install"`
}

// Orchestrator runs one invocation of the tool.
type Orchestrator struct {
	cfg     config.Config
	root    string
	deps    Deps
	logger  *logging.Logger
	version string
}

// New creates an orchestrator for the project at root.
func New(cfg config.Config, root string, deps Deps, logger *logging.Logger, version string) *Orchestrator {
	if deps.BaseEnv == nil {
		deps.BaseEnv = envcfg.FromOS
	}
	if deps.Stdout == nil {
		deps.Stdout = io.Discard
	}
	if deps.GOOS == "" {
		deps.GOOS = runtime.GOOS
	}
	return &Orchestrator{
		cfg:     cfg,
		root:    root,
		deps:    deps,
		logger:  logger,
		version: version,
	}
}

// Run dispatches args and returns the process exit code.
func (o *Orchestrator) Run(ctx context.Context, args []string) int {
	mode := ParseMode(args)
	o.logger.Debug("cli.dispatch", "Selected mode", map[string]interface{}{
		"mode": mode.String(),
		"args": args,
	})

	switch mode {
	case ModeIncludes:
		return o.runIncludes(ctx)
	case ModeClean:
		return o.runClean()
	case ModeGPUCheck:
		return o.runGPUCheck(hasToken(args, "--save"))
	case ModeHelp:
		PrintUsage(o.deps.Stdout, o.version)
		return 0
	case ModeVersion:
		fmt.Fprintf(o.deps.Stdout, "buildnativeops version %s\n", o.version)
		return 0
	default:
		return o.runBuild(ctx)
	}
}

// runIncludes prints the framework paths without touching the filesystem or
// the environment.
func (o *Orchestrator) runIncludes(ctx context.Context) int {
	info, err := o.deps.Facility.Introspect(ctx, nil)
	if err != nil {
		return o.fail(Classify("include", err), err.Error())
	}

	o.logger.Info("torch.paths", "Torch include and library paths:", nil)
	for _, paths := range [][]string{info.IncludePaths, info.LibraryPaths} {
		if paths == nil {
			paths = []string{}
		}
		data, err := json.MarshalIndent(paths, "", "  ")
		if err != nil {
			return o.fail(Classify("include", err), err.Error())
		}
		fmt.Fprintln(o.deps.Stdout, string(data))
	}
	return 0
}

func (o *Orchestrator) runClean() int {
	buildPath := o.cfg.BuildPath(o.root)
	if fsutil.RemoveTree(buildPath) {
		o.logger.Info("clean.done", fmt.Sprintf("Cleaned build directory: %s", buildPath), map[string]interface{}{
			"path": buildPath,
		})
	} else {
		o.logger.Info("clean.skipped", "Build directory does not exist, nothing to clean.", map[string]interface{}{
			"path": buildPath,
		})
	}
	return 0
}

func (o *Orchestrator) runGPUCheck(save bool) int {
	flags, err := o.deps.Prober.ArchitectureFlags()
	fmt.Fprint(o.deps.Stdout, ui.RenderGPUCheck(ui.GPUCheck{
		Report:        o.deps.Prober.LastReport(),
		MinCapability: o.cfg.GPU.MinCapability,
		Flags:         flags,
		Err:           err,
	}))

	if save {
		buildPath := o.cfg.BuildPath(o.root)
		reportPath := filepath.Join(buildPath, GPUReportFile)
		if mkErr := fsutil.EnsureDirectory(buildPath); mkErr != nil {
			return o.fail(Classify("gpu-check.save", mkErr), mkErr.Error())
		}
		if saveErr := o.deps.Prober.SaveReport(reportPath); saveErr != nil {
			return o.fail(Classify("gpu-check.save", saveErr), saveErr.Error())
		}
		fmt.Fprintf(o.deps.Stdout, "Detailed report saved to: %s\n", reportPath)
	}

	if err != nil {
		return Classify("gpu-check", err).ExitCode()
	}
	return 0
}

func (o *Orchestrator) runBuild(ctx context.Context) int {
	started := time.Now()

	compiler, err := o.deps.Verifier.Check(ctx)
	if err != nil {
		return o.fail(Classify("nvcc.check", err), err.Error())
	}

	o.checkTools()

	overlay, err := o.deps.EnvResolver.Resolve(ctx, o.cfg.CompilerArch)
	if err != nil {
		return o.fail(Classify("compiler.env", err), err.Error())
	}
	env := o.deps.BaseEnv()
	env.Configure(overlay)

	buildPath := o.cfg.BuildPath(o.root)
	runtimesPath := o.cfg.RuntimesPath(o.root)
	if err := fsutil.EnsureDirectory(buildPath); err != nil {
		return o.fail(Classify("build.mkdir", err), err.Error())
	}

	report, failure := o.buildAndInstall(ctx, env, buildPath, runtimesPath)
	if failure != nil {
		return o.fail(failure, fmt.Sprintf("Build failed: %v", failure.Err))
	}

	report.Compiler = compiler
	report.StartedAt = started
	report.FinishedAt = time.Now()
	if err := WriteReport(filepath.Join(buildPath, ReportFile), report, o.logger); err != nil {
		o.logger.Warn("build.report.failed", "Failed to write build report", map[string]interface{}{
			"error": err.Error(),
		})
	}

	fmt.Fprint(o.deps.Stdout, ui.RenderBuildSummary(ui.Summary{
		Name:        report.Name,
		CUDARelease: compiler.Release,
		Devices:     len(report.GPU.Devices),
		Artifact:    report.Build.Artifact,
		Target:      report.Install.Target,
		Digest:      report.Install.Digest,
		Duration:    report.FinishedAt.Sub(report.StartedAt),
	}))

	o.logger.Info("build.succeeded", "Build succeeded.", map[string]interface{}{
		"target":      report.Install.Target,
		"duration_ms": report.FinishedAt.Sub(started).Milliseconds(),
	})
	return 0
}

// buildAndInstall compiles the extension and copies it into the runtimes tree.
// Nothing is copied when the build fails.
func (o *Orchestrator) buildAndInstall(ctx context.Context, env *envcfg.Environment, buildPath, runtimesPath string) (*BuildReport, *Failure) {
	info, err := o.deps.Facility.Introspect(ctx, env.Environ())
	if err != nil {
		return nil, Classify("torch.introspect", err)
	}

	b := builder.New(o.deps.Prober, o.deps.Facility, builder.Options{
		ExtraCFlags:       o.cfg.Flags.ExtraCFlags,
		ExtraCUDACFlags:   o.cfg.Flags.ExtraCUDACFlags,
		ExtraLDFlags:      o.cfg.Flags.ExtraLDFlags,
		ExtraIncludePaths: o.cfg.Flags.ExtraIncludePaths,
		Verbose:           !o.cfg.Flags.Quiet,
	}, o.logger)

	result, err := b.Build(ctx, builder.Request{
		Name:     o.cfg.BuildName,
		Sources:  o.cfg.SourcePaths(o.root),
		BuildDir: buildPath,
		Env:      env,
	})
	if err != nil {
		return nil, Classify("build", err)
	}

	installer := install.NewInstaller(install.Layout{
		Name:              o.cfg.BuildName,
		RuntimeIdentifier: o.cfg.RuntimeIdentifier,
		LibExt:            info.LibExt,
		CLibExt:           info.CLibExt,
	}, o.logger)
	installed, err := installer.Install(buildPath, runtimesPath)
	if err != nil {
		return nil, Classify("install", err)
	}

	return &BuildReport{
		RunID:        o.logger.RunID(),
		Name:         o.cfg.BuildName,
		Version:      o.version,
		ConfigSource: o.cfg.Source,
		GPU:          o.deps.Prober.LastReport(),
		Build:        result,
		Install:      installed,
	}, nil
}

// checkTools logs the build tools visible on PATH. Missing tools are logged,
// not fatal.
func (o *Orchestrator) checkTools() {
	requirements := toolchain.BuildRequirements(o.cfg.Python, o.deps.GOOS)
	for _, status := range toolchain.ResolveTools(requirements) {
		if status.Found == "" {
			continue
		}
		o.logger.Debug("tool.found", "Build tool found", map[string]interface{}{
			"tool": status.Found,
			"path": status.Path,
		})
	}
	if err := toolchain.CheckRequiredTools(requirements); err != nil {
		o.logger.Warn("tool.missing", err.Error(), nil)
	}
}

func hasToken(args []string, token string) bool {
	for _, arg := range args {
		if arg == token {
			return true
		}
	}
	return false
}

func (o *Orchestrator) fail(f *Failure, message string) int {
	o.logger.Error(f.Op+".failed", message, map[string]interface{}{
		"kind":  string(f.Kind),
		"error": f.Err.Error(),
	})
	return f.ExitCode()
}

// WriteReport stores report as indented JSON.
func WriteReport(path string, report *BuildReport, logger *logging.Logger) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal build report: %w", err)
	}
	if err := fsutil.AtomicWriteFile(path, data, fsutil.DefaultFilePermissions, logger); err != nil {
		return fmt.Errorf("failed to write build report: %w", err)
	}
	logger.Debug("build.report.saved", "Build report saved", map[string]interface{}{
		"path": path,
	})
	return nil
}
