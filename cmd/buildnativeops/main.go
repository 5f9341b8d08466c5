package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"nativeops/internal/config"
	"nativeops/internal/gpu"
	"nativeops/internal/logging"
	"nativeops/internal/pipeline"
	"nativeops/internal/projectdir"
	"nativeops/internal/toolchain"
	"nativeops/internal/torchext"
)

const version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := projectdir.Root()

	cfg, err := config.Load(root)
	if err != nil {
		logger := logging.NewWriterLogger(logging.LevelInfo, logging.FormatText, os.Stderr)
		logger.Error("config.load.failed", fmt.Sprintf("Failed to load configuration: %v", err), map[string]interface{}{
			"root": root,
		})
		return 1
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		logger.Error("config.timeout.invalid", fmt.Sprintf("Invalid timeout: %v", err), nil)
		return 1
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Debug("config.loaded", "Configuration loaded", map[string]interface{}{
		"root":   root,
		"source": cfg.Source,
		"python": cfg.Python,
	})

	runner := toolchain.ExecRunner{}
	detector := gpu.NewDetector(logger)

	orchestrator := pipeline.New(cfg, root, pipeline.Deps{
		Verifier:    toolchain.NewVerifier(runner, logger),
		EnvResolver: toolchain.NewVCEnvResolver(runner, logger),
		Facility:    torchext.NewPythonFacility(runner, cfg.Python, runtime.GOOS, os.Stdout, logger),
		Prober:      gpu.NewProber(detector, cfg.GPU.MinCapability, cfg.GPU.TargetCapabilities, logger),
		Stdout:      os.Stdout,
	}, logger, version)

	return orchestrator.Run(ctx, args)
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)
	format := logging.Format(cfg.Format)
	if cfg.File != "" {
		return logging.NewFileLogger(level, format, cfg.File)
	}
	return logging.NewWriterLogger(level, format, os.Stderr), nil
}
