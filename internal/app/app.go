package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/manwithadodla/quality-assessment-protocol/internal/builders"
	"github.com/manwithadodla/quality-assessment-protocol/internal/config"
	"github.com/manwithadodla/quality-assessment-protocol/internal/ctxlog"
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/registry"
	"github.com/manwithadodla/quality-assessment-protocol/internal/sublist"
)

// AppConfig holds everything an App instance needs to run.
type AppConfig struct {
	ConfigPath   string
	SublistPath  string
	LogFormat    string
	LogLevel     string
	WorkerCount  int
	AssembleOnly bool
}

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	handlers *engine.HandlerSet
	runFile  *config.RunFile
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, builder registry
// and handler set. A failure to load configuration or an inconsistent
// registry is a fatal startup error and panics.
func NewApp(outW io.Writer, appConfig *AppConfig, modules ...engine.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	runFile, err := config.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Run configuration loaded.", "scans", len(runFile.Scans))

	if appConfig.SublistPath != "" {
		scans, err := sublist.Load(ctx, appConfig.SublistPath)
		if err != nil {
			panic(fmt.Errorf("failed to load sublist: %w", err))
		}
		runFile.Scans = append(runFile.Scans, scans...)
		logger.Debug("Sublist merged.", "scans", len(scans))
	}

	reg := registry.New()
	builders.Register(reg)
	if err := reg.Validate(builders.Catalog()); err != nil {
		// A mismatch between the producer table and the resource catalog is
		// a programmer error.
		panic(err)
	}
	logger.Debug("Builder registry validated.", "resources", len(reg.Resources()))

	hs := engine.NewHandlerSet()
	if len(modules) == 0 {
		modules = coreModules(runFile.Run)
	}
	for _, mod := range modules {
		mod.Register(hs)
	}
	logger.Debug("All handler modules registered.", "count", len(modules))

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		handlers: hs,
		runFile:  runFile,
	}
}

// Registry returns the application's builder registry. Primarily for tests.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// RunFile returns the loaded run configuration. Primarily for tests.
func (a *App) RunFile() *config.RunFile {
	return a.runFile
}
