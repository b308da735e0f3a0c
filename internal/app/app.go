package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/udo/internal/config"
	"github.com/vk/udo/internal/ctxlog"
	"github.com/vk/udo/internal/dispatch"
	"github.com/vk/udo/internal/registry"
	"github.com/vk/udo/internal/tempfile"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	registry   *registry.Registry
	temp       *tempfile.Manager
	dispatcher *dispatch.Dispatcher
	runtime    *config.Runtime
}

// NewApp is the constructor for the main application. It loads the optional
// runtime config file, builds an isolated logger, registers the compiled-in
// modules and wires the dispatcher. With no modules given the core set is
// registered.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	var fileRuntime *config.Runtime
	if appConfig.ConfigPath != "" {
		rt, err := loader.LoadRuntime(context.Background(), appConfig.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		fileRuntime = rt
	}

	rt, err := appConfig.effective(fileRuntime)
	if err != nil {
		return nil, err
	}

	logger := newLogger(rt.LogLevel, rt.LogFormat, outW)
	logger.Debug("Logger configured successfully.", "level", rt.LogLevel, "format", rt.LogFormat)

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	reg.Register(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "entrypoints", reg.Entrypoints())

	temp := tempfile.New()
	opts := []dispatch.Option{
		dispatch.WithFunctionsPath(rt.FunctionsPath),
		dispatch.WithWorkers(rt.Workers),
		dispatch.WithAliases(rt.Aliases),
		dispatch.WithDefaults(rt.Defaults),
	}
	if rt.ScratchRoot != "" {
		opts = append(opts, dispatch.WithScratchRoot(rt.ScratchRoot))
	}
	disp := dispatch.New(reg, temp, opts...)
	logger.Debug("Dispatcher configured.",
		"functions_path", rt.FunctionsPath,
		"scratch_root", disp.ScratchRoot(),
		"aliases", len(rt.Aliases),
		"defaults", len(rt.Defaults),
	)

	return &App{
		outW:       outW,
		logger:     logger,
		registry:   reg,
		temp:       temp,
		dispatcher: disp,
		runtime:    rt,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Runtime returns the effective runtime configuration.
func (a *App) Runtime() *config.Runtime {
	return a.runtime
}

// ScratchRoot is the directory invocations allocate scratch files under when
// a request does not name its own.
func (a *App) ScratchRoot() string {
	return a.dispatcher.ScratchRoot()
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
