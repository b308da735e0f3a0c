package app

import (
	"context"
	"time"

	"github.com/vk/udo/internal/dispatch"
	"github.com/vk/udo/internal/udo"
)

// Run dispatches a single request and returns its result.
func (a *App) Run(ctx context.Context, req dispatch.Request) udo.Result {
	ctx = a.context(ctx)
	a.logger.Debug("App.Run method started.", "operation", req.Operation, "message", req.Message.String())
	res := a.dispatcher.Dispatch(ctx, req)
	a.logger.Debug("App.Run method finished.", "ok", res.OK())
	return res
}

// RunAll dispatches reqs concurrently, bounded by the configured worker
// count, and returns the results in request order.
func (a *App) RunAll(ctx context.Context, reqs []dispatch.Request) []udo.Result {
	ctx = a.context(ctx)
	a.logger.Info("Starting concurrent execution.", "requests", len(reqs))
	results := a.dispatcher.DispatchAll(ctx, reqs)
	a.logger.Info("Execution finished.")
	return results
}

// Operations lists the manifests found under the functions path. Manifests
// that fail to load are reported alongside the ones that did.
func (a *App) Operations(ctx context.Context) ([]udo.Descriptor, []error) {
	return a.registry.List(a.context(ctx), a.runtime.FunctionsPath)
}

// Entrypoints returns the names of the compiled-in entrypoints.
func (a *App) Entrypoints() []string {
	return a.registry.Entrypoints()
}

// Sweep removes scratch artifacts older than olderThan that abandoned
// invocations left under the scratch root.
func (a *App) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx = a.context(ctx)
	root := a.ScratchRoot()
	n, err := a.temp.Sweep(ctx, root, olderThan)
	if err != nil {
		return n, err
	}
	a.logger.Info("Removed stale scratch artifacts.", "root", root, "count", n)
	return n, nil
}
