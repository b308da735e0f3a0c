package dispatch

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/vk/udo/internal/config"
	"github.com/vk/udo/internal/ctxlog"
	"github.com/vk/udo/internal/fsutil"
	"github.com/vk/udo/internal/registry"
	"github.com/vk/udo/internal/tempfile"
	"github.com/vk/udo/internal/udo"
	"golang.org/x/sync/errgroup"
)

// OutputPrefixKey is the setting holding an operation's output path prefix.
// Its directory is the only place besides tmp_dir_path an operation may
// write its output.
const OutputPrefixKey = "opfile"

// Resolver looks up operations by name.
type Resolver interface {
	Resolve(ctx context.Context, name, functionsPath string) (*registry.Handle, error)
}

// Request is one invocation as submitted by a caller. Settings and Params
// are loosely typed; they are validated against the operation's declarations
// before the module runs.
type Request struct {
	Operation     string
	Settings      map[string]any
	Message       udo.Message
	Params        map[string]any
	TmpDirPath    string
	FunctionsPath string
	// Release lists scratch paths under TmpDirPath the caller is done with.
	// They are removed once the invocation succeeds.
	Release []string
}

// Transition reports one state change of an invocation.
type Transition struct {
	ID        string
	Operation string
	State     State
	Err       *udo.Error
}

// Dispatcher runs requests against registered operations. It is safe for
// concurrent use.
type Dispatcher struct {
	resolver      Resolver
	temp          *tempfile.Manager
	functionsPath string
	scratchRoot   string
	workers       int
	defaults      map[string]*config.OperationDefaults
	aliases       map[string]string
	observer      func(Transition)
}

// New creates a Dispatcher.
func New(resolver Resolver, temp *tempfile.Manager, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		resolver:    resolver,
		temp:        temp,
		scratchRoot: filepath.Join(os.TempDir(), "udo"),
		workers:     runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ScratchRoot is the tmp_dir_path used for requests that do not carry one.
func (d *Dispatcher) ScratchRoot() string {
	return d.scratchRoot
}

// Dispatch runs one request to completion and always returns a well-formed
// Result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) udo.Result {
	id := d.temp.Token()
	op := d.resolveAlias(req.Operation)
	ctx = ctxlog.With(ctx, "invocation", id, "operation", op)
	logger := ctxlog.FromContext(ctx)

	d.transition(ctx, id, op, Received, nil)

	if req.FunctionsPath == "" {
		req.FunctionsPath = d.functionsPath
	}
	if req.TmpDirPath == "" {
		req.TmpDirPath = d.scratchRoot
	}

	if err := req.Message.Validate(); err != nil {
		return d.fail(ctx, id, op, &udo.Error{Kind: udo.KindInvalidParameters, Op: op, Err: err})
	}
	if err := ctx.Err(); err != nil {
		return d.fail(ctx, id, op, &udo.Error{Kind: udo.KindOperationCrashed, Op: op, Message: "cancelled before execution", Err: err})
	}

	d.transition(ctx, id, op, Resolving, nil)
	handle, err := d.resolver.Resolve(ctx, op, req.FunctionsPath)
	if err != nil {
		return d.fail(ctx, id, op, structured(op, udo.KindOperationNotFound, err))
	}

	d.transition(ctx, id, op, Executing, nil)
	settingValues := d.merge(op, req.Settings, func(o *config.OperationDefaults) map[string]any { return o.Settings })
	paramValues := d.merge(op, req.Params, func(o *config.OperationDefaults) map[string]any { return o.Params })

	var settings, params any
	if uerr := guard(ctx, op, udo.KindInvalidParameters, func() *udo.Error {
		if settings, err = handle.BuildSettings(ctx, settingValues); err != nil {
			return structured(op, udo.KindInvalidParameters, err)
		}
		if params, err = handle.BuildParams(ctx, paramValues); err != nil {
			return structured(op, udo.KindInvalidParameters, err)
		}
		return nil
	}); uerr != nil {
		return d.fail(ctx, id, op, uerr)
	}

	scope := d.temp.Scope(ctx, req.TmpDirPath)
	inv := &udo.Invocation{
		ID:            id,
		Operation:     handle.Descriptor,
		Settings:      settings,
		Params:        params,
		Message:       req.Message,
		TmpDirPath:    req.TmpDirPath,
		FunctionsPath: req.FunctionsPath,
		Scratch:       scope,
	}

	// The module call and the interpretation of what it returned share one
	// fault boundary.
	var artifact *udo.Artifact
	start := time.Now()
	uerr := guard(ctx, op, udo.KindOperationCrashed, func() *udo.Error {
		out, runErr := handle.Module.Run(ctx, inv)
		artifact = out
		return d.check(op, req, settingValues, out, runErr)
	})
	elapsed := time.Since(start)
	if uerr != nil {
		logger.Debug("Module returned.", "elapsed", elapsed)
		scope.ReleaseAllExcept()
		return d.fail(ctx, id, op, uerr)
	}

	scope.ReleaseAllExcept(artifact.Path)
	d.releaseRequested(ctx, req)

	logger.Info("Operation succeeded.", "output", artifact.String(), "elapsed", elapsed)
	d.transition(ctx, id, op, Succeeded, nil)
	return udo.Succeeded(artifact)
}

// guard calls fn and converts a panic into an error of the given kind.
func guard(ctx context.Context, op string, kind udo.Kind, fn func() *udo.Error) (uerr *udo.Error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Invocation panicked.", "kind", kind, "panic", r, "stack", string(debug.Stack()))
			uerr = &udo.Error{Kind: kind, Op: op, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return fn()
}

// check interprets what the module returned. A nil result means success.
func (d *Dispatcher) check(op string, req Request, settings map[string]any, artifact *udo.Artifact, runErr error) *udo.Error {
	if runErr != nil {
		uerr, ok := udo.AsError(runErr)
		if !ok {
			return &udo.Error{Kind: udo.KindOperationCrashed, Op: op, Message: "unstructured error", Err: runErr}
		}
		if uerr == nil {
			return &udo.Error{Kind: udo.KindOperationCrashed, Op: op, Message: "module returned a nil *udo.Error"}
		}
		if uerr.Op == "" {
			cp := *uerr
			cp.Op = op
			uerr = &cp
		}
		return uerr
	}
	if artifact.Empty() {
		return &udo.Error{Kind: udo.KindOperationCrashed, Op: op, Message: "operation returned neither an output nor an error"}
	}
	if artifact.Path == "" {
		return nil
	}

	allowed := fsutil.IsWithin(artifact.Path, req.TmpDirPath)
	if prefix, _ := settings[OutputPrefixKey].(string); prefix != "" && !allowed {
		allowed = fsutil.IsWithin(artifact.Path, filepath.Dir(prefix))
	}
	if !allowed {
		return &udo.Error{
			Kind:    udo.KindOperationCrashed,
			Op:      op,
			Path:    artifact.Path,
			Message: "output written outside the scratch root and the output prefix directory",
		}
	}
	if !fsutil.FileExists(artifact.Path) {
		return &udo.Error{Kind: udo.KindOperationCrashed, Op: op, Path: artifact.Path, Message: "reported output does not exist"}
	}
	return nil
}

// releaseRequested removes the paths the caller asked to free. Paths outside
// the scratch root are never touched.
func (d *Dispatcher) releaseRequested(ctx context.Context, req Request) {
	logger := ctxlog.FromContext(ctx)
	for _, p := range req.Release {
		if !fsutil.IsWithin(p, req.TmpDirPath) {
			logger.Warn("Refusing to release path outside the scratch root.", "path", p, "scratch_root", req.TmpDirPath)
			continue
		}
		d.temp.Release(ctx, p)
	}
}

func (d *Dispatcher) fail(ctx context.Context, id, op string, err *udo.Error) udo.Result {
	ctxlog.FromContext(ctx).Warn("Operation failed.", "kind", err.Kind, "error", err.Error())
	d.transition(ctx, id, op, Failed, err)
	return udo.Failed(err)
}

func (d *Dispatcher) transition(ctx context.Context, id, op string, s State, err *udo.Error) {
	ctxlog.FromContext(ctx).Debug("Invocation state changed.", "state", s.String())
	if d.observer != nil {
		d.observer(Transition{ID: id, Operation: op, State: s, Err: err})
	}
}

func (d *Dispatcher) resolveAlias(name string) string {
	if op, ok := d.aliases[name]; ok {
		return op
	}
	return name
}

// merge layers request values over configured defaults for op. The request
// map is never modified.
func (d *Dispatcher) merge(op string, values map[string]any, pick func(*config.OperationDefaults) map[string]any) map[string]any {
	def, ok := d.defaults[op]
	if !ok || def == nil || len(pick(def)) == 0 {
		return values
	}
	out := maps.Clone(pick(def))
	maps.Copy(out, values)
	return out
}

// structured returns err as a *udo.Error, classifying anything else as
// fallback.
func structured(op string, fallback udo.Kind, err error) *udo.Error {
	if uerr, ok := udo.AsError(err); ok {
		return uerr
	}
	return &udo.Error{Kind: fallback, Op: op, Err: err}
}

// DispatchAll runs reqs with at most the configured number of concurrent
// invocations and returns their results in request order.
func (d *Dispatcher) DispatchAll(ctx context.Context, reqs []Request) []udo.Result {
	results := make([]udo.Result, len(reqs))
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i := range reqs {
		g.Go(func() error {
			results[i] = d.Dispatch(ctx, reqs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}
