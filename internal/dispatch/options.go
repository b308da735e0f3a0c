package dispatch

import (
	"maps"
	"runtime"

	"github.com/vk/udo/internal/config"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFunctionsPath sets the functions path used when a request has none.
func WithFunctionsPath(path string) Option {
	return func(d *Dispatcher) { d.functionsPath = path }
}

// WithScratchRoot sets the scratch root used when a request has no
// tmp_dir_path.
func WithScratchRoot(root string) Option {
	return func(d *Dispatcher) { d.scratchRoot = root }
}

// WithWorkers bounds DispatchAll concurrency. Values below one mean
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = runtime.NumCPU()
		}
		d.workers = n
	}
}

// WithDefaults installs static per-operation settings and params. Request
// values override them key by key.
func WithDefaults(defaults map[string]*config.OperationDefaults) Option {
	return func(d *Dispatcher) { d.defaults = maps.Clone(defaults) }
}

// WithAliases maps caller-facing ids to operation names.
func WithAliases(aliases map[string]string) Option {
	return func(d *Dispatcher) { d.aliases = maps.Clone(aliases) }
}

// WithObserver registers a callback invoked on every state transition. It
// runs synchronously on the dispatching goroutine.
func WithObserver(fn func(Transition)) Option {
	return func(d *Dispatcher) { d.observer = fn }
}
