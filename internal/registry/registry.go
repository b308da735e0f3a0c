package registry

import (
	"sort"
	"sync"

	"github.com/vk/udo/internal/config"
	"github.com/vk/udo/internal/hcl"
	"golang.org/x/sync/singleflight"
)

// Module is the interface that all operation packages implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds compiled-in entrypoints and the cache of resolved handles
// for a single application instance. It is safe for concurrent use.
type Registry struct {
	loader    config.Loader
	converter config.Converter

	mu          sync.RWMutex
	entrypoints map[string]*Entrypoint
	cache       map[cacheKey]*Handle
	group       singleflight.Group
}

type cacheKey struct {
	name          string
	functionsPath string
}

// New creates an empty Registry backed by the HCL loader.
func New() *Registry {
	return &Registry{
		loader:      hcl.NewLoader(),
		converter:   hcl.NewConverter(),
		entrypoints: make(map[string]*Entrypoint),
		cache:       make(map[cacheKey]*Handle),
	}
}

// Register registers every module in order.
func (r *Registry) Register(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}

// Entrypoints returns the names of all compiled-in entrypoints, sorted.
func (r *Registry) Entrypoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entrypoints))
	for name := range r.entrypoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cached returns the number of cached handles.
func (r *Registry) Cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
