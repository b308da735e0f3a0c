package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/udo/internal/udo"
)

// Entrypoint holds the compiled Go parts of an operation.
type Entrypoint struct {
	Module   udo.Module
	Modality udo.Modality
	// NewSettings and NewParams return fresh pointers to the operation's
	// config structs. Either may be nil when the operation declares none.
	NewSettings func() any
	NewParams   func() any
}

// RegisterEntrypoint registers the Go implementation that manifests refer to
// by name.
func (r *Registry) RegisterEntrypoint(name string, ep *Entrypoint) {
	if ep == nil || ep.Module == nil {
		panic(fmt.Sprintf("entrypoint '%s' has no module", name))
	}
	if _, err := udo.ParseModality(string(ep.Modality)); err != nil {
		panic(fmt.Sprintf("entrypoint '%s': %v", name, err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entrypoints[name]; exists {
		panic(fmt.Sprintf("entrypoint with name '%s' already registered", name))
	}
	slog.Debug("Registering entrypoint.", "name", name, "modality", ep.Modality)
	r.entrypoints[name] = ep
}

func (r *Registry) entrypoint(name string) (*Entrypoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.entrypoints[name]
	return ep, ok
}
