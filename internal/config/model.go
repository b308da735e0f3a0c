package config

import (
	"sort"

	"github.com/vk/udo/internal/udo"
	"github.com/zclconf/go-cty/cty"
)

// --- Operation Manifest Models ---

// OperationDefinition is the format-agnostic representation of an operation
// manifest.
type OperationDefinition struct {
	Name         string
	Description  string
	Modality     udo.Modality
	Entrypoint   string
	Settings     map[string]*InputDefinition
	Params       map[string]*InputDefinition
	ManifestPath string
}

// InputDefinition declares one setting or input parameter.
type InputDefinition struct {
	Name        string
	Type        cty.Type
	Description string
	Default     *cty.Value
	Optional    bool
}

// SortedKeys returns the names of defs in order.
func SortedKeys(defs map[string]*InputDefinition) []string {
	keys := make([]string, 0, len(defs))
	for k := range defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- Runtime Config Models ---

// Runtime is the process-level configuration read from udo.hcl. Zero values
// mean "not set" and leave the built-in default in place.
type Runtime struct {
	FunctionsPath string
	ScratchRoot   string
	Workers       int
	LogLevel      string
	LogFormat     string
	// Aliases maps caller-facing ids to operation names.
	Aliases map[string]string
	// Defaults holds static values merged under every request for an
	// operation.
	Defaults map[string]*OperationDefaults
}

// OperationDefaults are static settings and params for one operation.
type OperationDefaults struct {
	Settings map[string]any
	Params   map[string]any
}

// ResolveAlias maps id through the alias table. Unknown ids are returned
// unchanged.
func (r *Runtime) ResolveAlias(id string) string {
	if r == nil {
		return id
	}
	if op, ok := r.Aliases[id]; ok {
		return op
	}
	return id
}
