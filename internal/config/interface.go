package config

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// LoadOperation reads the manifest at path and returns the declaration of
	// the operation called name. A manifest that does not declare name is an
	// error.
	LoadOperation(ctx context.Context, path, name string) (*OperationDefinition, error)

	// LoadRuntime reads a runtime config file.
	LoadRuntime(ctx context.Context, path string) (*Runtime, error)
}

// Converter binds loosely typed caller values onto the typed structs that
// operation modules declare, applying declared defaults.
type Converter interface {
	// DecodeInputs fills target, a pointer to a struct with `udo` tags, from
	// args according to defs. Keys in args that are not declared, missing
	// required keys, and values that cannot convert to the declared type are
	// errors.
	DecodeInputs(ctx context.Context, target any, args map[string]any, defs map[string]*InputDefinition) error

	// ToCtyValue converts a native Go value into its cty.Value equivalent.
	ToCtyValue(v any) (cty.Value, error)
}
