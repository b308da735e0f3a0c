// This file contains the logic for translating the HCL schema structs into the
// format-agnostic configuration model defined in the config package.

package hcl

import (
	"context"
	"fmt"

	"github.com/vk/udo/internal/config"
	"github.com/vk/udo/internal/schema"
	"github.com/vk/udo/internal/udo"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// translateInputDefinition processes a single `setting` or `param` block,
// handling its default value and type parsing.
func translateInputDefinition(ctx context.Context, in *schema.InputDefinition, ownerKind, ownerName string) (*config.InputDefinition, error) {
	parsedType, err := typeExprToCtyType(ctx, in.Type)
	if err != nil {
		return nil, fmt.Errorf("in operation '%s', %s '%s': %w", ownerName, ownerKind, in.Name, err)
	}

	var defaultVal *cty.Value
	if isExprDefined(in.Default) {
		val, diags := in.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid default value for %s '%s' in operation '%s': %w", ownerKind, in.Name, ownerName, diags)
		}
		if !val.IsNull() {
			converted, err := convert.Convert(val, parsedType)
			if err != nil {
				return nil, fmt.Errorf("default value for %s '%s' in operation '%s' is not a %s: %w",
					ownerKind, in.Name, ownerName, parsedType.FriendlyName(), err)
			}
			defaultVal = &converted
		}
	}

	return &config.InputDefinition{
		Name:        in.Name,
		Type:        parsedType,
		Description: in.Description,
		Default:     defaultVal,
		Optional:    defaultVal != nil,
	}, nil
}

func translateInputs(ctx context.Context, blocks []*schema.InputDefinition, ownerKind, ownerName string) (map[string]*config.InputDefinition, error) {
	out := make(map[string]*config.InputDefinition, len(blocks))
	for _, in := range blocks {
		if _, dup := out[in.Name]; dup {
			return nil, fmt.Errorf("in operation '%s', %s '%s' is declared more than once", ownerName, ownerKind, in.Name)
		}
		def, err := translateInputDefinition(ctx, in, ownerKind, ownerName)
		if err != nil {
			return nil, err
		}
		out[in.Name] = def
	}
	return out, nil
}

// translateOperation converts an `operation` block into the agnostic model.
func translateOperation(ctx context.Context, s *schema.OperationDefinition, manifestPath string) (*config.OperationDefinition, error) {
	modality, err := udo.ParseModality(s.Modality)
	if err != nil {
		return nil, fmt.Errorf("in operation '%s': %w", s.Name, err)
	}
	if s.Entrypoint == "" {
		return nil, fmt.Errorf("in operation '%s': entrypoint must not be empty", s.Name)
	}

	settings, err := translateInputs(ctx, s.Settings, "setting", s.Name)
	if err != nil {
		return nil, err
	}
	params, err := translateInputs(ctx, s.Params, "param", s.Name)
	if err != nil {
		return nil, err
	}

	return &config.OperationDefinition{
		Name:         s.Name,
		Description:  s.Description,
		Modality:     modality,
		Entrypoint:   s.Entrypoint,
		Settings:     settings,
		Params:       params,
		ManifestPath: manifestPath,
	}, nil
}

// translateRuntime converts a parsed udo.hcl file into the agnostic model.
func translateRuntime(s *schema.RuntimeFile) (*config.Runtime, error) {
	rt := &config.Runtime{
		Aliases:  make(map[string]string),
		Defaults: make(map[string]*config.OperationDefaults),
	}
	if s.FunctionsPath != nil {
		rt.FunctionsPath = *s.FunctionsPath
	}
	if s.ScratchRoot != nil {
		rt.ScratchRoot = *s.ScratchRoot
	}
	if s.Workers != nil {
		if *s.Workers < 0 {
			return nil, fmt.Errorf("workers must not be negative, got %d", *s.Workers)
		}
		rt.Workers = *s.Workers
	}
	if s.LogLevel != nil {
		rt.LogLevel = *s.LogLevel
	}
	if s.LogFormat != nil {
		rt.LogFormat = *s.LogFormat
	}

	for _, a := range s.Aliases {
		if _, dup := rt.Aliases[a.ID]; dup {
			return nil, fmt.Errorf("alias '%s' is declared more than once", a.ID)
		}
		rt.Aliases[a.ID] = a.Operation
	}

	for _, d := range s.Defaults {
		if _, dup := rt.Defaults[d.Operation]; dup {
			return nil, fmt.Errorf("defaults for operation '%s' are declared more than once", d.Operation)
		}
		settings, err := objectToMap(d.Settings)
		if err != nil {
			return nil, fmt.Errorf("defaults for operation '%s': settings: %w", d.Operation, err)
		}
		params, err := objectToMap(d.Params)
		if err != nil {
			return nil, fmt.Errorf("defaults for operation '%s': params: %w", d.Operation, err)
		}
		rt.Defaults[d.Operation] = &config.OperationDefaults{Settings: settings, Params: params}
	}
	return rt, nil
}

// objectToMap turns an HCL object or map literal into a Go map. A missing
// attribute yields nil.
func objectToMap(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("expected an object, got %s", v.Type().FriendlyName())
	}
	native, err := ctyToNative(v)
	if err != nil {
		return nil, err
	}
	m, _ := native.(map[string]any)
	return m, nil
}
