package registry

import (
	"context"

	"github.com/vk/udo/internal/config"
	"github.com/vk/udo/internal/udo"
)

// Handle is a resolved, invocable operation. It is immutable and shared by
// all invocations of the operation.
type Handle struct {
	Descriptor udo.Descriptor
	Module     udo.Module
	Settings   map[string]*config.InputDefinition
	Params     map[string]*config.InputDefinition

	entry     *Entrypoint
	converter config.Converter
}

// BuildSettings decodes caller settings into a fresh settings struct. It
// returns nil when the operation declares no settings struct and none were
// given.
func (h *Handle) BuildSettings(ctx context.Context, values map[string]any) (any, error) {
	return h.build(ctx, "settings", h.entry.NewSettings, values, h.Settings)
}

// BuildParams decodes caller input params into a fresh params struct.
func (h *Handle) BuildParams(ctx context.Context, values map[string]any) (any, error) {
	return h.build(ctx, "params", h.entry.NewParams, values, h.Params)
}

func (h *Handle) build(ctx context.Context, what string, newFn func() any, values map[string]any, defs map[string]*config.InputDefinition) (any, error) {
	if newFn == nil {
		if len(values) > 0 {
			return nil, &udo.Error{
				Kind:    udo.KindInvalidParameters,
				Op:      h.Descriptor.Name,
				Message: "operation accepts no " + what,
			}
		}
		return nil, nil
	}
	target := newFn()
	if err := h.converter.DecodeInputs(ctx, target, values, defs); err != nil {
		return nil, &udo.Error{
			Kind:    udo.KindInvalidParameters,
			Op:      h.Descriptor.Name,
			Message: what + ": " + err.Error(),
			Err:     err,
		}
	}
	return target, nil
}
