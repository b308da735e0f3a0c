package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/udo/internal/config"
	"github.com/vk/udo/internal/ctxlog"
	"github.com/vk/udo/internal/hcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// validateParity performs a strict parity check between a manifest and the
// Go config structs of its entrypoint. It checks both the presence of keys
// and the compatibility of their types.
func validateParity(ctx context.Context, def *config.OperationDefinition, ep *Entrypoint) error {
	var errs []string
	errs = append(errs, checkInputs(ctx, def.Name, "setting", def.Settings, ep.NewSettings)...)
	errs = append(errs, checkInputs(ctx, def.Name, "param", def.Params, ep.NewParams)...)
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("manifest and entrypoint '%s' disagree:\n- %s", def.Entrypoint, strings.Join(errs, "\n- "))
	}
	return nil
}

func checkInputs(ctx context.Context, op, kind string, defs map[string]*config.InputDefinition, newFn func() any) []string {
	logger := ctxlog.FromContext(ctx)

	if newFn == nil {
		if len(defs) > 0 {
			return []string{fmt.Sprintf("manifest declares %ss, but the entrypoint has no %s struct", kind, kind)}
		}
		return nil
	}
	structType := reflect.TypeOf(newFn())
	if structType == nil || structType.Kind() != reflect.Ptr || structType.Elem().Kind() != reflect.Struct {
		return []string{fmt.Sprintf("%s constructor must return a pointer to a struct, got %v", kind, structType)}
	}
	structType = structType.Elem()

	goFields := make(map[string]reflect.StructField)
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if tagName := hcl.FieldTag(field); tagName != "" {
			goFields[tagName] = field
		}
	}

	var errs []string
	for name := range goFields {
		if _, ok := defs[name]; !ok {
			errs = append(errs, fmt.Sprintf("Go struct has field for %s '%s' which is not declared in manifest", kind, name))
		}
	}
	for name, inputDef := range defs {
		goField, ok := goFields[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("manifest declares %s '%s' which is not found in Go struct", kind, name))
			continue
		}
		if goField.Type.Kind() == reflect.Interface {
			continue
		}
		if inputDef.Type.Equals(cty.DynamicPseudoType) {
			logger.Warn("Manifest has a key with 'type = any', which disables static type checking.", "operation", op, kind, name)
			continue
		}
		goType, err := gocty.ImpliedType(reflect.Zero(goField.Type).Interface())
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s '%s': could not imply cty type from Go field type %s: %v", kind, name, goField.Type, err))
			continue
		}
		if !inputDef.Type.Equals(goType) && convert.GetConversion(inputDef.Type, goType) == nil {
			errs = append(errs, fmt.Sprintf("%s '%s': type mismatch. Manifest declares '%s' but Go struct field '%s' has '%s'",
				kind, name, inputDef.Type.FriendlyName(), goField.Name, goType.FriendlyName()))
		}
	}
	return errs
}
