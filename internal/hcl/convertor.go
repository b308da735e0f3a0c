package hcl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/udo/internal/config"
	"github.com/vk/udo/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// TagName is the struct tag that binds a Go field to a declared key.
const TagName = "udo"

// Converter is the HCL-specific implementation of the config.Converter interface.
type Converter struct{}

// NewConverter creates a new HCL converter.
func NewConverter() *Converter {
	return &Converter{}
}

var _ config.Converter = (*Converter)(nil)

// DecodeInputs populates the tagged fields of target from args, falling back
// to declared defaults.
func (c *Converter) DecodeInputs(ctx context.Context, target any, args map[string]any, defs map[string]*config.InputDefinition) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting input decoding.", "provided", len(args), "declared", len(defs))

	structVal := reflect.ValueOf(target)
	if structVal.Kind() != reflect.Ptr || structVal.IsNil() || structVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to a struct, got %T", target)
	}

	var unknown []string
	for key := range args {
		if _, ok := defs[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown key(s): %s", strings.Join(unknown, ", "))
	}

	structVal = structVal.Elem()
	structType := structVal.Type()
	for i := 0; i < structType.NumField(); i++ {
		fieldDef := structType.Field(i)
		fieldVal := structVal.Field(i)

		tagName := FieldTag(fieldDef)
		if tagName == "" || !fieldVal.CanSet() {
			continue
		}
		inputDef, ok := defs[tagName]
		if !ok {
			continue
		}

		var valueToDecode cty.Value
		if raw, provided := args[tagName]; provided && raw != nil {
			v, err := c.ToCtyValue(raw)
			if err != nil {
				return fmt.Errorf("key '%s': %w", tagName, err)
			}
			valueToDecode = v
		} else if inputDef.Default != nil {
			valueToDecode = *inputDef.Default
		} else {
			return fmt.Errorf("missing required key %q", tagName)
		}

		if err := c.decode(ctx, valueToDecode, inputDef.Type, fieldVal.Addr().Interface()); err != nil {
			return fmt.Errorf("key '%s': %w", tagName, err)
		}
	}
	logger.Debug("Finished input decoding successfully.")
	return nil
}

// decode converts val to the declared type and then into the Go value behind
// goVal.
func (c *Converter) decode(ctx context.Context, val cty.Value, declared cty.Type, goVal any) error {
	converted, err := convert.Convert(val, declared)
	if err != nil {
		return fmt.Errorf("cannot convert %s to declared type %s: %w", val.Type().FriendlyName(), declared.FriendlyName(), err)
	}

	target := reflect.ValueOf(goVal).Elem()
	if target.Kind() == reflect.Interface {
		native, err := ctyToNative(converted)
		if err != nil {
			return err
		}
		if native != nil {
			target.Set(reflect.ValueOf(native))
		}
		return nil
	}

	impliedType, err := gocty.ImpliedType(target.Interface())
	if err != nil {
		ctxlog.FromContext(ctx).Debug("Could not imply cty.Type from Go type, attempting direct decoding.", "go_type", target.Type().String(), "error", err)
		return gocty.FromCtyValue(converted, goVal)
	}
	final, err := convert.Convert(converted, impliedType)
	if err != nil {
		return fmt.Errorf("cannot convert %s to %s: %w", converted.Type().FriendlyName(), target.Type().String(), err)
	}
	return gocty.FromCtyValue(final, goVal)
}

// ToCtyValue converts a native Go value into its corresponding cty.Value.
// Untyped collections ([]any, map[string]any) become tuples and objects.
func (c *Converter) ToCtyValue(v any) (cty.Value, error) {
	switch tv := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return tv, nil
	case float64:
		if math.IsNaN(tv) {
			return cty.NilVal, errNaN
		}
		return cty.NumberFloatVal(tv), nil
	case float32:
		if math.IsNaN(float64(tv)) {
			return cty.NilVal, errNaN
		}
		return cty.NumberFloatVal(float64(tv)), nil
	case []any:
		elems := make([]cty.Value, len(tv))
		for i, e := range tv {
			ev, err := c.ToCtyValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = ev
		}
		if len(elems) == 0 {
			return cty.EmptyTupleVal, nil
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		attrs := make(map[string]cty.Value, len(tv))
		for k, e := range tv {
			ev, err := c.ToCtyValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("attribute '%s': %w", k, err)
			}
			attrs[k] = ev
		}
		if len(attrs) == 0 {
			return cty.EmptyObjectVal, nil
		}
		return cty.ObjectVal(attrs), nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type: %w", err)
	}
	return toCtyValue(v, ty)
}

var errNaN = errors.New("NaN is not a valid number")

// toCtyValue wraps gocty.ToCtyValue, which panics on NaN nested inside typed
// Go collections.
func toCtyValue(v any, ty cty.Type) (val cty.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			val, err = cty.NilVal, fmt.Errorf("cannot convert %T: %v", v, r)
		}
	}()
	return gocty.ToCtyValue(v, ty)
}

// FieldTag returns the declared key a struct field is bound to, or "" when
// the field is untagged, ignored, or unexported.
func FieldTag(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := strings.Split(f.Tag.Get(TagName), ",")[0]
	if tag == "-" {
		return ""
	}
	return tag
}

// ctyToNative converts a cty.Value into plain Go values: string, float64 (or
// int64 when integral), bool, []any and map[string]any.
func ctyToNative(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			nv, err := ctyToNative(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = nv
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			nv, err := ctyToNative(v)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}
