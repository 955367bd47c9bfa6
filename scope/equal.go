package scope

import (
	"go/token"
	"math"
	"math/cmplx"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mitchellh/copystructure"
)

// Equal reports whether a watcher would consider newValue unchanged from oldValue.
//
// In reference mode values are compared the way the engine sees identity:
// slices by backing array and length, maps, pointers, channels and funcs by
// address, everything else by ==. In value mode the comparison is structural
// over exported state, with funcs still compared by address. NaN equals NaN in
// both modes, otherwise a NaN watch would never settle.
func Equal(newValue, oldValue any, byValue bool) bool {
	if byValue {
		return cmp.Equal(newValue, oldValue, valueOptions...)
	}
	return identical(newValue, oldValue)
}

var valueOptions = []cmp.Option{
	cmpopts.EquateNaNs(),
	cmp.FilterPath(func(p cmp.Path) bool {
		sf, ok := p.Last().(cmp.StructField)
		return ok && !token.IsExported(sf.Name())
	}, cmp.Ignore()),
	// cmp reports any two non-nil funcs as different.
	cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().Type().Kind() == reflect.Func
	}, cmp.Comparer(func(a, b any) bool {
		return identical(a, b)
	})),
}

func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return identicalValue(reflect.ValueOf(a), reflect.ValueOf(b))
}

func identicalValue(a, b reflect.Value) bool {
	if a.Type() != b.Type() {
		return false
	}

	switch a.Kind() {
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == b.Uint()
	case reflect.Float32, reflect.Float64:
		x, y := a.Float(), b.Float()
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	case reflect.Complex64, reflect.Complex128:
		x, y := a.Complex(), b.Complex()
		return x == y || (cmplx.IsNaN(x) && cmplx.IsNaN(y))
	case reflect.String:
		return a.String() == b.String()
	case reflect.Slice:
		return a.Len() == b.Len() && a.UnsafePointer() == b.UnsafePointer()
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return a.UnsafePointer() == b.UnsafePointer()
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}
		return identicalValue(a.Elem(), b.Elem())
	case reflect.Array:
		for i := range a.Len() {
			if !identicalValue(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := range a.NumField() {
			if !identicalValue(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// clone deep copies v so a value watcher's record is not aliased by the
// application. Values that cannot be copied are kept as they are.
func clone(v any) any {
	c, err := copystructure.Copy(v)
	if err != nil {
		return v
	}
	return c
}
