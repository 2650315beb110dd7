package mpack

import (
	"fmt"
	"reflect"
)

// The construct/destruct pair bridges domain values and the
// format-specific intermediates: a scalar for the scalar formats, an
// element sequence for vectors, a pair sequence for maps and structs,
// a byte buffer for the binary formats. Registered hooks take
// precedence; the defaults below are the natural reflective
// conversions.

// destructValue applies the registered Destruct hook for v's type, if
// any. Formats call this before lowering to wire atoms, so a hook can
// substitute an entirely different intermediate representation.
func destructValue(v any, f Format, c Context) (any, error) {
	if v == nil {
		return nil, nil
	}
	if hook := destructHook(reflect.TypeOf(v), c); hook != nil {
		return hook(v, f)
	}
	return v, nil
}

// constructValue runs the registered Construct hook for t, falling
// back to a reflective conversion of the intermediate.
func constructValue(t reflect.Type, in any, f Format, c Context) (any, error) {
	if t == nil {
		return in, nil
	}
	if hook := constructHook(t, c); hook != nil {
		return hook(t, in, f)
	}
	return convertTo(t, in)
}

// convertTo coerces in to type t: identity, assignability, numeric
// conversion, pointer wrapping.
func convertTo(t reflect.Type, in any) (any, error) {
	if t == nil || t == anyType {
		return in, nil
	}
	if in == nil {
		return reflect.Zero(t).Interface(), nil
	}
	rv := reflect.ValueOf(in)
	if rv.Type() == t {
		return in, nil
	}
	if rv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out.Interface(), nil
	}
	if t.Kind() == reflect.Pointer {
		elem, err := convertTo(t.Elem(), in)
		if err != nil {
			return nil, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(reflect.ValueOf(elem))
		return p.Interface(), nil
	}
	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t).Interface(), nil
	}
	return nil, unpackErrf(nil, "cannot convert %s to %s", rv.Type(), t)
}

// refValue lifts an intermediate into a reflect.Value of type t,
// mapping nil to the zero value so interface-typed slots can be set.
func refValue(t reflect.Type, v any) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v)
}

// deref unwraps pointers and interfaces so formats see the concrete
// value. A nil pointer destructs as nil.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

// ============================================================
// Scalar intermediates
// ============================================================

func asInt64(v any) (int64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > 1<<63-1 {
			return 0, packErrf(Signed, "value %d overflows int64", u)
		}
		return int64(u), nil
	}
	return 0, packErrf(Signed, "cannot destruct %T as signed integer", v)
}

func asUint64(v any) (uint64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		if i < 0 {
			return 0, packErrf(Unsigned, "negative value %d", i)
		}
		return uint64(i), nil
	}
	return 0, packErrf(Unsigned, "cannot destruct %T as unsigned integer", v)
}

func asFloat64(v any) (float64, bool, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32:
		return rv.Float(), false, nil
	case reflect.Float64:
		return rv.Float(), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true, nil
	}
	return 0, false, packErrf(Float, "cannot destruct %T as float", v)
}

func asString(v any) (string, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return "", packErrf(String, "cannot destruct %T as string", v)
}

func asBool(v any) (bool, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Bool {
		return rv.Bool(), nil
	}
	return false, packErrf(Bool, "cannot destruct %T as bool", v)
}

func asBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return rv.Bytes(), nil
	}
	return nil, packErrf(Binary, "cannot destruct %T as bytes", v)
}

// ============================================================
// Struct construction
// ============================================================

// buildStruct assembles a value of type t from field values in
// declared order. A registered New hook wins; the reflective default
// sets exported fields positionally, mirroring the order structFields
// produced.
func buildStruct(t reflect.Type, c Context, vals []any) (any, error) {
	if hook := newHook(t, c); hook != nil {
		return hook(vals)
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, unpackErrf(Struct, "cannot construct %v without a New hook", t)
	}
	out := reflect.New(t).Elem()
	idx := 0
	for i := 0; i < t.NumField() && idx < len(vals); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("mpack"); ok && tag == "-" {
			continue
		}
		fv, err := convertTo(f.Type, vals[idx])
		if err != nil {
			return nil, err
		}
		out.Field(i).Set(refValue(f.Type, fv))
		idx++
	}
	return out.Interface(), nil
}

// fieldValues destructs a struct value into its field intermediates
// in declared order.
func fieldValues(v any, t reflect.Type, c Context, names []string) ([]any, error) {
	if hook := destructHook(t, c); hook != nil {
		out, err := hook(v, Struct)
		if err != nil {
			return nil, err
		}
		vals, ok := out.([]any)
		if !ok {
			return nil, packErrf(Struct, "destruct of %s returned %T, want []any", t, out)
		}
		return vals, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Struct {
		return nil, packErrf(Struct, "cannot destruct %T as struct", v)
	}
	vals := make([]any, 0, len(names))
	for i := 0; i < rv.NumField() && len(vals) < len(names); i++ {
		f := rv.Type().Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("mpack"); ok && tag == "-" {
			continue
		}
		vals = append(vals, rv.Field(i).Interface())
	}
	if len(vals) != len(names) {
		return nil, packErrf(Struct, "%s has %d packable fields, binding names %d", rv.Type(), len(vals), len(names))
	}
	return vals, nil
}
