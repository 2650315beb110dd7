package mpack

import "reflect"

// TypedValue is a self-describing value: its type descriptor plus the
// value itself, decodable without prior knowledge of the concrete
// type.
type TypedValue struct {
	Type  TypeDescriptor
	Value any
}

var typeOfTypedValue = reflect.TypeOf(TypedValue{})

type typedFmt struct {
	inner Format
}

// Typed wraps a value with its own type descriptor: a two-entry map
// {"type": <descriptor>, "value": <payload>} where the payload packs
// under inner. Typed(Default) resolves the payload format from the
// value's registered format at pack time; binding a type's own
// format to Typed is the one loop that resolution refuses.
//
// On unpack the descriptor decodes first, the named type is checked
// against the whitelist and against the expected target type, and
// only then does the payload decode as the concrete type.
func Typed(inner Format) Format {
	return typedFmt{inner: inner}
}

func (tf typedFmt) Name() string { return "Typed(" + tf.inner.Name() + ")" }

func (tf typedFmt) Pack(w *Writer, v any, ctx Context) error {
	if tv, ok := deref(v).(TypedValue); ok {
		return tf.packDescribed(w, tv.Type, tv.Value, ctx)
	}
	v = deref(v)
	t := reflect.TypeOf(v)
	d, err := DescriptorFor(t, ctx)
	if err != nil {
		return err
	}
	return tf.packDescribed(w, d, v, ctx)
}

func (tf typedFmt) packDescribed(w *Writer, d TypeDescriptor, v any, ctx Context) error {
	inner, err := tf.payloadFormat(reflect.TypeOf(v), ctx)
	if err != nil {
		return err
	}
	if err := w.WriteMapHeader(2); err != nil {
		return err
	}
	if err := w.WriteString("type"); err != nil {
		return err
	}
	if err := writeDescriptor(w, d, ctx); err != nil {
		return err
	}
	if err := w.WriteString("value"); err != nil {
		return err
	}
	return inner.Pack(w, v, ctx)
}

// payloadFormat resolves the inner format, refusing the recursive
// case where Default re-resolves to Typed and packing would never
// reach a payload.
func (tf typedFmt) payloadFormat(t reflect.Type, ctx Context) (Format, error) {
	if !isDefault(tf.inner) {
		return tf.inner, nil
	}
	f := formatFor(t, ctx)
	if _, ok := f.(typedFmt); ok {
		name := "<nil>"
		if t != nil {
			name = t.String()
		}
		return nil, packErrf(tf, "recursive typed packing of %s: format(T) is Typed; bind a concrete payload format", name)
	}
	if isDefault(f) {
		return nil, &InvariantError{Msg: "format for " + t.String() + " resolves to Default"}
	}
	return f, nil
}

func (tf typedFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	n, err := r.ReadMapHeader()
	if err != nil {
		return nil, err
	}
	if n != 2 {
		return nil, unpackErrf(tf, "expected 2 entries, found %d", n)
	}
	if err := expectKey(r, tf, "type"); err != nil {
		return nil, err
	}
	d, err := readDescriptor(r, ctx)
	if err != nil {
		return nil, err
	}
	concrete, err := resolveDescriptor(r, d, ctx)
	if err != nil {
		return nil, err
	}
	wantValue := t == typeOfTypedValue
	if !wantValue {
		if err := assertSubtype(tf, concrete, t); err != nil {
			return nil, err
		}
	}
	inner, err := tf.unpackPayloadFormat(concrete, ctx)
	if err != nil {
		return nil, err
	}
	if err := expectKey(r, tf, "value"); err != nil {
		return nil, err
	}
	v, err := inner.Unpack(r, concrete, ctx)
	if err != nil {
		return nil, err
	}
	if wantValue {
		return TypedValue{Type: d, Value: v}, nil
	}
	return v, nil
}

func (tf typedFmt) unpackPayloadFormat(t reflect.Type, ctx Context) (Format, error) {
	if !isDefault(tf.inner) {
		return tf.inner, nil
	}
	f := formatFor(t, ctx)
	if _, ok := f.(typedFmt); ok {
		return nil, unpackErrf(tf, "recursive typed unpacking of %s: format(T) is Typed", t)
	}
	if isDefault(f) {
		return nil, &InvariantError{Msg: "format for " + t.String() + " resolves to Default"}
	}
	return f, nil
}

// assertSubtype checks that the wire-named concrete type satisfies
// the caller's expected type: identity for concrete targets,
// implementation for interface targets.
func assertSubtype(f Format, concrete, want reflect.Type) error {
	if want == nil || want == anyType {
		return nil
	}
	if want.Kind() == reflect.Interface {
		if concrete.Implements(want) || reflect.PointerTo(concrete).Implements(want) {
			return nil
		}
		return unpackErrf(f, "%s does not implement %s", concrete, want)
	}
	if concrete == want {
		return nil
	}
	return unpackErrf(f, "unexpected value type %s, want %s", concrete, want)
}
