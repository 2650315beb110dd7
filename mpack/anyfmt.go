package mpack

import "reflect"

type anyFmt struct{}

// Any decodes without a target type: the first byte classifies the
// value into a core format and the decode proceeds generically.
// Integers become int64 when they fit (uint64 otherwise), singles
// stay float32, arrays become []any, maps become map[any]any, and
// extensions become ExtensionData. Any ignores the active context:
// with no target type there is nothing for a context to dispatch on.
var Any Format = anyFmt{}

func (anyFmt) Name() string { return "Any" }

func (anyFmt) Pack(w *Writer, v any, _ Context) error {
	v = deref(v)
	if v == nil {
		return w.WriteNil()
	}
	f, err := resolveFormat(reflect.TypeOf(v), DefaultContext)
	if err != nil {
		return err
	}
	return f.Pack(w, v, DefaultContext)
}

func (anyFmt) Unpack(r *Reader, t reflect.Type, _ Context) (any, error) {
	v, err := unpackAnyValue(r)
	if err != nil {
		return nil, err
	}
	if t == nil || t == anyType {
		return v, nil
	}
	return constructValue(t, v, Any, DefaultContext)
}

func unpackAnyValue(r *Reader) (any, error) {
	f, err := PeekFormat(r)
	if err != nil {
		return nil, err
	}
	switch f {
	case Nil:
		return nil, r.ReadNil()
	case Bool:
		return r.ReadBool()
	case Signed:
		return r.ReadInt()
	case Unsigned:
		u, err := r.ReadUint()
		if err != nil {
			return nil, err
		}
		if u <= 1<<63-1 {
			return int64(u), nil
		}
		return u, nil
	case Float:
		v, wide, err := r.ReadFloat()
		if err != nil {
			return nil, err
		}
		if wide {
			return v, nil
		}
		return float32(v), nil
	case String:
		return r.ReadString()
	case Binary:
		return r.ReadBinary()
	case Vector:
		return Vector.Unpack(r, nil, DefaultContext)
	case Map:
		return Map.Unpack(r, nil, DefaultContext)
	case AnyExtension:
		return AnyExtension.Unpack(r, nil, DefaultContext)
	}
	b, _ := r.peekByte()
	return nil, badPrefix(Any, b)
}
