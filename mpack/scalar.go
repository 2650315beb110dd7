package mpack

import "reflect"

// Core scalar formats. Each packs by destructing the value to the
// matching scalar intermediate and emitting one atom, and unpacks by
// reading the atom and constructing the target type from it.

// ============================================================
// Nil
// ============================================================

type nilFmt struct{}

// Nil encodes any value as the single byte 0xc0 and decodes it to the
// target type's zero value.
var Nil Format = nilFmt{}

func (nilFmt) Name() string { return "Nil" }

func (nilFmt) Pack(w *Writer, v any, ctx Context) error {
	return w.WriteNil()
}

func (nilFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	if err := r.ReadNil(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}
	return constructValue(t, nil, Nil, ctx)
}

// ============================================================
// Bool
// ============================================================

type boolFmt struct{}

// Bool encodes 0xc2/0xc3.
var Bool Format = boolFmt{}

func (boolFmt) Name() string { return "Bool" }

func (boolFmt) Pack(w *Writer, v any, ctx Context) error {
	iv, err := destructValue(deref(v), Bool, ctx)
	if err != nil {
		return err
	}
	b, err := asBool(iv)
	if err != nil {
		return err
	}
	return w.WriteBool(b)
}

func (boolFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	b, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	return constructValue(t, b, Bool, ctx)
}

// ============================================================
// Signed
// ============================================================

type signedFmt struct{}

// Signed encodes the shortest signed integer atom. Decoding tolerates
// unsigned atoms; see ReadInt.
var Signed Format = signedFmt{}

func (signedFmt) Name() string { return "Signed" }

func (signedFmt) Pack(w *Writer, v any, ctx Context) error {
	iv, err := destructValue(deref(v), Signed, ctx)
	if err != nil {
		return err
	}
	i, err := asInt64(iv)
	if err != nil {
		return err
	}
	return w.WriteInt(i)
}

func (signedFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	i, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	return constructValue(t, i, Signed, ctx)
}

// ============================================================
// Unsigned
// ============================================================

type unsignedFmt struct{}

// Unsigned encodes the shortest unsigned integer atom.
var Unsigned Format = unsignedFmt{}

func (unsignedFmt) Name() string { return "Unsigned" }

func (unsignedFmt) Pack(w *Writer, v any, ctx Context) error {
	iv, err := destructValue(deref(v), Unsigned, ctx)
	if err != nil {
		return err
	}
	u, err := asUint64(iv)
	if err != nil {
		return err
	}
	return w.WriteUint(u)
}

func (unsignedFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	u, err := r.ReadUint()
	if err != nil {
		return nil, err
	}
	return constructValue(t, u, Unsigned, ctx)
}

// ============================================================
// Float
// ============================================================

type floatFmt struct{}

// Float encodes 0xca for 32-bit inputs and 0xcb for everything else.
var Float Format = floatFmt{}

func (floatFmt) Name() string { return "Float" }

func (floatFmt) Pack(w *Writer, v any, ctx Context) error {
	iv, err := destructValue(deref(v), Float, ctx)
	if err != nil {
		return err
	}
	f, wide, err := asFloat64(iv)
	if err != nil {
		return err
	}
	if wide {
		return w.WriteFloat64(f)
	}
	return w.WriteFloat32(float32(f))
}

func (floatFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	f, wide, err := r.ReadFloat()
	if err != nil {
		return nil, err
	}
	if t == nil {
		if wide {
			return f, nil
		}
		return float32(f), nil
	}
	return constructValue(t, f, Float, ctx)
}

// ============================================================
// String
// ============================================================

type stringFmt struct{}

// String encodes a str atom with the shortest length class.
var String Format = stringFmt{}

func (stringFmt) Name() string { return "String" }

func (stringFmt) Pack(w *Writer, v any, ctx Context) error {
	iv, err := destructValue(deref(v), String, ctx)
	if err != nil {
		return err
	}
	s, err := asString(iv)
	if err != nil {
		return err
	}
	return w.WriteString(s)
}

func (stringFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	s, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return constructValue(t, s, String, ctx)
}

// ============================================================
// Binary
// ============================================================

type binaryFmt struct{}

// Binary encodes a bin atom with the shortest length class.
var Binary Format = binaryFmt{}

func (binaryFmt) Name() string { return "Binary" }

func (binaryFmt) Pack(w *Writer, v any, ctx Context) error {
	iv, err := destructValue(deref(v), Binary, ctx)
	if err != nil {
		return err
	}
	p, err := asBytes(iv)
	if err != nil {
		return err
	}
	return w.WriteBinary(p)
}

func (binaryFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	p, err := r.ReadBinary()
	if err != nil {
		return nil, err
	}
	return constructValue(t, p, Binary, ctx)
}
