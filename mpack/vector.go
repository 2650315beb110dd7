package mpack

import (
	"encoding/binary"
	"math"
	"reflect"
)

// ============================================================
// Vector
// ============================================================

type vectorFmt struct{}

// Vector encodes a sequence as an array header followed by each
// element packed under the per-position value format. Positions are
// 1-based, matching the value the element hooks receive as state.
var Vector Format = vectorFmt{}

func (vectorFmt) Name() string { return "Vector" }

func (vectorFmt) Pack(w *Writer, v any, ctx Context) error {
	return packVector(w, v, Vector, ctx, false)
}

func (vectorFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	return unpackVector(r, t, Vector, ctx, false)
}

// ============================================================
// DynamicVector
// ============================================================

type dynamicVectorFmt struct{}

// DynamicVector is Vector with a caller-defined iteration state: the
// state starts at InitState and advances through NextState with each
// decoded entry, so the type and format of element i may depend on
// elements 1..i-1. This is the machinery that lets self-describing
// values carry their own type first and their payload second.
var DynamicVector Format = dynamicVectorFmt{}

func (dynamicVectorFmt) Name() string { return "DynamicVector" }

func (dynamicVectorFmt) Pack(w *Writer, v any, ctx Context) error {
	return packVector(w, v, DynamicVector, ctx, true)
}

func (dynamicVectorFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	return unpackVector(r, t, DynamicVector, ctx, true)
}

func packVector(w *Writer, v any, f Format, ctx Context, dynamic bool) error {
	v = deref(v)
	t := reflect.TypeOf(v)
	iv, err := destructValue(v, f, ctx)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(iv)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return packErrf(f, "cannot destruct %T as sequence", iv)
	}
	n := rv.Len()
	if err := w.WriteArrayHeader(n); err != nil {
		return err
	}
	state := any(1)
	if dynamic {
		state = initStateOf(t, ctx)
	}
	for i := 0; i < n; i++ {
		elem := rv.Index(i).Interface()
		vf := valueFormatOf(t, state, ctx)
		if err := packValue(w, elem, vf, ctx); err != nil {
			return err
		}
		if dynamic {
			state = nextStateOf(t, ctx, state, elem)
		} else {
			state = state.(int) + 1
		}
	}
	return nil
}

func unpackVector(r *Reader, t reflect.Type, f Format, ctx Context, dynamic bool) (any, error) {
	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	g := &Generator{
		r:         r,
		ctx:       ctx,
		container: t,
		owner:     f,
		n:         n,
		state:     1,
		dynamic:   dynamic,
	}
	if dynamic {
		g.state = initStateOf(t, ctx)
	}
	return constructSequence(t, g, f, ctx)
}

// constructSequence hands the generator to a registered Construct
// hook, or drains it into the target container reflectively. Either
// way the generator must come back drained.
func constructSequence(t reflect.Type, g *Generator, f Format, ctx Context) (any, error) {
	if t != nil {
		if hook := constructHook(t, ctx); hook != nil {
			v, err := hook(t, g, f)
			if err != nil {
				return nil, err
			}
			if !g.Drained() {
				return nil, &InvariantError{Msg: "construct for " + t.String() + " left generator undrained"}
			}
			return v, nil
		}
	}
	if t == nil || t == anyType {
		return g.drainInto()
	}
	switch t.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(t, 0, g.Len())
		for !g.Drained() {
			v, err := g.Next()
			if err != nil {
				return nil, err
			}
			ev, err := convertTo(t.Elem(), v)
			if err != nil {
				return nil, err
			}
			out = reflect.Append(out, refValue(t.Elem(), ev))
		}
		return out.Interface(), nil
	case reflect.Array:
		if t.Len() != g.Len() {
			return nil, unpackErrf(f, "array length %d does not match %s", g.Len(), t)
		}
		out := reflect.New(t).Elem()
		for i := 0; !g.Drained(); i++ {
			v, err := g.Next()
			if err != nil {
				return nil, err
			}
			ev, err := convertTo(t.Elem(), v)
			if err != nil {
				return nil, err
			}
			out.Index(i).Set(refValue(t.Elem(), ev))
		}
		return out.Interface(), nil
	case reflect.Pointer:
		v, err := constructSequence(t.Elem(), g, f, ctx)
		if err != nil {
			return nil, err
		}
		return convertTo(t, v)
	}
	// Last resort: drain and hand the slice to constructValue.
	vals, err := g.drainInto()
	if err != nil {
		return nil, err
	}
	return constructValue(t, vals, f, ctx)
}

// ============================================================
// BinVector
// ============================================================

type binVectorFmt struct{}

// BinVector packs a flat sequence of fixed-size primitive elements as
// a single bin atom holding the little-endian element storage.
var BinVector Format = binVectorFmt{}

func (binVectorFmt) Name() string { return "BinVector" }

func (binVectorFmt) Pack(w *Writer, v any, ctx Context) error {
	v = deref(v)
	iv, err := destructValue(v, BinVector, ctx)
	if err != nil {
		return err
	}
	if p, ok := iv.([]byte); ok {
		return w.WriteBinary(p)
	}
	p, err := flattenBits(iv)
	if err != nil {
		return err
	}
	return w.WriteBinary(p)
}

func (binVectorFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	p, err := r.ReadBinary()
	if err != nil {
		return nil, err
	}
	if t == nil {
		return p, nil
	}
	if hook := constructHook(t, ctx); hook != nil {
		return hook(t, p, BinVector)
	}
	return unflattenBits(t, p)
}

// elemWidth returns the storage width of a fixed-size element kind,
// or 0 for kinds BinVector cannot carry.
func elemWidth(k reflect.Kind) int {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8
	}
	return 0
}

// flattenBits serializes a slice or array of fixed-size primitives to
// little-endian element storage. Bools become one byte each.
func flattenBits(v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return nil, packErrf(BinVector, "cannot destruct %T as flat sequence", v)
	}
	ek := rv.Type().Elem().Kind()
	width := elemWidth(ek)
	if width == 0 {
		return nil, packErrf(BinVector, "element kind %s is not fixed-size", ek)
	}
	out := make([]byte, rv.Len()*width)
	for i := 0; i < rv.Len(); i++ {
		e := rv.Index(i)
		var bits uint64
		switch ek {
		case reflect.Bool:
			if e.Bool() {
				bits = 1
			}
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			bits = uint64(e.Int())
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			bits = e.Uint()
		case reflect.Float32:
			bits = uint64(math.Float32bits(float32(e.Float())))
		case reflect.Float64:
			bits = math.Float64bits(e.Float())
		}
		switch width {
		case 1:
			out[i] = byte(bits)
		case 2:
			binary.LittleEndian.PutUint16(out[i*2:], uint16(bits))
		case 4:
			binary.LittleEndian.PutUint32(out[i*4:], uint32(bits))
		case 8:
			binary.LittleEndian.PutUint64(out[i*8:], bits)
		}
	}
	return out, nil
}

// unflattenBits rebuilds a typed slice from little-endian element
// storage.
func unflattenBits(t reflect.Type, p []byte) (any, error) {
	et := t
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		et = t.Elem()
	} else {
		return nil, unpackErrf(BinVector, "cannot construct %s from flat bytes", t)
	}
	width := elemWidth(et.Kind())
	if width == 0 {
		return nil, unpackErrf(BinVector, "element kind %s is not fixed-size", et.Kind())
	}
	if len(p)%width != 0 {
		return nil, unpackErrf(BinVector, "payload of %d bytes is not a multiple of element width %d", len(p), width)
	}
	n := len(p) / width
	if t.Kind() == reflect.Array && t.Len() != n {
		return nil, unpackErrf(BinVector, "payload holds %d elements, %s wants %d", n, t, t.Len())
	}
	var out reflect.Value
	if t.Kind() == reflect.Slice {
		out = reflect.MakeSlice(t, n, n)
	} else {
		out = reflect.New(t).Elem()
	}
	for i := 0; i < n; i++ {
		var bits uint64
		for b := 0; b < width; b++ {
			bits |= uint64(p[i*width+b]) << (8 * b)
		}
		e := out.Index(i)
		switch et.Kind() {
		case reflect.Bool:
			e.SetBool(bits != 0)
		case reflect.Int8:
			e.SetInt(int64(int8(bits)))
		case reflect.Int16:
			e.SetInt(int64(int16(bits)))
		case reflect.Int32:
			e.SetInt(int64(int32(bits)))
		case reflect.Int64:
			e.SetInt(int64(bits))
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			e.SetUint(bits)
		case reflect.Float32:
			e.SetFloat(float64(math.Float32frombits(uint32(bits))))
		case reflect.Float64:
			e.SetFloat(math.Float64frombits(bits))
		}
	}
	return out.Interface(), nil
}
