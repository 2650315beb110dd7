package mpack

import "reflect"

// ArrayValue is the shape-preserving intermediate packed by Array: a
// dimension tuple plus the elements flattened in row-major order.
type ArrayValue struct {
	Size []int
	Data []any
}

// BinArrayValue is the ArrayValue counterpart for BinArray, carrying
// the flat little-endian element storage instead of boxed elements.
type BinArrayValue struct {
	Size []int
	Data []byte
}

var (
	typeOfArrayValue    = reflect.TypeOf(ArrayValue{})
	typeOfBinArrayValue = reflect.TypeOf(BinArrayValue{})
)

// ============================================================
// Array
// ============================================================

type arrayFmt struct{}

// Array packs a multi-dimensional value as a two-entry map
// {"size": [d1 d2 ...], "data": [elements...]} with the elements in
// row-major order under Vector rules, so the decoder can reshape
// without guessing.
var Array Format = arrayFmt{}

func (arrayFmt) Name() string { return "Array" }

func (arrayFmt) Pack(w *Writer, v any, ctx Context) error {
	v = deref(v)
	iv, err := destructValue(v, Array, ctx)
	if err != nil {
		return err
	}
	av, ok := iv.(ArrayValue)
	if !ok {
		size, err := shapeOf(iv, Array)
		if err != nil {
			return err
		}
		av = ArrayValue{Size: size, Data: flattenElems(iv, len(size))}
	}
	if err := writeShapeHeader(w, av.Size); err != nil {
		return err
	}
	if err := w.WriteString("data"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(len(av.Data)); err != nil {
		return err
	}
	for _, e := range av.Data {
		if err := packValue(w, e, nil, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (arrayFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	size, err := readShapeHeader(r, Array)
	if err != nil {
		return nil, err
	}
	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	if total := product(size); n != total {
		return nil, unpackErrf(Array, "size %v wants %d elements, data has %d", size, total, n)
	}
	et := deepElemType(t, len(size))
	flat := make([]any, n)
	for i := range flat {
		flat[i], err = unpackValue(r, et, nil, ctx)
		if err != nil {
			return nil, err
		}
	}
	if t == nil || t == typeOfArrayValue {
		return ArrayValue{Size: size, Data: flat}, nil
	}
	if hook := constructHook(t, ctx); hook != nil {
		return hook(t, ArrayValue{Size: size, Data: flat}, Array)
	}
	return nestFlat(t, size, flat)
}

// ============================================================
// BinArray
// ============================================================

type binArrayFmt struct{}

// BinArray is Array with the elements bit-cast to a single bin atom:
// {"size": [...], "data": <bytes>}. Element storage is little-endian;
// bools occupy one byte each.
var BinArray Format = binArrayFmt{}

func (binArrayFmt) Name() string { return "BinArray" }

func (binArrayFmt) Pack(w *Writer, v any, ctx Context) error {
	v = deref(v)
	iv, err := destructValue(v, BinArray, ctx)
	if err != nil {
		return err
	}
	av, ok := iv.(BinArrayValue)
	if !ok {
		size, err := shapeOf(iv, BinArray)
		if err != nil {
			return err
		}
		flat := flattenElems(iv, len(size))
		if len(flat) > 0 {
			et := reflect.TypeOf(flat[0])
			typed := reflect.MakeSlice(reflect.SliceOf(et), len(flat), len(flat))
			for i, e := range flat {
				typed.Index(i).Set(reflect.ValueOf(e))
			}
			data, err := flattenBits(typed.Interface())
			if err != nil {
				return packErr(BinArray, err, "flatten elements")
			}
			av = BinArrayValue{Size: size, Data: data}
		} else {
			av = BinArrayValue{Size: size}
		}
	}
	if err := writeShapeHeader(w, av.Size); err != nil {
		return err
	}
	if err := w.WriteString("data"); err != nil {
		return err
	}
	return w.WriteBinary(av.Data)
}

func (binArrayFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	size, err := readShapeHeader(r, BinArray)
	if err != nil {
		return nil, err
	}
	data, err := r.ReadBinary()
	if err != nil {
		return nil, err
	}
	if t == nil || t == typeOfBinArrayValue {
		return BinArrayValue{Size: size, Data: data}, nil
	}
	if hook := constructHook(t, ctx); hook != nil {
		return hook(t, BinArrayValue{Size: size, Data: data}, BinArray)
	}
	et := deepElemType(t, len(size))
	if et == nil {
		return nil, unpackErrf(BinArray, "cannot infer element type of %v", t)
	}
	flatSlice, err := unflattenBits(reflect.SliceOf(et), data)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(flatSlice)
	if total := product(size); rv.Len() != total {
		return nil, unpackErrf(BinArray, "size %v wants %d elements, data has %d", size, total, rv.Len())
	}
	flat := make([]any, rv.Len())
	for i := range flat {
		flat[i] = rv.Index(i).Interface()
	}
	return nestFlat(t, size, flat)
}

// ============================================================
// Shape helpers
// ============================================================

func writeShapeHeader(w *Writer, size []int) error {
	if err := w.WriteMapHeader(2); err != nil {
		return err
	}
	if err := w.WriteString("size"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(len(size)); err != nil {
		return err
	}
	for _, d := range size {
		if err := w.WriteInt(int64(d)); err != nil {
			return err
		}
	}
	return nil
}

func readShapeHeader(r *Reader, f Format) ([]int, error) {
	n, err := r.ReadMapHeader()
	if err != nil {
		return nil, err
	}
	if n != 2 {
		return nil, unpackErrf(f, "expected 2 entries, found %d", n)
	}
	if err := expectKey(r, f, "size"); err != nil {
		return nil, err
	}
	dims, err := r.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	size := make([]int, dims)
	for i := range size {
		d, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		size[i] = int(d)
	}
	if err := expectKey(r, f, "data"); err != nil {
		return nil, err
	}
	return size, nil
}

// shapeOf walks nested sequences and returns their rectangular
// dimensions.
func shapeOf(v any, f Format) ([]int, error) {
	var size []int
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		size = append(size, rv.Len())
		if rv.Len() == 0 {
			break
		}
		// Ragged rows cannot be reshaped on the way back.
		first := rv.Index(0)
		if first.Kind() == reflect.Slice || first.Kind() == reflect.Array {
			for i := 1; i < rv.Len(); i++ {
				if rv.Index(i).Len() != first.Len() {
					return nil, packErrf(f, "ragged row %d: %d elements, row 0 has %d", i, rv.Index(i).Len(), first.Len())
				}
			}
		}
		rv = first
	}
	if size == nil {
		return nil, packErrf(f, "cannot destruct %T as shaped array", v)
	}
	return size, nil
}

// flattenElems collects the elements of a depth-dims nested sequence
// in row-major order.
func flattenElems(v any, dims int) []any {
	var out []any
	var walk func(rv reflect.Value, depth int)
	walk = func(rv reflect.Value, depth int) {
		if depth == 0 {
			out = append(out, rv.Interface())
			return
		}
		for i := 0; i < rv.Len(); i++ {
			walk(rv.Index(i), depth-1)
		}
	}
	walk(reflect.ValueOf(v), dims)
	return out
}

// deepElemType strips dims levels of sequence from t.
func deepElemType(t reflect.Type, dims int) reflect.Type {
	for i := 0; i < dims && t != nil; i++ {
		switch t.Kind() {
		case reflect.Slice, reflect.Array:
			t = t.Elem()
		default:
			return nil
		}
	}
	return t
}

// nestFlat rebuilds a nested value of type t from row-major elements.
func nestFlat(t reflect.Type, size []int, flat []any) (any, error) {
	if t.Kind() == reflect.Pointer {
		v, err := nestFlat(t.Elem(), size, flat)
		if err != nil {
			return nil, err
		}
		return convertTo(t, v)
	}
	if len(size) == 0 {
		if len(flat) != 1 {
			return nil, unpackErrf(Array, "scalar reshape from %d elements", len(flat))
		}
		return convertTo(t, flat[0])
	}
	d := size[0]
	var out reflect.Value
	switch t.Kind() {
	case reflect.Slice:
		out = reflect.MakeSlice(t, d, d)
	case reflect.Array:
		if t.Len() != d {
			return nil, unpackErrf(Array, "dimension %d does not match %s", d, t)
		}
		out = reflect.New(t).Elem()
	default:
		return nil, unpackErrf(Array, "cannot reshape into %s", t)
	}
	stride := len(flat) / max(d, 1)
	for i := 0; i < d; i++ {
		sub, err := nestFlat(t.Elem(), size[1:], flat[i*stride:(i+1)*stride])
		if err != nil {
			return nil, err
		}
		out.Index(i).Set(refValue(t.Elem(), sub))
	}
	return out.Interface(), nil
}

func product(size []int) int {
	n := 1
	for _, d := range size {
		n *= d
	}
	return n
}
