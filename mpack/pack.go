package mpack

import (
	"bytes"
	"io"
	"reflect"
)

// PackOptions selects the wire format and context for one pack call.
// Zero values mean: resolve the format from the value's type, and
// use the ambient DefaultContext.
type PackOptions struct {
	Format  Format
	Context Context
}

// UnpackOptions selects the wire format, context, and reconstruction
// whitelist for one unpack call. A nil Allow is permissive; a
// non-nil Allow is consulted before any wire-named type is
// instantiated.
type UnpackOptions struct {
	Format  Format
	Context Context
	Allow   func(reflect.Type) bool
}

// Pack encodes v under its resolved format and the default context.
func Pack(v any) ([]byte, error) {
	return PackWithOptions(v, PackOptions{})
}

// PackWithOptions encodes v with explicit format and context.
func PackWithOptions(v any, opts PackOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := PackTo(&buf, v, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackTo encodes v onto a caller-owned stream. The stream is neither
// buffered beyond the value being written nor closed; a failed pack
// leaves whatever bytes were already emitted.
func PackTo(w io.Writer, v any, opts PackOptions) error {
	ctx := ctxOrDefault(opts.Context)
	mw, ok := w.(*Writer)
	if !ok {
		mw = NewWriter(w)
	}
	return packValue(mw, v, opts.Format, ctx)
}

// Unpack decodes one value of type T under T's resolved format and
// the default context.
func Unpack[T any](data []byte) (T, error) {
	return UnpackWithOptions[T](data, UnpackOptions{})
}

// UnpackWithOptions decodes one value of type T with explicit
// format, context, and whitelist.
func UnpackWithOptions[T any](data []byte, opts UnpackOptions) (T, error) {
	return UnpackFrom[T](bytes.NewReader(data), opts)
}

// UnpackFrom decodes one value of type T from a caller-owned stream.
func UnpackFrom[T any](r io.Reader, opts UnpackOptions) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	mr, ok := r.(*Reader)
	if !ok {
		mr = NewReader(r)
	}
	if opts.Allow != nil {
		mr.allow = opts.Allow
	}
	ctx := ctxOrDefault(opts.Context)
	v, err := unpackValue(mr, t, opts.Format, ctx)
	if err != nil {
		return zero, err
	}
	out, err := convertTo(t, v)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	return out.(T), nil
}

// UnpackAny decodes one value generically, without a target type.
func UnpackAny(data []byte) (any, error) {
	return UnpackAnyFrom(bytes.NewReader(data))
}

// UnpackAnyFrom decodes one value generically from a stream.
func UnpackAnyFrom(r io.Reader) (any, error) {
	mr, ok := r.(*Reader)
	if !ok {
		mr = NewReader(r)
	}
	return Any.Unpack(mr, nil, DefaultContext)
}

// ============================================================
// Internal recursion points
// ============================================================

// packValue is the engine's pack entry: resolve a nil or Default
// format against the value's dynamic type, then delegate.
func packValue(w *Writer, v any, f Format, ctx Context) error {
	if f == nil || isDefault(f) {
		t := reflect.TypeOf(v)
		var err error
		f, err = resolveFormat(t, ctx)
		if err != nil {
			return err
		}
	}
	return f.Pack(w, v, ctx)
}

// unpackValue is the engine's unpack entry: resolve a nil or Default
// format against the static target type, then delegate.
func unpackValue(r *Reader, t reflect.Type, f Format, ctx Context) (any, error) {
	if f == nil || isDefault(f) {
		if t == nil {
			return Any.Unpack(r, nil, ctx)
		}
		var err error
		f, err = resolveFormat(t, ctx)
		if err != nil {
			return nil, err
		}
	}
	return f.Unpack(r, t, ctx)
}
