package mpack

import "reflect"

// Format is a wire-encoding strategy. Formats are stateless: the
// catalog values (Nil, Bool, Vector, Struct, ...) are process-lifetime
// singletons, and parameterized formats (Typed, Extension, SetContext)
// are immutable wrappers around other formats.
//
// Pack converts v to wire bytes; Unpack reconstructs a value of type t
// from wire bytes. A nil t requests a generic (dynamically typed)
// decode where the format supports one.
type Format interface {
	Name() string
	Pack(w *Writer, v any, ctx Context) error
	Unpack(r *Reader, t reflect.Type, ctx Context) (any, error)
}

// ============================================================
// Default: lazy format indirection
// ============================================================

// defaultFmt reroutes to the registry at pack/unpack time. It must
// never itself be the format a type resolves to; resolveFormat guards
// against that and reports an InvariantError.
type defaultFmt struct{}

// Default defers format selection until pack/unpack time, when the
// registry is consulted for format(T, ctx). Useful as the inner format
// of wrappers: Typed(Default) packs any value under its own resolved
// format.
var Default Format = defaultFmt{}

func (defaultFmt) Name() string { return "Default" }

func (defaultFmt) Pack(w *Writer, v any, ctx Context) error {
	f, err := resolveFormat(reflect.TypeOf(v), ctx)
	if err != nil {
		return err
	}
	return f.Pack(w, v, ctx)
}

func (defaultFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	if t == nil {
		return Any.Unpack(r, nil, ctx)
	}
	f, err := resolveFormat(t, ctx)
	if err != nil {
		return nil, err
	}
	return f.Unpack(r, t, ctx)
}

func isDefault(f Format) bool {
	_, ok := f.(defaultFmt)
	return ok
}

// resolveFormat maps Default to the registered format of t, rejecting
// a registration that resolves back to Default.
func resolveFormat(t reflect.Type, ctx Context) (Format, error) {
	f := formatFor(t, ctx)
	if isDefault(f) {
		name := "<nil>"
		if t != nil {
			name = t.String()
		}
		return nil, &InvariantError{Msg: "format for " + name + " resolves to Default"}
	}
	return f, nil
}

// ============================================================
// SetContext: scoped context substitution
// ============================================================

type setContextFmt struct {
	ctx   Context
	inner Format
}

// SetContext returns a wrapper format that ignores the ambient context
// and packs/unpacks under c instead, delegating the wire work to
// inner. It enables per-field context overrides inside a struct or
// container binding.
func SetContext(c Context, inner Format) Format {
	return setContextFmt{ctx: c, inner: inner}
}

func (s setContextFmt) Name() string {
	return "SetContext(" + s.ctx.ContextName() + ", " + s.inner.Name() + ")"
}

func (s setContextFmt) Pack(w *Writer, v any, _ Context) error {
	return s.inner.Pack(w, v, s.ctx)
}

func (s setContextFmt) Unpack(r *Reader, t reflect.Type, _ Context) (any, error) {
	return s.inner.Unpack(r, t, s.ctx)
}
