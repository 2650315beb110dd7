package mpack

import (
	"reflect"
	"strings"
)

// TypeDescriptor is the serializable identity of a type: its final
// identifier, its namespace chain, and its type parameters. Each
// parameter is either a nested TypeDescriptor or a primitive
// constant.
type TypeDescriptor struct {
	Name   string
	Path   []string
	Params []any
}

var typeOfTypeDescriptor = reflect.TypeOf(TypeDescriptor{})

// modulePath is the engine's own namespace chain, recognized
// specially during resolution so descriptors written by this module
// resolve even under a bare name.
var modulePath = []string{"github.com", "Neumenon", "mpack", "mpack"}

// canonicalName is the registry key for a type: the package path
// joined with the identifier. Builtins key on the bare identifier.
func canonicalName(t reflect.Type) string {
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	if pkg := t.PkgPath(); pkg != "" {
		return pkg + "." + name
	}
	return name
}

func descriptorKey(d TypeDescriptor) string {
	if len(d.Path) == 0 {
		return d.Name
	}
	return strings.Join(d.Path, "/") + "." + d.Name
}

// DescriptorFor reduces a type to its descriptor. Parameterized
// types must have TypeParams registered in their binding; a generic
// instantiation without that metadata cannot be named on the wire.
func DescriptorFor(t reflect.Type, ctx Context) (TypeDescriptor, error) {
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	d := TypeDescriptor{Name: name}
	if pkg := t.PkgPath(); pkg != "" {
		d.Path = strings.Split(pkg, "/")
	}
	if params, ok := typeParamsOf(t, ctx); ok {
		d.Params = params
	} else if i := strings.IndexByte(name, '['); i >= 0 {
		return TypeDescriptor{}, packErrf(TypeFormat, "type parameter metadata not registered for %s", t)
	}
	return d, nil
}

// resolveDescriptor maps a decoded descriptor back to a registered
// type, consulting the Reader's whitelist before anything is
// constructed from it.
func resolveDescriptor(r *Reader, d TypeDescriptor, ctx Context) (reflect.Type, error) {
	t, ok := typeByName(descriptorKey(d))
	if !ok && pathEqual(d.Path, modulePath) {
		t, ok = typeByName(d.Name)
	}
	if !ok {
		return nil, unpackErrf(TypeFormat, "unknown type %s", descriptorKey(d))
	}
	if r.allow != nil && !r.allow(t) {
		return nil, unpackErrf(TypeFormat, "type %s rejected by whitelist", t)
	}
	if len(d.Params) > 0 {
		if _, _, ok := typeParamTypesOf(t, ctx); !ok {
			return nil, unpackErrf(TypeFormat, "type parameter types not specified for %s", t)
		}
	}
	return t, nil
}

func pathEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ============================================================
// TypeFormat
// ============================================================

type typeFmt struct{}

// TypeFormat serializes a type itself: a three-entry map
// {"name": str, "path": [str...], "params": [...]} where each param
// is a nested descriptor or a primitive constant.
var TypeFormat Format = typeFmt{}

func (typeFmt) Name() string { return "Type" }

func (typeFmt) Pack(w *Writer, v any, ctx Context) error {
	var d TypeDescriptor
	// A reflect.Type is itself a pointer; deref would strip it.
	dv := deref(v)
	if rt, ok := v.(reflect.Type); ok {
		dv = rt
	}
	switch tv := dv.(type) {
	case TypeDescriptor:
		d = tv
	case reflect.Type:
		var err error
		d, err = DescriptorFor(tv, ctx)
		if err != nil {
			return err
		}
	default:
		iv, err := destructValue(tv, TypeFormat, ctx)
		if err != nil {
			return err
		}
		td, ok := iv.(TypeDescriptor)
		if !ok {
			return packErrf(TypeFormat, "cannot destruct %T as type descriptor", v)
		}
		d = td
	}
	return writeDescriptor(w, d, ctx)
}

func writeDescriptor(w *Writer, d TypeDescriptor, ctx Context) error {
	if err := w.WriteMapHeader(3); err != nil {
		return err
	}
	if err := w.WriteString("name"); err != nil {
		return err
	}
	if err := w.WriteString(d.Name); err != nil {
		return err
	}
	if err := w.WriteString("path"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(len(d.Path)); err != nil {
		return err
	}
	for _, seg := range d.Path {
		if err := w.WriteString(seg); err != nil {
			return err
		}
	}
	if err := w.WriteString("params"); err != nil {
		return err
	}
	if err := w.WriteArrayHeader(len(d.Params)); err != nil {
		return err
	}
	for _, p := range d.Params {
		switch pv := p.(type) {
		case TypeDescriptor:
			if err := writeDescriptor(w, pv, ctx); err != nil {
				return err
			}
		case *TypeDescriptor:
			if err := writeDescriptor(w, *pv, ctx); err != nil {
				return err
			}
		case reflect.Type:
			pd, err := DescriptorFor(pv, ctx)
			if err != nil {
				return err
			}
			if err := writeDescriptor(w, pd, ctx); err != nil {
				return err
			}
		default:
			if err := packValue(w, p, nil, ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (typeFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	d, err := readDescriptor(r, ctx)
	if err != nil {
		return nil, err
	}
	if t == nil || t == typeOfTypeDescriptor {
		return d, nil
	}
	if t.Implements(reflectTypeType) || t == reflectTypeType {
		return resolveDescriptor(r, d, ctx)
	}
	return constructValue(t, d, TypeFormat, ctx)
}

func readDescriptor(r *Reader, ctx Context) (TypeDescriptor, error) {
	var d TypeDescriptor
	n, err := r.ReadMapHeader()
	if err != nil {
		return d, err
	}
	if n != 3 {
		return d, unpackErrf(TypeFormat, "expected 3 entries, found %d", n)
	}
	if err := expectKey(r, TypeFormat, "name"); err != nil {
		return d, err
	}
	if d.Name, err = r.ReadString(); err != nil {
		return d, err
	}
	if err := expectKey(r, TypeFormat, "path"); err != nil {
		return d, err
	}
	segs, err := r.ReadArrayHeader()
	if err != nil {
		return d, err
	}
	d.Path = make([]string, segs)
	for i := range d.Path {
		if d.Path[i], err = r.ReadString(); err != nil {
			return d, err
		}
	}
	if err := expectKey(r, TypeFormat, "params"); err != nil {
		return d, err
	}
	m, err := r.ReadArrayHeader()
	if err != nil {
		return d, err
	}
	for i := 0; i < m; i++ {
		f, err := PeekFormat(r)
		if err != nil {
			return d, err
		}
		if f == Map {
			pd, err := readDescriptor(r, ctx)
			if err != nil {
				return d, err
			}
			d.Params = append(d.Params, pd)
			continue
		}
		p, err := Any.Unpack(r, nil, ctx)
		if err != nil {
			return d, err
		}
		d.Params = append(d.Params, p)
	}
	return d, nil
}

func expectKey(r *Reader, f Format, want string) error {
	key, err := r.ReadString()
	if err != nil {
		return err
	}
	if key != want {
		return unpackErrf(f, "expected key %q, found %q", want, key)
	}
	return nil
}
