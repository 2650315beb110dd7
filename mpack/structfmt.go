package mpack

import "reflect"

// Struct-shaped formats encode a value as a map of field name to
// field value. Keys are always packed in String format; values follow
// the field formats from the binding (or the field types' own
// formats). The three variants differ only in how strictly the
// decoder treats key order and unknown keys.

type structKind int

const (
	structOrdered structKind = iota
	structUnordered
	structFlexible
)

type structFmt struct {
	kind structKind
}

// Struct expects fields on the wire in exactly the declared order.
var Struct Format = structFmt{structOrdered}

// UnorderedStruct accepts fields in any order, rejecting duplicate
// and unknown keys.
var UnorderedStruct Format = structFmt{structUnordered}

// FlexibleStruct accepts fields in any order and silently skips
// unknown keys; declared fields absent from the stream are an error,
// and duplicates are rejected like UnorderedStruct.
var FlexibleStruct Format = structFmt{structFlexible}

func (s structFmt) Name() string {
	switch s.kind {
	case structUnordered:
		return "UnorderedStruct"
	case structFlexible:
		return "FlexibleStruct"
	}
	return "Struct"
}

func (s structFmt) Pack(w *Writer, v any, ctx Context) error {
	v = deref(v)
	t := reflect.TypeOf(v)
	names, _, formats, err := structFields(t, ctx)
	if err != nil {
		return err
	}
	vals, err := fieldValues(v, t, ctx, names)
	if err != nil {
		return err
	}
	if err := w.WriteMapHeader(len(names)); err != nil {
		return err
	}
	for i, name := range names {
		if err := w.WriteString(name); err != nil {
			return err
		}
		if err := packValue(w, vals[i], formats[i], ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s structFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	if t != nil && t.Kind() == reflect.Pointer {
		v, err := s.Unpack(r, t.Elem(), ctx)
		if err != nil {
			return nil, err
		}
		return convertTo(t, v)
	}
	names, types, formats, err := structFields(t, ctx)
	if err != nil {
		return nil, err
	}
	n, err := r.ReadMapHeader()
	if err != nil {
		return nil, err
	}
	fieldType := func(i int) reflect.Type {
		if types != nil {
			return types[i]
		}
		return nil
	}

	vals := make([]any, len(names))
	switch s.kind {
	case structOrdered:
		if n != len(names) {
			return nil, unpackErrf(s, "%v has %d fields, stream has %d", t, len(names), n)
		}
		for i := 0; i < n; i++ {
			key, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			if key != names[i] {
				return nil, unpackErrf(s, "expected field %q, found %q", names[i], key)
			}
			vals[i], err = unpackValue(r, fieldType(i), formats[i], ctx)
			if err != nil {
				return nil, err
			}
		}

	default:
		index := make(map[string]int, len(names))
		for i, name := range names {
			index[name] = i
		}
		seen := make([]bool, len(names))
		for k := 0; k < n; k++ {
			key, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			i, ok := index[key]
			if !ok {
				if s.kind == structFlexible {
					if err := Skip(r); err != nil {
						return nil, err
					}
					continue
				}
				return nil, unpackErrf(s, "unknown field %q", key)
			}
			if seen[i] {
				return nil, unpackErrf(s, "duplicate field %q", key)
			}
			seen[i] = true
			vals[i], err = unpackValue(r, fieldType(i), formats[i], ctx)
			if err != nil {
				return nil, err
			}
		}
		for i, ok := range seen {
			if !ok {
				return nil, unpackErrf(s, "missing field %q", names[i])
			}
		}
	}

	return constructStruct(t, names, vals, s, ctx)
}

// constructStruct finishes an unpack: a registered Construct hook
// receives the collected (name, value) pairs; the default builds the
// value positionally from the field values in declared order.
func constructStruct(t reflect.Type, names []string, vals []any, f Format, ctx Context) (any, error) {
	if t != nil {
		if hook := constructHook(t, ctx); hook != nil {
			pairs := make([]Pair, len(names))
			for i := range names {
				pairs[i] = Pair{Key: names[i], Value: vals[i]}
			}
			return hook(t, pairs, f)
		}
	}
	return buildStruct(t, ctx, vals)
}
