package mpack

import (
	"bytes"
	"reflect"
	"sort"
)

// ============================================================
// Map
// ============================================================

type mapFmt struct{}

// Map encodes a keyed collection as a map header followed by each
// pair packed under the per-position key and value formats. Go map
// iteration order is not deterministic, so unordered inputs are
// packed in sorted key order; a Destruct hook returning []Pair
// controls the order explicitly.
var Map Format = mapFmt{}

func (mapFmt) Name() string { return "Map" }

func (mapFmt) Pack(w *Writer, v any, ctx Context) error {
	return packMap(w, v, Map, ctx, false)
}

func (mapFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	return unpackMap(r, t, Map, ctx, false)
}

// ============================================================
// DynamicMap
// ============================================================

type dynamicMapFmt struct{}

// DynamicMap is Map with the same iteration-state machinery as
// DynamicVector: each decoded pair feeds NextState, so later entries
// may decode under types and formats chosen from earlier ones.
var DynamicMap Format = dynamicMapFmt{}

func (dynamicMapFmt) Name() string { return "DynamicMap" }

func (dynamicMapFmt) Pack(w *Writer, v any, ctx Context) error {
	return packMap(w, v, DynamicMap, ctx, true)
}

func (dynamicMapFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	return unpackMap(r, t, DynamicMap, ctx, true)
}

func packMap(w *Writer, v any, f Format, ctx Context, dynamic bool) error {
	v = deref(v)
	t := reflect.TypeOf(v)
	iv, err := destructValue(v, f, ctx)
	if err != nil {
		return err
	}
	pairs, ok := iv.([]Pair)
	if !ok {
		rv := reflect.ValueOf(iv)
		if rv.Kind() != reflect.Map {
			return packErrf(f, "cannot destruct %T as keyed collection", iv)
		}
		pairs = make([]Pair, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, Pair{Key: iter.Key().Interface(), Value: iter.Value().Interface()})
		}
		if err := sortPairs(pairs, ctx); err != nil {
			return err
		}
	}
	if err := w.WriteMapHeader(len(pairs)); err != nil {
		return err
	}
	state := any(1)
	if dynamic {
		state = initStateOf(t, ctx)
	}
	for _, p := range pairs {
		kf := keyFormatOf(t, state, ctx)
		if err := packValue(w, p.Key, kf, ctx); err != nil {
			return err
		}
		vf := valueFormatOf(t, state, ctx)
		if err := packValue(w, p.Value, vf, ctx); err != nil {
			return err
		}
		if dynamic {
			state = nextStateOf(t, ctx, state, p)
		} else {
			state = state.(int) + 1
		}
	}
	return nil
}

// sortPairs orders map entries deterministically: natural order for
// string and integer keys, packed-byte order for anything else,
// including keys of mixed types.
func sortPairs(pairs []Pair, ctx Context) error {
	if len(pairs) < 2 {
		return nil
	}
	k := reflect.ValueOf(pairs[0].Key).Kind()
	for _, p := range pairs[1:] {
		if reflect.TypeOf(p.Key) != reflect.TypeOf(pairs[0].Key) {
			k = reflect.Invalid
			break
		}
	}
	if _, ok := pairs[0].Key.(string); ok && k == reflect.String {
		sort.Slice(pairs, func(i, j int) bool {
			return pairs[i].Key.(string) < pairs[j].Key.(string)
		})
		return nil
	}
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sort.Slice(pairs, func(i, j int) bool {
			return reflect.ValueOf(pairs[i].Key).Int() < reflect.ValueOf(pairs[j].Key).Int()
		})
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		sort.Slice(pairs, func(i, j int) bool {
			return reflect.ValueOf(pairs[i].Key).Uint() < reflect.ValueOf(pairs[j].Key).Uint()
		})
	case reflect.String:
		sort.Slice(pairs, func(i, j int) bool {
			return reflect.ValueOf(pairs[i].Key).String() < reflect.ValueOf(pairs[j].Key).String()
		})
	default:
		keys := make([][]byte, len(pairs))
		for i, p := range pairs {
			var buf bytes.Buffer
			if err := packValue(NewWriter(&buf), p.Key, nil, ctx); err != nil {
				return err
			}
			keys[i] = buf.Bytes()
		}
		sort.Sort(&byPackedKey{pairs: pairs, keys: keys})
	}
	return nil
}

type byPackedKey struct {
	pairs []Pair
	keys  [][]byte
}

func (s *byPackedKey) Len() int           { return len(s.pairs) }
func (s *byPackedKey) Less(i, j int) bool { return bytes.Compare(s.keys[i], s.keys[j]) < 0 }
func (s *byPackedKey) Swap(i, j int) {
	s.pairs[i], s.pairs[j] = s.pairs[j], s.pairs[i]
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
}

func unpackMap(r *Reader, t reflect.Type, f Format, ctx Context, dynamic bool) (any, error) {
	n, err := r.ReadMapHeader()
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
		keyed:     true,
	}
	if dynamic {
		g.state = initStateOf(t, ctx)
	}
	return constructMapping(t, g, f, ctx)
}

// constructMapping hands the keyed generator to a registered
// Construct hook, or drains it into the target map reflectively.
func constructMapping(t reflect.Type, g *Generator, f Format, ctx Context) (any, error) {
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
		out := make(map[any]any, g.Len())
		for !g.Drained() {
			p, err := g.NextPair()
			if err != nil {
				return nil, err
			}
			out[hashable(p.Key)] = p.Value
		}
		return out, nil
	}
	if t.Kind() == reflect.Pointer {
		v, err := constructMapping(t.Elem(), g, f, ctx)
		if err != nil {
			return nil, err
		}
		return convertTo(t, v)
	}
	if t.Kind() == reflect.Map {
		out := reflect.MakeMapWithSize(t, g.Len())
		for !g.Drained() {
			p, err := g.NextPair()
			if err != nil {
				return nil, err
			}
			k, err := convertTo(t.Key(), p.Key)
			if err != nil {
				return nil, err
			}
			v, err := convertTo(t.Elem(), p.Value)
			if err != nil {
				return nil, err
			}
			out.SetMapIndex(refValue(t.Key(), k), refValue(t.Elem(), v))
		}
		return out.Interface(), nil
	}
	pairs, err := g.drainPairs()
	if err != nil {
		return nil, err
	}
	return constructValue(t, pairs, f, ctx)
}

// hashable coerces decoded keys that cannot be Go map keys.
func hashable(k any) any {
	if b, ok := k.([]byte); ok {
		return string(b)
	}
	return k
}
