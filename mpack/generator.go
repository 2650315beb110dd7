package mpack

import "reflect"

// Pair is the key-value intermediate produced by map-shaped formats.
type Pair struct {
	Key   any
	Value any
}

// Generator is a single-pass lazy cursor over the entries of a
// decoded array or map. It reads directly from the enclosing
// Reader, so entries must be consumed in order and the generator
// must be fully drained before the outer unpack continues; Construct
// hooks that return early corrupt the stream for everything after
// them.
//
// The generator yields exactly Len() items, matching the wire header
// the caller decoded.
type Generator struct {
	r   *Reader
	ctx Context

	container reflect.Type // target container type; nil for generic decode
	owner     Format       // the format driving this generator

	n, i    int
	state   any
	dynamic bool // thread state through the NextState hook
	keyed   bool // yields pairs

	size []int // element shape, when the wire carried one
}

// Len returns the total number of entries this generator yields.
func (g *Generator) Len() int { return g.n }

// Remaining returns how many entries are still unread.
func (g *Generator) Remaining() int { return g.n - g.i }

// Drained reports whether every entry has been consumed. The engine
// checks this after Construct returns and treats an undrained
// generator as a contract violation.
func (g *Generator) Drained() bool { return g.i >= g.n }

// Size returns the multi-dimensional shape recorded on the generator,
// or nil. Array and BinArray decode without a generator, so the
// generators of the built-in formats always report nil.
func (g *Generator) Size() []int { return g.size }

// ElemType returns the static element type the next entry decodes
// into, or nil for a generic decode.
func (g *Generator) ElemType() reflect.Type {
	return valueTypeOf(g.container, g.state, g.ctx)
}

// Next decodes and returns the next element of an array-shaped
// generator.
func (g *Generator) Next() (any, error) {
	if g.i >= g.n {
		return nil, unpackErrf(g.owner, "generator read past %d entries", g.n)
	}
	vt := valueTypeOf(g.container, g.state, g.ctx)
	vf := valueFormatOf(g.container, g.state, g.ctx)
	v, err := unpackValue(g.r, vt, vf, g.ctx)
	if err != nil {
		return nil, err
	}
	g.advance(v)
	return v, nil
}

// NextPair decodes and returns the next entry of a map-shaped
// generator.
func (g *Generator) NextPair() (Pair, error) {
	if g.i >= g.n {
		return Pair{}, unpackErrf(g.owner, "generator read past %d entries", g.n)
	}
	kt := keyTypeOf(g.container, g.state, g.ctx)
	kf := keyFormatOf(g.container, g.state, g.ctx)
	k, err := unpackValue(g.r, kt, kf, g.ctx)
	if err != nil {
		return Pair{}, err
	}
	vt := valueTypeOf(g.container, g.state, g.ctx)
	vf := valueFormatOf(g.container, g.state, g.ctx)
	v, err := unpackValue(g.r, vt, vf, g.ctx)
	if err != nil {
		return Pair{}, err
	}
	p := Pair{Key: k, Value: v}
	g.advance(p)
	return p, nil
}

func (g *Generator) advance(last any) {
	g.i++
	if g.dynamic {
		g.state = nextStateOf(g.container, g.ctx, g.state, last)
		return
	}
	if i, ok := g.state.(int); ok {
		g.state = i + 1
	}
}

// drainInto collects every remaining element into a []any.
func (g *Generator) drainInto() ([]any, error) {
	out := make([]any, 0, g.Remaining())
	for !g.Drained() {
		v, err := g.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// drainPairs collects every remaining entry into a []Pair.
func (g *Generator) drainPairs() ([]Pair, error) {
	out := make([]Pair, 0, g.Remaining())
	for !g.Drained() {
		p, err := g.NextPair()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
