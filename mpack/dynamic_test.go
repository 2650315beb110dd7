package mpack

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// measurements is a tagged sequence: the first entry names the
// element kind ("i" or "f") and every following entry decodes under
// the named kind. The iteration state accumulates the decoded tag,
// which is exactly the machinery self-describing values rely on.
type measurements []any

func init() {
	Register[measurements](Binding{
		Format:    DynamicVector,
		InitState: func() any { return "" },
		NextState: func(state, last any) any {
			if s, ok := state.(string); ok && s == "" {
				return last.(string)
			}
			return state
		},
		ValueType: func(state any) reflect.Type {
			s := state.(string)
			switch s {
			case "":
				return reflect.TypeOf("")
			case "i":
				return reflect.TypeOf(int64(0))
			default:
				return reflect.TypeOf(float64(0))
			}
		},
	})
}

func TestDynamicVector_StateDirectsElementTypes(t *testing.T) {
	v := measurements{"i", int64(10), int64(20), int64(30)}
	b, err := Pack(v)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x94, 0xa1, 'i', 0x0a, 0x14, 0x1e}, b)

	got, err := Unpack[measurements](b)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestDynamicVector_FloatTag(t *testing.T) {
	v := measurements{"f", 1.5, 2.5}
	b, err := Pack(v)
	require.NoError(t, err)

	got, err := Unpack[measurements](b)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

// ledger is a map whose value formats depend on the number of
// entries decoded so far: odd positions are integers, even positions
// strings. A contrived policy, but it exercises per-position
// dispatch with accumulated state.
type ledger []Pair

func init() {
	Register[ledger](Binding{
		Format: DynamicMap,
		Destruct: func(v any, f Format) (any, error) {
			return []Pair(v.(ledger)), nil
		},
		ValueType: func(state any) reflect.Type {
			if state.(int)%2 == 1 {
				return reflect.TypeOf(int64(0))
			}
			return reflect.TypeOf("")
		},
		Construct: func(t reflect.Type, in any, f Format) (any, error) {
			g := in.(*Generator)
			out := make(ledger, 0, g.Len())
			for !g.Drained() {
				p, err := g.NextPair()
				if err != nil {
					return nil, err
				}
				out = append(out, p)
			}
			return out, nil
		},
	})
}

func TestDynamicMap_PositionalValueTypes(t *testing.T) {
	v := ledger{
		{Key: "first", Value: int64(1)},
		{Key: "second", Value: "two"},
		{Key: "third", Value: int64(3)},
	}
	b, err := Pack(v)
	require.NoError(t, err)

	got, err := Unpack[ledger](b)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

// ============================================================
// Generator Contract
// ============================================================

type lazyPair struct {
	a, b int64
}

func init() {
	Register[lazyPair](Binding{
		Format: Vector,
		Destruct: func(v any, f Format) (any, error) {
			lp := v.(lazyPair)
			return []any{lp.a, lp.b}, nil
		},
		ValueType: func(state any) reflect.Type { return reflect.TypeOf(int64(0)) },
		Construct: func(t reflect.Type, in any, f Format) (any, error) {
			g := in.(*Generator)
			a, err := g.Next()
			if err != nil {
				return nil, err
			}
			b, err := g.Next()
			if err != nil {
				return nil, err
			}
			return lazyPair{a: a.(int64), b: b.(int64)}, nil
		},
	})
}

func TestGenerator_ConstructDrains(t *testing.T) {
	v := lazyPair{a: 4, b: 5}
	b, err := Pack(v)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x92, 0x04, 0x05}, b)

	got, err := Unpack[lazyPair](b)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

type sloppyPair struct {
	a int64
}

func init() {
	Register[sloppyPair](Binding{
		Format: Vector,
		Destruct: func(v any, f Format) (any, error) {
			return []any{v.(sloppyPair).a, int64(0)}, nil
		},
		ValueType: func(state any) reflect.Type { return reflect.TypeOf(int64(0)) },
		Construct: func(t reflect.Type, in any, f Format) (any, error) {
			g := in.(*Generator)
			a, err := g.Next()
			if err != nil {
				return nil, err
			}
			// Contract violation: the second entry is never read.
			return sloppyPair{a: a.(int64)}, nil
		},
	})
}

func TestGenerator_UndrainedIsInvariantViolation(t *testing.T) {
	b, err := Pack(sloppyPair{a: 1})
	require.NoError(t, err)

	_, err = Unpack[sloppyPair](b)
	require.Error(t, err)
	var ie *InvariantError
	require.True(t, asErr(err, &ie))
	assert.Contains(t, ie.Msg, "undrained")
}

func TestGenerator_ReadPastEnd(t *testing.T) {
	g := &Generator{n: 0}
	_, err := g.Next()
	require.Error(t, err)
}

func TestGenerator_LenAndRemaining(t *testing.T) {
	b, err := Pack([]int64{1, 2, 3})
	require.NoError(t, err)

	r := NewReader(newByteReader(b))
	n, err := r.ReadArrayHeader()
	require.NoError(t, err)
	g := &Generator{r: r, ctx: DefaultContext, n: n, state: 1}
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 3, g.Remaining())
	_, err = g.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, g.Remaining())
	_, err = g.drainInto()
	require.NoError(t, err)
	assert.True(t, g.Drained())
}
