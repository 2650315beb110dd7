package mpack

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vehicle interface {
	Wheels() int
}

type boat struct {
	A int64 `mpack:"a"`
}

func (boat) Wheels() int { return 0 }

type train struct {
	A int64 `mpack:"a"`
}

func (train) Wheels() int { return 99 }

func init() {
	Register[boat](Binding{})
	Register[train](Binding{})
}

func TestTyped_SelfDescribingRoundTrip(t *testing.T) {
	b, err := PackWithOptions(boat{A: 42}, PackOptions{Format: Typed(Struct)})
	require.NoError(t, err)

	// {"type": {...}, "value": {"a": 42}}
	assert.Equal(t, byte(0x82), b[0])

	got, err := UnpackWithOptions[vehicle](b, UnpackOptions{Format: Typed(Struct)})
	require.NoError(t, err)
	assert.Equal(t, boat{A: 42}, got)
	assert.Equal(t, 0, got.Wheels())
}

func TestTyped_UnrelatedTypeRejected(t *testing.T) {
	b, err := PackWithOptions(boat{A: 42}, PackOptions{Format: Typed(Struct)})
	require.NoError(t, err)

	_, err = UnpackWithOptions[train](b, UnpackOptions{Format: Typed(Struct)})
	require.Error(t, err)
	var ue *UnpackError
	require.True(t, asErr(err, &ue))
	assert.Contains(t, ue.Msg, "boat")
}

func TestTyped_DescriptorCarriesNamespace(t *testing.T) {
	b, err := PackWithOptions(boat{A: 1}, PackOptions{Format: Typed(Struct)})
	require.NoError(t, err)

	tv, err := UnpackWithOptions[TypedValue](b, UnpackOptions{Format: Typed(Struct)})
	require.NoError(t, err)
	assert.Equal(t, "boat", tv.Type.Name)
	assert.Equal(t, []string{"github.com", "Neumenon", "mpack", "mpack"}, tv.Type.Path)
	assert.Empty(t, tv.Type.Params)
	assert.Equal(t, boat{A: 1}, tv.Value)
}

func TestTyped_DefaultInnerResolvesPayloadFormat(t *testing.T) {
	b, err := PackWithOptions(boat{A: 7}, PackOptions{Format: Typed(Default)})
	require.NoError(t, err)

	got, err := UnpackWithOptions[vehicle](b, UnpackOptions{Format: Typed(Default)})
	require.NoError(t, err)
	assert.Equal(t, boat{A: 7}, got)
}

type loopy struct {
	X int64 `mpack:"x"`
}

func init() {
	Register[loopy](Binding{Format: Typed(Default)})
}

func TestTyped_RecursionGuard(t *testing.T) {
	_, err := Pack(loopy{X: 1})
	require.Error(t, err)
	var pe *PackError
	require.True(t, asErr(err, &pe))
	assert.Contains(t, pe.Msg, "recursive")
}

func TestTyped_WhitelistRejection(t *testing.T) {
	b, err := PackWithOptions(boat{A: 3}, PackOptions{Format: Typed(Struct)})
	require.NoError(t, err)

	_, err = UnpackWithOptions[vehicle](b, UnpackOptions{
		Format: Typed(Struct),
		Allow:  func(rt reflect.Type) bool { return rt != reflect.TypeOf(boat{}) },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whitelist")

	// A permissive whitelist lets the same stream through.
	got, err := UnpackWithOptions[vehicle](b, UnpackOptions{
		Format: Typed(Struct),
		Allow:  func(reflect.Type) bool { return true },
	})
	require.NoError(t, err)
	assert.Equal(t, boat{A: 3}, got)
}

func TestTyped_UnknownTypeFails(t *testing.T) {
	type unregistered struct {
		A int64 `mpack:"a"`
	}
	b, err := PackWithOptions(unregistered{A: 1}, PackOptions{Format: Typed(Struct)})
	require.NoError(t, err)

	_, err = UnpackWithOptions[any](b, UnpackOptions{Format: Typed(Struct)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

// ============================================================
// TypeFormat
// ============================================================

func TestTypeFormat_RoundTrip(t *testing.T) {
	b, err := Pack(reflect.TypeOf(boat{}))
	require.NoError(t, err)

	got, err := Unpack[reflect.Type](b)
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(boat{}), got)
}

func TestTypeFormat_DescriptorDecode(t *testing.T) {
	b, err := Pack(reflect.TypeOf(train{}))
	require.NoError(t, err)

	d, err := Unpack[TypeDescriptor](b)
	require.NoError(t, err)
	assert.Equal(t, "train", d.Name)
	assert.Equal(t, []string{"github.com", "Neumenon", "mpack", "mpack"}, d.Path)
}

func TestTypeFormat_NestedParams(t *testing.T) {
	d := TypeDescriptor{
		Name: "pair",
		Path: []string{"example"},
		Params: []any{
			TypeDescriptor{Name: "boat", Path: []string{"github.com", "Neumenon", "mpack", "mpack"}},
			int64(4),
			"tag",
		},
	}
	b, err := Pack(d)
	require.NoError(t, err)

	got, err := Unpack[TypeDescriptor](b)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

type sized struct {
	N int64 `mpack:"n"`
}

func init() {
	// A parameterized type with its parameter metadata registered.
	Register[sized](Binding{
		TypeParams:       []any{int64(8)},
		TypeParamTypes:   []reflect.Type{reflect.TypeOf(int64(0))},
		TypeParamFormats: []Format{Signed},
	})
}

func TestTypeFormat_ParamsWithoutMetadataFail(t *testing.T) {
	// sized resolves: its parameter types are registered.
	b, err := Pack(reflect.TypeOf(sized{}))
	require.NoError(t, err)
	got, err := Unpack[reflect.Type](b)
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(sized{}), got)

	// A descriptor naming parameters for a type without metadata
	// must not resolve.
	d := TypeDescriptor{
		Name:   "boat",
		Path:   []string{"github.com", "Neumenon", "mpack", "mpack"},
		Params: []any{int64(2)},
	}
	db, err := Pack(d)
	require.NoError(t, err)
	_, err = Unpack[reflect.Type](db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type parameter types not specified")
}
