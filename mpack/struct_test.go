package mpack

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	A any    `mpack:"a"`
	B string `mpack:"b"`
	C []any  `mpack:"c"`
	D bool   `mpack:"d"`
}

func sampleWidget() widget {
	return widget{A: nil, B: "test", C: []any{int64(10), float64(10)}, D: false}
}

// packWidgetFields builds a widget map stream with fields in the
// given order, reusing the already-verified field encodings.
func packWidgetFields(t *testing.T, order []string) []byte {
	t.Helper()
	w := sampleWidget()
	fields := map[string]any{"a": w.A, "b": w.B, "c": w.C, "d": w.D}
	var buf bytes.Buffer
	mw := NewWriter(&buf)
	require.NoError(t, mw.WriteMapHeader(len(order)))
	for _, name := range order {
		require.NoError(t, mw.WriteString(name))
		require.NoError(t, packValue(mw, fields[name], nil, DefaultContext))
	}
	return buf.Bytes()
}

func TestStruct_GoldenBytes(t *testing.T) {
	b, err := Pack(sampleWidget())
	require.NoError(t, err)

	want := []byte{
		0x84,
		0xa1, 'a', 0xc0,
		0xa1, 'b', 0xa4, 't', 'e', 's', 't',
		0xa1, 'c', 0x92, 0x0a, 0xcb, 0x40, 0x24, 0, 0, 0, 0, 0, 0,
		0xa1, 'd', 0xc2,
	}
	assert.Equal(t, want, b)
}

func TestStruct_RoundTrip(t *testing.T) {
	w := sampleWidget()
	b, err := Pack(w)
	require.NoError(t, err)

	got, err := Unpack[widget](b)
	require.NoError(t, err)
	assert.Equal(t, w, got)

	// The same bytes also satisfy the unordered decoder.
	got2, err := UnpackWithOptions[widget](b, UnpackOptions{Format: UnorderedStruct})
	require.NoError(t, err)
	assert.Equal(t, w, got2)
}

func TestStruct_RejectsReorderedFields(t *testing.T) {
	b := packWidgetFields(t, []string{"c", "a", "b", "d"})

	_, err := Unpack[widget](b)
	require.Error(t, err)
	var ue *UnpackError
	require.True(t, asErr(err, &ue))
	assert.Contains(t, ue.Msg, `"a"`)

	got, err := UnpackWithOptions[widget](b, UnpackOptions{Format: UnorderedStruct})
	require.NoError(t, err)
	assert.Equal(t, sampleWidget(), got)
}

func TestUnorderedStruct_RejectsDuplicateKey(t *testing.T) {
	w := sampleWidget()
	var buf bytes.Buffer
	mw := NewWriter(&buf)
	require.NoError(t, mw.WriteMapHeader(5))
	for _, pair := range []struct {
		k string
		v any
	}{
		{"a", w.A}, {"b", w.B}, {"b", w.B}, {"c", w.C}, {"d", w.D},
	} {
		require.NoError(t, mw.WriteString(pair.k))
		require.NoError(t, packValue(mw, pair.v, nil, DefaultContext))
	}

	_, err := UnpackWithOptions[widget](buf.Bytes(), UnpackOptions{Format: UnorderedStruct})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestUnorderedStruct_RejectsUnknownKey(t *testing.T) {
	var buf bytes.Buffer
	mw := NewWriter(&buf)
	w := sampleWidget()
	require.NoError(t, mw.WriteMapHeader(5))
	for _, pair := range []struct {
		k string
		v any
	}{
		{"a", w.A}, {"b", w.B}, {"c", w.C}, {"d", w.D}, {"extra", int64(1)},
	} {
		require.NoError(t, mw.WriteString(pair.k))
		require.NoError(t, packValue(mw, pair.v, nil, DefaultContext))
	}

	_, err := UnpackWithOptions[widget](buf.Bytes(), UnpackOptions{Format: UnorderedStruct})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")

	// FlexibleStruct skips the stranger and still produces the value.
	got, err := UnpackWithOptions[widget](buf.Bytes(), UnpackOptions{Format: FlexibleStruct})
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestUnorderedStruct_MissingFieldIsStructural(t *testing.T) {
	b := packWidgetFields(t, []string{"a", "b", "c"})
	_, err := UnpackWithOptions[widget](b, UnpackOptions{Format: UnorderedStruct})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestFlexibleStruct_MissingDeclaredFieldFails(t *testing.T) {
	// An unknown key cannot stand in for a declared one.
	w := sampleWidget()
	var buf bytes.Buffer
	mw := NewWriter(&buf)
	require.NoError(t, mw.WriteMapHeader(4))
	for _, pair := range []struct {
		k string
		v any
	}{
		{"a", w.A}, {"b", w.B}, {"c", w.C}, {"zzz", true},
	} {
		require.NoError(t, mw.WriteString(pair.k))
		require.NoError(t, packValue(mw, pair.v, nil, DefaultContext))
	}

	_, err := UnpackWithOptions[widget](buf.Bytes(), UnpackOptions{Format: FlexibleStruct})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestFlexibleStruct_RejectsDuplicates(t *testing.T) {
	w := sampleWidget()
	var buf bytes.Buffer
	mw := NewWriter(&buf)
	require.NoError(t, mw.WriteMapHeader(5))
	for _, pair := range []struct {
		k string
		v any
	}{
		{"a", w.A}, {"b", w.B}, {"c", w.C}, {"d", w.D}, {"d", true},
	} {
		require.NoError(t, mw.WriteString(pair.k))
		require.NoError(t, packValue(mw, pair.v, nil, DefaultContext))
	}

	_, err := UnpackWithOptions[widget](buf.Bytes(), UnpackOptions{Format: FlexibleStruct})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestStruct_LengthDisagreement(t *testing.T) {
	b := packWidgetFields(t, []string{"a", "b"})
	_, err := Unpack[widget](b)
	require.Error(t, err)
}

// A binding with an explicit constructor and renamed wire keys.
type interval struct {
	lo, hi int64
}

func init() {
	Register[interval](Binding{
		Format:     Struct,
		FieldNames: []string{"lo", "hi"},
		FieldTypes: []reflect.Type{reflect.TypeOf(int64(0)), reflect.TypeOf(int64(0))},
		Destruct: func(v any, f Format) (any, error) {
			iv := v.(interval)
			return []any{iv.lo, iv.hi}, nil
		},
		New: func(args []any) (any, error) {
			return interval{lo: args[0].(int64), hi: args[1].(int64)}, nil
		},
	})
}

func TestStruct_BindingConstructor(t *testing.T) {
	v := interval{lo: -3, hi: 9}
	b, err := Pack(v)
	require.NoError(t, err)

	// fixmap{lo: -3, hi: 9}
	want := []byte{0x82, 0xa2, 'l', 'o', 0xfd, 0xa2, 'h', 'i', 0x09}
	assert.Equal(t, want, b)

	got, err := Unpack[interval](b)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}
