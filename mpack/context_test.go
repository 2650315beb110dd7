package mpack

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stringly is a policy that moves integer counters to decimal
// strings on the wire.
type stringly struct{}

func (stringly) ContextName() string { return "stringly" }

type counter int64

func init() {
	RegisterIn[counter](stringly{}, Binding{
		Format: String,
		Destruct: func(v any, f Format) (any, error) {
			return strconv.FormatInt(int64(v.(counter)), 10), nil
		},
		Construct: func(t reflect.Type, in any, f Format) (any, error) {
			n, err := strconv.ParseInt(in.(string), 10, 64)
			if err != nil {
				return nil, err
			}
			return counter(n), nil
		},
	})
}

func TestContext_Isolation(t *testing.T) {
	v := counter(7)

	plain, err := Pack(v)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x07}, plain, "default context packs the integer form")

	stringy, err := PackWithOptions(v, PackOptions{Context: stringly{}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1, '7'}, stringy, "stringly context packs the decimal form")

	assert.NotEqual(t, plain, stringy)

	got1, err := Unpack[counter](plain)
	require.NoError(t, err)
	assert.Equal(t, v, got1)

	got2, err := UnpackWithOptions[counter](stringy, UnpackOptions{Context: stringly{}})
	require.NoError(t, err)
	assert.Equal(t, v, got2)

	// Each stream decodes only under its own context.
	_, err = UnpackWithOptions[counter](plain, UnpackOptions{Context: stringly{}})
	require.Error(t, err)
}

// gauge carries a counter field that switches context mid-struct.
type gauge struct {
	ID counter `mpack:"id"`
	N  counter `mpack:"n"`
}

func init() {
	Register[gauge](Binding{
		FieldNames: []string{"id", "n"},
		FieldTypes: []reflect.Type{reflect.TypeOf(counter(0)), reflect.TypeOf(counter(0))},
		FieldFormats: []Format{
			nil,
			SetContext(stringly{}, Default),
		},
	})
}

func TestContext_SetContextPerField(t *testing.T) {
	v := gauge{ID: 3, N: 12}
	b, err := Pack(v)
	require.NoError(t, err)

	// id stays an integer; n becomes "12" under the stringly context.
	want := []byte{
		0x82,
		0xa2, 'i', 'd', 0x03,
		0xa1, 'n', 0xa2, '1', '2',
	}
	assert.Equal(t, want, b)

	got, err := Unpack[gauge](b)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestContext_DefaultContextRegistrationPanics(t *testing.T) {
	assert.Panics(t, func() {
		RegisterTypeIn(reflect.TypeOf(counter(0)), DefaultContext, Binding{Format: String})
	})
}

func TestContext_ConcurrentCallsAreIndependent(t *testing.T) {
	done := make(chan error, 2)
	go func() {
		for i := 0; i < 500; i++ {
			b, err := Pack(counter(7))
			if err == nil && b[0] != 0x07 {
				err = assert.AnError
			}
			if err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	go func() {
		for i := 0; i < 500; i++ {
			b, err := PackWithOptions(counter(7), PackOptions{Context: stringly{}})
			if err == nil && b[0] != 0xa1 {
				err = assert.AnError
			}
			if err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	require.NoError(t, <-done)
	require.NoError(t, <-done)
}
