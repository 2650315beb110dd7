package mpack

import (
	"bytes"
	"reflect"
)

// RawValue is one complete pre-encoded MessagePack value. Packing
// copies the bytes through verbatim; unpacking lifts the next value
// off the stream without decoding it. Useful for delaying decode
// decisions and for splicing streams.
type RawValue []byte

var typeOfRawValue = reflect.TypeOf(RawValue(nil))

type rawFormat struct{}

func (rawFormat) Name() string { return "Raw" }

func (rawFormat) Pack(w *Writer, v any, ctx Context) error {
	v = deref(v)
	raw, ok := v.(RawValue)
	if !ok {
		iv, err := destructValue(v, rawFormat{}, ctx)
		if err != nil {
			return err
		}
		p, err := asBytes(iv)
		if err != nil {
			return err
		}
		raw = RawValue(p)
	}
	if len(raw) == 0 {
		return packErrf(rawFormat{}, "empty raw value")
	}
	return w.WriteRaw(raw)
}

func (rawFormat) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	p, err := r.captureValue()
	if err != nil {
		return nil, err
	}
	raw := RawValue(p)
	if t == nil || t == typeOfRawValue {
		return raw, nil
	}
	return constructValue(t, raw, rawFormat{}, ctx)
}

// captureValue consumes the next value and returns its exact wire
// bytes.
func (r *Reader) captureValue() ([]byte, error) {
	var buf bytes.Buffer
	prev := r.tee
	r.tee = &buf
	err := Skip(r)
	r.tee = prev
	if err != nil {
		return nil, err
	}
	if prev != nil {
		prev.Write(buf.Bytes())
	}
	return buf.Bytes(), nil
}
