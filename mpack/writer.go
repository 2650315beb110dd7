package mpack

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Writer emits MessagePack atoms to an io.Writer. It owns a small
// scratch buffer and no other state; the underlying stream is
// caller-owned and never closed by the engine.
type Writer struct {
	w   io.Writer
	buf [9]byte
}

// NewWriter wraps w for MessagePack output.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write implements io.Writer, passing raw bytes through to the
// underlying stream.
func (w *Writer) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

func (w *Writer) writeByte(b byte) error {
	w.buf[0] = b
	_, err := w.w.Write(w.buf[:1])
	return errors.Wrap(err, "mpack: write")
}

func (w *Writer) write(p []byte) error {
	_, err := w.w.Write(p)
	return errors.Wrap(err, "mpack: write")
}

// prefix writes a marker byte followed by an n-byte big-endian tail.
func (w *Writer) prefix(marker byte, tail uint64, n int) error {
	w.buf[0] = marker
	binary.BigEndian.PutUint64(w.buf[1:9], tail<<(8*(8-n)))
	_, err := w.w.Write(w.buf[:1+n])
	return errors.Wrap(err, "mpack: write")
}

// WriteNil emits 0xc0.
func (w *Writer) WriteNil() error {
	return w.writeByte(0xc0)
}

// WriteBool emits 0xc2 (false) or 0xc3 (true).
func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.writeByte(0xc3)
	}
	return w.writeByte(0xc2)
}

// WriteInt emits the shortest signed encoding of v: a fixint when it
// fits, otherwise int8/16/32/64 (0xd0..0xd3).
func (w *Writer) WriteInt(v int64) error {
	switch {
	case v >= -32 && v <= 127:
		return w.writeByte(byte(v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return w.prefix(0xd0, uint64(uint8(int8(v))), 1)
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return w.prefix(0xd1, uint64(uint16(int16(v))), 2)
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return w.prefix(0xd2, uint64(uint32(int32(v))), 4)
	default:
		return w.prefix(0xd3, uint64(v), 8)
	}
}

// WriteUint emits the shortest unsigned encoding of v: a positive
// fixint when it fits, otherwise uint8/16/32/64 (0xcc..0xcf).
func (w *Writer) WriteUint(v uint64) error {
	switch {
	case v <= 127:
		return w.writeByte(byte(v))
	case v <= math.MaxUint8:
		return w.prefix(0xcc, v, 1)
	case v <= math.MaxUint16:
		return w.prefix(0xcd, v, 2)
	case v <= math.MaxUint32:
		return w.prefix(0xce, v, 4)
	default:
		return w.prefix(0xcf, v, 8)
	}
}

// WriteFloat32 emits 0xca with a big-endian IEEE 754 single.
func (w *Writer) WriteFloat32(v float32) error {
	return w.prefix(0xca, uint64(math.Float32bits(v)), 4)
}

// WriteFloat64 emits 0xcb with a big-endian IEEE 754 double.
func (w *Writer) WriteFloat64(v float64) error {
	return w.prefix(0xcb, math.Float64bits(v), 8)
}

// WriteString emits a str atom: fixstr below 32 bytes, then
// str8/16/32 by shortest legal length class.
func (w *Writer) WriteString(s string) error {
	n := len(s)
	var err error
	switch {
	case n < 32:
		err = w.writeByte(0xa0 | byte(n))
	case n <= math.MaxUint8:
		err = w.prefix(0xd9, uint64(n), 1)
	case n <= math.MaxUint16:
		err = w.prefix(0xda, uint64(n), 2)
	case uint64(n) <= math.MaxUint32:
		err = w.prefix(0xdb, uint64(n), 4)
	default:
		return packErrf(String, "string length %d exceeds u32", n)
	}
	if err != nil {
		return err
	}
	_, err = io.WriteString(w.w, s)
	return errors.Wrap(err, "mpack: write")
}

// WriteBinary emits a bin atom (bin8/16/32).
func (w *Writer) WriteBinary(p []byte) error {
	n := len(p)
	var err error
	switch {
	case n <= math.MaxUint8:
		err = w.prefix(0xc4, uint64(n), 1)
	case n <= math.MaxUint16:
		err = w.prefix(0xc5, uint64(n), 2)
	case uint64(n) <= math.MaxUint32:
		err = w.prefix(0xc6, uint64(n), 4)
	default:
		return packErrf(Binary, "binary length %d exceeds u32", n)
	}
	if err != nil {
		return err
	}
	return w.write(p)
}

// WriteArrayHeader emits a fixarray/array16/array32 header for n
// elements. The caller must follow with exactly n values.
func (w *Writer) WriteArrayHeader(n int) error {
	switch {
	case n < 16:
		return w.writeByte(0x90 | byte(n))
	case n <= math.MaxUint16:
		return w.prefix(0xdc, uint64(n), 2)
	case uint64(n) <= math.MaxUint32:
		return w.prefix(0xdd, uint64(n), 4)
	default:
		return packErrf(Vector, "array length %d exceeds u32", n)
	}
}

// WriteMapHeader emits a fixmap/map16/map32 header for n pairs. The
// caller must follow with exactly n key-value pairs.
func (w *Writer) WriteMapHeader(n int) error {
	switch {
	case n < 16:
		return w.writeByte(0x80 | byte(n))
	case n <= math.MaxUint16:
		return w.prefix(0xde, uint64(n), 2)
	case uint64(n) <= math.MaxUint32:
		return w.prefix(0xdf, uint64(n), 4)
	default:
		return packErrf(Map, "map length %d exceeds u32", n)
	}
}

// WriteExt emits an ext atom with the given type code: fixext for
// payloads of exactly 1/2/4/8/16 bytes, ext8/16/32 otherwise.
func (w *Writer) WriteExt(code int8, payload []byte) error {
	n := len(payload)
	var err error
	switch n {
	case 1:
		err = w.writeByte(0xd4)
	case 2:
		err = w.writeByte(0xd5)
	case 4:
		err = w.writeByte(0xd6)
	case 8:
		err = w.writeByte(0xd7)
	case 16:
		err = w.writeByte(0xd8)
	default:
		switch {
		case n <= math.MaxUint8:
			err = w.prefix(0xc7, uint64(n), 1)
		case n <= math.MaxUint16:
			err = w.prefix(0xc8, uint64(n), 2)
		case uint64(n) <= math.MaxUint32:
			err = w.prefix(0xc9, uint64(n), 4)
		default:
			return packErrf(AnyExtension, "ext payload length %d exceeds u32", n)
		}
	}
	if err != nil {
		return err
	}
	if err := w.writeByte(byte(code)); err != nil {
		return err
	}
	return w.write(payload)
}

// WriteRaw copies pre-encoded MessagePack bytes through unchanged.
func (w *Writer) WriteRaw(p []byte) error {
	return w.write(p)
}
