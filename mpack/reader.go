package mpack

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"reflect"

	"github.com/pkg/errors"
)

// Reader decodes MessagePack atoms from an io.Reader. The underlying
// stream is caller-owned; the Reader buffers only what peeking
// requires and never reads past the values it is asked for... except
// for the bufio lookahead needed by Peek, which is why callers who
// interleave raw reads with mpack reads should hand the same Reader
// around rather than the raw stream.
type Reader struct {
	r *bufio.Reader

	// allow is the reconstruction whitelist consulted by Typed and
	// TypeFormat before any type is instantiated. nil is permissive.
	allow func(reflect.Type) bool

	// tee, when set, receives a copy of every consumed byte. RawValue
	// capture installs it around a Skip to lift one value verbatim.
	tee *bytes.Buffer
}

// NewReader wraps r for MessagePack input.
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

// Allow installs a type whitelist consulted before Typed or
// TypeFormat unpacking instantiates any type. A nil predicate is
// permissive.
func (r *Reader) Allow(pred func(reflect.Type) bool) {
	r.allow = pred
}

// Read implements io.Reader, handing out raw bytes from the
// buffered stream so a Reader can stand in wherever the underlying
// stream is expected.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 && r.tee != nil {
		r.tee.Write(p[:n])
	}
	return n, err
}

func (r *Reader) peekByte() (byte, error) {
	p, err := r.r.Peek(1)
	if err != nil {
		return 0, errors.Wrap(err, "mpack: peek")
	}
	return p[0], nil
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return b, errors.Wrap(err, "mpack: read")
	}
	if r.tee != nil {
		r.tee.WriteByte(b)
	}
	return b, nil
}

func (r *Reader) readFull(n int) ([]byte, error) {
	p := make([]byte, n)
	if _, err := io.ReadFull(r.r, p); err != nil {
		return nil, errors.Wrap(err, "mpack: read")
	}
	if r.tee != nil {
		r.tee.Write(p)
	}
	return p, nil
}

// readUintN reads an n-byte big-endian unsigned tail.
func (r *Reader) readUintN(n int) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r.r, buf[8-n:]); err != nil {
		return 0, errors.Wrap(err, "mpack: read")
	}
	if r.tee != nil {
		r.tee.Write(buf[8-n:])
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// ============================================================
// Atom readers
// ============================================================

// ReadNil consumes 0xc0.
func (r *Reader) ReadNil() error {
	b, err := r.readByte()
	if err != nil {
		return err
	}
	if b != 0xc0 {
		return badPrefix(Nil, b)
	}
	return nil
}

// ReadBool consumes 0xc2 or 0xc3.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0xc2:
		return false, nil
	case 0xc3:
		return true, nil
	}
	return false, badPrefix(Bool, b)
}

// ReadInt consumes a signed integer. Unsigned encodings (0xcc..0xcf)
// are tolerated for forward compatibility, provided the value fits in
// an int64.
func (r *Reader) ReadInt() (int64, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b <= 0x7f: // positive fixint
		return int64(b), nil
	case b >= 0xe0: // negative fixint
		return int64(int8(b)), nil
	}
	switch b {
	case 0xd0:
		u, err := r.readUintN(1)
		return int64(int8(u)), err
	case 0xd1:
		u, err := r.readUintN(2)
		return int64(int16(u)), err
	case 0xd2:
		u, err := r.readUintN(4)
		return int64(int32(u)), err
	case 0xd3:
		u, err := r.readUintN(8)
		return int64(u), err
	case 0xcc, 0xcd, 0xce, 0xcf:
		u, err := r.readUintN(1 << (b - 0xcc))
		if err != nil {
			return 0, err
		}
		if u > math.MaxInt64 {
			return 0, unpackErrf(Signed, "unsigned value %d overflows int64", u)
		}
		return int64(u), nil
	}
	return 0, badPrefix(Signed, b)
}

// ReadUint consumes an unsigned integer. Signed encodings are not
// accepted; the tolerance is deliberately one-directional.
func (r *Reader) ReadUint() (uint64, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	if b <= 0x7f {
		return uint64(b), nil
	}
	switch b {
	case 0xcc, 0xcd, 0xce, 0xcf:
		return r.readUintN(1 << (b - 0xcc))
	}
	return 0, badPrefix(Unsigned, b)
}

// ReadFloat consumes 0xca or 0xcb. wide reports whether the wire atom
// was a double; a single converts to float64 exactly.
func (r *Reader) ReadFloat() (v float64, wide bool, err error) {
	b, err := r.readByte()
	if err != nil {
		return 0, false, err
	}
	switch b {
	case 0xca:
		u, err := r.readUintN(4)
		return float64(math.Float32frombits(uint32(u))), false, err
	case 0xcb:
		u, err := r.readUintN(8)
		return math.Float64frombits(u), true, err
	}
	return 0, false, badPrefix(Float, b)
}

// stringLen decodes a str header byte into a payload length, or -1.
func (r *Reader) stringLen(b byte) (int, error) {
	switch {
	case b >= 0xa0 && b <= 0xbf:
		return int(b & 0x1f), nil
	case b == 0xd9:
		u, err := r.readUintN(1)
		return int(u), err
	case b == 0xda:
		u, err := r.readUintN(2)
		return int(u), err
	case b == 0xdb:
		u, err := r.readUintN(4)
		return int(u), err
	}
	return -1, nil
}

// ReadString consumes a str atom and returns its UTF-8 payload.
func (r *Reader) ReadString() (string, error) {
	b, err := r.readByte()
	if err != nil {
		return "", err
	}
	n, err := r.stringLen(b)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", badPrefix(String, b)
	}
	p, err := r.readFull(n)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadBinary consumes a bin atom and returns its payload.
func (r *Reader) ReadBinary() ([]byte, error) {
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	var n uint64
	switch b {
	case 0xc4:
		n, err = r.readUintN(1)
	case 0xc5:
		n, err = r.readUintN(2)
	case 0xc6:
		n, err = r.readUintN(4)
	default:
		return nil, badPrefix(Binary, b)
	}
	if err != nil {
		return nil, err
	}
	return r.readFull(int(n))
}

// ReadArrayHeader consumes an array header and returns the element
// count.
func (r *Reader) ReadArrayHeader() (int, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b >= 0x90 && b <= 0x9f:
		return int(b & 0x0f), nil
	case b == 0xdc:
		u, err := r.readUintN(2)
		return int(u), err
	case b == 0xdd:
		u, err := r.readUintN(4)
		return int(u), err
	}
	return 0, badPrefix(Vector, b)
}

// ReadMapHeader consumes a map header and returns the pair count.
func (r *Reader) ReadMapHeader() (int, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b >= 0x80 && b <= 0x8f:
		return int(b & 0x0f), nil
	case b == 0xde:
		u, err := r.readUintN(2)
		return int(u), err
	case b == 0xdf:
		u, err := r.readUintN(4)
		return int(u), err
	}
	return 0, badPrefix(Map, b)
}

// ReadExtHeader consumes an ext header and returns the type code and
// payload length. The payload itself is left on the stream.
func (r *Reader) ReadExtHeader() (int8, int, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}
	var n uint64
	switch b {
	case 0xd4, 0xd5, 0xd6, 0xd7, 0xd8:
		n = 1 << (b - 0xd4)
	case 0xc7:
		n, err = r.readUintN(1)
	case 0xc8:
		n, err = r.readUintN(2)
	case 0xc9:
		n, err = r.readUintN(4)
	default:
		return 0, 0, badPrefix(AnyExtension, b)
	}
	if err != nil {
		return 0, 0, err
	}
	code, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}
	return int8(code), int(n), nil
}
