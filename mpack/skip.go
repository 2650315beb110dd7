package mpack

import "io"

// classifyByte maps a MessagePack prefix byte to the core format that
// decodes it, or nil for the reserved byte 0xc1.
func classifyByte(b byte) Format {
	switch {
	case b <= 0x7f:
		return Unsigned
	case b <= 0x8f:
		return Map
	case b <= 0x9f:
		return Vector
	case b <= 0xbf:
		return String
	case b >= 0xe0:
		return Signed
	}
	switch b {
	case 0xc0:
		return Nil
	case 0xc2, 0xc3:
		return Bool
	case 0xc4, 0xc5, 0xc6:
		return Binary
	case 0xc7, 0xc8, 0xc9, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8:
		return AnyExtension
	case 0xca, 0xcb:
		return Float
	case 0xcc, 0xcd, 0xce, 0xcf:
		return Unsigned
	case 0xd0, 0xd1, 0xd2, 0xd3:
		return Signed
	case 0xd9, 0xda, 0xdb:
		return String
	case 0xdc, 0xdd:
		return Vector
	case 0xde, 0xdf:
		return Map
	}
	return nil
}

// PeekFormat classifies the next value on the stream into a core
// format without consuming anything.
func PeekFormat(r *Reader) (Format, error) {
	b, err := r.peekByte()
	if err != nil {
		return nil, err
	}
	f := classifyByte(b)
	if f == nil {
		return nil, unpackErrf(nil, "reserved prefix byte 0x%02x", b)
	}
	return f, nil
}

// Skip advances the stream past the next value without materializing
// it. Scalars consume their fixed width; strings, binaries, and
// extensions consume the declared length in one bulk discard; arrays
// and maps recurse over their elements.
func Skip(r *Reader) error {
	b, err := r.readByte()
	if err != nil {
		return err
	}
	switch {
	case b <= 0x7f || b >= 0xe0: // fixint
		return nil
	case b >= 0x80 && b <= 0x8f: // fixmap
		return skipN(r, 2*int(b&0x0f))
	case b >= 0x90 && b <= 0x9f: // fixarray
		return skipN(r, int(b&0x0f))
	case b >= 0xa0 && b <= 0xbf: // fixstr
		return r.discard(int(b & 0x1f))
	}
	switch b {
	case 0xc0, 0xc2, 0xc3: // nil, bool
		return nil
	case 0xcc, 0xcd, 0xce, 0xcf: // uint
		return r.discard(1 << (b - 0xcc))
	case 0xd0, 0xd1, 0xd2, 0xd3: // int
		return r.discard(1 << (b - 0xd0))
	case 0xca:
		return r.discard(4)
	case 0xcb:
		return r.discard(8)
	case 0xd9, 0xc4, 0xda, 0xc5, 0xdb, 0xc6: // str8/bin8/str16/bin16/str32/bin32
		n, err := r.readUintN(lenClass(b))
		if err != nil {
			return err
		}
		return r.discard(int(n))
	case 0xd4, 0xd5, 0xd6, 0xd7, 0xd8: // fixext: payload + type byte
		return r.discard(1 + (1 << (b - 0xd4)))
	case 0xc7, 0xc8, 0xc9: // ext8/16/32
		n, err := r.readUintN(1 << (b - 0xc7))
		if err != nil {
			return err
		}
		return r.discard(1 + int(n))
	case 0xdc, 0xdd: // array16/32
		n, err := r.readUintN(lenClass(b))
		if err != nil {
			return err
		}
		return skipN(r, int(n))
	case 0xde, 0xdf: // map16/32
		n, err := r.readUintN(lenClass(b))
		if err != nil {
			return err
		}
		return skipN(r, 2*int(n))
	}
	return unpackErrf(nil, "reserved prefix byte 0x%02x", b)
}

// lenClass returns the width of the length field following b for the
// variable-length atoms that pair an 8/16/32 class.
func lenClass(b byte) int {
	switch b {
	case 0xd9, 0xc4, 0xc7:
		return 1
	case 0xda, 0xc5, 0xdc, 0xde, 0xc8:
		return 2
	default:
		return 4
	}
}

func skipN(r *Reader, n int) error {
	for i := 0; i < n; i++ {
		if err := Skip(r); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) discard(n int) error {
	sink := io.Writer(io.Discard)
	if r.tee != nil {
		sink = r.tee
	}
	if _, err := io.CopyN(sink, r.r, int64(n)); err != nil {
		return unpackErr(nil, err, "short value body")
	}
	return nil
}

// Step enters or passes the next value. For an array or map it
// consumes only the header, leaving the stream positioned at the
// first element; for anything else it skips the entire value. The
// returned format is the classification of the stepped value, which
// gives callers a cursor-style traversal without full decoding.
func Step(r *Reader) (Format, error) {
	f, err := PeekFormat(r)
	if err != nil {
		return nil, err
	}
	switch f {
	case Vector:
		_, err = r.ReadArrayHeader()
	case Map:
		_, err = r.ReadMapHeader()
	default:
		err = Skip(r)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
