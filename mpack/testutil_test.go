package mpack

import (
	"bytes"
	"errors"
	"io"
)

// asErr is a test-side shorthand for errors.As.
func asErr(err error, target any) bool {
	return errors.As(err, target)
}

func newByteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
