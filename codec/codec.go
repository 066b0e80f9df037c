// Package codec provides primitive big-endian integer and length-prefixed
// byte-string I/O against a seekable byte stream.
//
// Byte strings are opaque: codec never inspects, validates, or transcodes
// their contents. The default width for length prefixes is 4 bytes.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrShortRead is returned when the stream ends before a requested read
// completes.
var ErrShortRead = errors.New("codec: short read")

// ErrIntegerOverflow is returned when a value does not fit in the requested
// integer width.
var ErrIntegerOverflow = errors.New("codec: integer overflow")

// maxForWidth returns the largest value representable in width bytes.
func maxForWidth(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}

	return uint64(1)<<(uint(width)*8) - 1
}

// WriteUint writes value as a big-endian unsigned integer in width bytes.
// width must be one of 1, 2, 4, 8. Returns the number of bytes written
// (always width on success).
func WriteUint(w io.Writer, value uint64, width int) (int, error) {
	if width != 1 && width != 2 && width != 4 && width != 8 {
		return 0, fmt.Errorf("codec: unsupported integer width %d", width)
	}

	if value > maxForWidth(width) {
		return 0, fmt.Errorf("%w: %d does not fit in %d bytes", ErrIntegerOverflow, value, width)
	}

	buf := make([]byte, width)

	switch width {
	case 1:
		buf[0] = byte(value)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(value))
	case 4:
		binary.BigEndian.PutUint32(buf, uint32(value))
	case 8:
		binary.BigEndian.PutUint64(buf, value)
	}

	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("codec: write uint: %w", err)
	}

	return n, nil
}

// ReadUint reads width bytes as a big-endian unsigned integer.
func ReadUint(r io.Reader, width int) (uint64, error) {
	if width != 1 && width != 2 && width != 4 && width != 8 {
		return 0, fmt.Errorf("codec: unsupported integer width %d", width)
	}

	buf := make([]byte, width)

	_, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("%w: %w", ErrShortRead, err)
		}

		return 0, fmt.Errorf("codec: read uint: %w", err)
	}

	var value uint64

	switch width {
	case 1:
		value = uint64(buf[0])
	case 2:
		value = uint64(binary.BigEndian.Uint16(buf))
	case 4:
		value = uint64(binary.BigEndian.Uint32(buf))
	case 8:
		value = binary.BigEndian.Uint64(buf)
	}

	return value, nil
}

// WriteBytes writes a 4-byte big-endian length prefix followed by the raw
// bytes of buf. No null terminator, no encoding transformation. Returns the
// total number of bytes written (4 + len(buf)).
func WriteBytes(w io.Writer, buf []byte) (int, error) {
	if uint64(len(buf)) > maxForWidth(4) {
		return 0, fmt.Errorf("%w: length %d does not fit in 4 bytes", ErrIntegerOverflow, len(buf))
	}

	n, err := WriteUint(w, uint64(len(buf)), 4)
	if err != nil {
		return n, err
	}

	wn, err := w.Write(buf)
	n += wn

	if err != nil {
		return n, fmt.Errorf("codec: write bytes: %w", err)
	}

	return n, nil
}

// ReadBytes reads a 4-byte length prefix, then exactly that many bytes.
func ReadBytes(r io.Reader) ([]byte, error) {
	length, err := ReadUint(r, 4)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)

	_, err = io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w", ErrShortRead, err)
		}

		return nil, fmt.Errorf("codec: read bytes: %w", err)
	}

	return buf, nil
}
