package cram

import "errors"

// Error kinds surfaced by the core. Callers should classify with errors.Is.
var (
	// ErrBadMagic indicates the first four header bytes are not 0x6372616d.
	ErrBadMagic = errors.New("cram: bad magic")

	// ErrVersionMismatch indicates the header version is not 2.
	ErrVersionMismatch = errors.New("cram: version mismatch")

	// ErrCorruptRecord indicates a record's declared size does not match
	// its measured decode length.
	ErrCorruptRecord = errors.New("cram: corrupt record")

	// ErrModeViolation indicates a write operation on a Container opened
	// for Read, or a read operation on a Container opened for Write/Append.
	ErrModeViolation = errors.New("cram: mode violation")
)
