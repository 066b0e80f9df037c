// Package stream provides a seekable byte-stream abstraction so the
// Cramfile container is not hard-wired to *os.File.
//
// The main types are:
//   - [File]: interface for an open, seekable stream (satisfied by [os.File])
//   - [FS]: interface for opening files by path
//   - [Real]: production implementation, backed by the [os] package
package stream

import (
	"io"
	"os"
)

// File represents an open, seekable byte stream.
//
// This interface is satisfied by [os.File] and can be used with all
// standard library functions that accept [io.Reader], [io.Writer], or
// [io.Seeker].
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Truncate changes the size of the file. See [os.File.Truncate].
	Truncate(size int64) error

	// Sync commits the file's contents to stable storage. See [os.File.Sync].
	Sync() error

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)
}

// FS opens seekable streams by path.
//
// Paths use OS semantics, like the os package.
type FS interface {
	// Open opens an existing file for reading. See [os.Open].
	Open(path string) (File, error)

	// Create creates or truncates a file for reading and writing.
	// See [os.Create].
	Create(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions.
	// See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Stat returns file info for path. See [os.Stat].
	Stat(path string) (os.FileInfo, error)
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
