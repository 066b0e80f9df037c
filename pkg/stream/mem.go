package stream

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Mem is an in-memory [FS], so Container tests can exercise the
// seekable-stream contract without touching the real filesystem.
type Mem struct {
	files map[string]*memFile
}

// NewMem returns an empty in-memory filesystem.
func NewMem() *Mem {
	return &Mem{files: make(map[string]*memFile)}
}

func (m *Mem) Open(path string) (File, error) {
	f, ok := m.files[path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}

	return &memHandle{backing: f}, nil
}

func (m *Mem) Create(path string) (File, error) {
	f := &memFile{name: path}
	m.files[path] = f

	return &memHandle{backing: f}, nil
}

func (m *Mem) OpenFile(path string, flag int, _ os.FileMode) (File, error) {
	f, ok := m.files[path]
	if !ok {
		if flag&os.O_CREATE == 0 {
			return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
		}

		f = &memFile{name: path}
		m.files[path] = f
	}

	h := &memHandle{backing: f}
	if flag&os.O_APPEND != 0 {
		h.pos = int64(len(f.data))
	}

	return h, nil
}

func (m *Mem) Stat(path string) (os.FileInfo, error) {
	f, ok := m.files[path]
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}

	return memFileInfo{f}, nil
}

// memFile is the shared backing store for a path; multiple handles opened
// against the same path (as Container's Append-session semantics require)
// observe each other's writes.
type memFile struct {
	name string
	data []byte
}

type memHandle struct {
	backing *memFile
	pos     int64
	closed  bool
}

func (h *memHandle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, fmt.Errorf("stream: read on closed file %q", h.backing.name)
	}

	if h.pos >= int64(len(h.backing.data)) {
		return 0, io.EOF
	}

	n := copy(p, h.backing.data[h.pos:])
	h.pos += int64(n)

	return n, nil
}

func (h *memHandle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, fmt.Errorf("stream: write on closed file %q", h.backing.name)
	}

	end := h.pos + int64(len(p))
	if end > int64(len(h.backing.data)) {
		grown := make([]byte, end)
		copy(grown, h.backing.data)
		h.backing.data = grown
	}

	n := copy(h.backing.data[h.pos:end], p)
	h.pos += int64(n)

	return n, nil
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = int64(len(h.backing.data))
	default:
		return 0, fmt.Errorf("stream: invalid whence %d", whence)
	}

	newPos := base + offset
	if newPos < 0 {
		return 0, fmt.Errorf("stream: negative seek position %d", newPos)
	}

	h.pos = newPos

	return h.pos, nil
}

func (h *memHandle) Truncate(size int64) error {
	if size < int64(len(h.backing.data)) {
		h.backing.data = h.backing.data[:size]
		return nil
	}

	grown := make([]byte, size)
	copy(grown, h.backing.data)
	h.backing.data = grown

	return nil
}

func (h *memHandle) Sync() error { return nil }

func (h *memHandle) Stat() (os.FileInfo, error) {
	return memFileInfo{h.backing}, nil
}

func (h *memHandle) Close() error {
	h.closed = true
	return nil
}

type memFileInfo struct{ f *memFile }

func (i memFileInfo) Name() string       { return i.f.name }
func (i memFileInfo) Size() int64        { return int64(len(i.f.data)) }
func (i memFileInfo) Mode() os.FileMode  { return 0o644 }
func (i memFileInfo) ModTime() time.Time { return time.Time{} }
func (i memFileInfo) IsDir() bool        { return false }
func (i memFileInfo) Sys() any           { return nil }

// Compile-time interface checks.
var (
	_ File = (*memHandle)(nil)
	_ FS   = (*Mem)(nil)
)
