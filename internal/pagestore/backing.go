package pagestore

import (
	"io"
	"os"

	"github.com/jetfile/jetdb/jeterrors"
)

// BackingStore is the byte-addressable medium a PageChannel reads pages
// from and writes pages to. Spec.md §4.1 requires both "a real file or an
// in-memory buffer (used for tests and for non-destructive open-copy)" to
// work behind the same channel API.
type BackingStore interface {
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) (int, error)
	Size() (int64, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// fileBacking implements BackingStore against an *os.File.
type fileBacking struct {
	f *os.File
}

// OpenFileBacking opens or creates path for use as a PageChannel's backing
// store.
func OpenFileBacking(path string, readOnly bool) (BackingStore, error) {
	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, &jeterrors.IOError{Operation: "open", Path: path, Err: err}
	}
	return &fileBacking{f: f}, nil
}

func (b *fileBacking) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := b.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, &jeterrors.IOError{Operation: "read", Path: b.f.Name(), Err: err}
	}
	return n, nil
}

func (b *fileBacking) WriteAt(buf []byte, offset int64) (int, error) {
	n, err := b.f.WriteAt(buf, offset)
	if err != nil {
		return n, &jeterrors.IOError{Operation: "write", Path: b.f.Name(), Err: err}
	}
	return n, nil
}

func (b *fileBacking) Size() (int64, error) {
	info, err := b.f.Stat()
	if err != nil {
		return 0, &jeterrors.IOError{Operation: "stat", Path: b.f.Name(), Err: err}
	}
	return info.Size(), nil
}

func (b *fileBacking) Truncate(size int64) error {
	if err := b.f.Truncate(size); err != nil {
		return &jeterrors.IOError{Operation: "truncate", Path: b.f.Name(), Err: err}
	}
	return nil
}

func (b *fileBacking) Sync() error {
	if err := b.f.Sync(); err != nil {
		return &jeterrors.IOError{Operation: "sync", Path: b.f.Name(), Err: err}
	}
	return nil
}

func (b *fileBacking) Close() error { return b.f.Close() }

// memoryBacking implements BackingStore over a growable in-memory buffer,
// used by tests and by OpenCopy's non-destructive open.
type memoryBacking struct {
	buf []byte
}

// NewMemoryBacking returns an empty in-memory backing store.
func NewMemoryBacking() BackingStore {
	return &memoryBacking{}
}

// NewMemoryBackingFrom seeds an in-memory backing store with existing bytes,
// used to clone a file into memory for a non-destructive open.
func NewMemoryBackingFrom(data []byte) BackingStore {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &memoryBacking{buf: buf}
}

func (b *memoryBacking) ReadAt(dst []byte, offset int64) (int, error) {
	if offset >= int64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(dst, b.buf[offset:])
	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}

func (b *memoryBacking) WriteAt(src []byte, offset int64) (int, error) {
	end := offset + int64(len(src))
	if end > int64(len(b.buf)) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[offset:end], src)
	return len(src), nil
}

func (b *memoryBacking) Size() (int64, error) { return int64(len(b.buf)), nil }

func (b *memoryBacking) Truncate(size int64) error {
	if size <= int64(len(b.buf)) {
		b.buf = b.buf[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, b.buf)
	b.buf = grown
	return nil
}

func (b *memoryBacking) Sync() error  { return nil }
func (b *memoryBacking) Close() error { return nil }
