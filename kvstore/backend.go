package kvstore

import (
	"fmt"
	"os"
)

// Backend is the byte-addressable medium the Store's directory and data
// area are written to. Store's in-memory programming model is identical
// regardless of which Backend concrete type backs it (spec §4.8
// "Filesystem / native-NVS backends share the same operation surface").
//
// There is deliberately no library here: the on-medium layout (§4.8) is a
// bespoke fixed-capacity directory format, not a generic document or
// key-value encoding an ecosystem serialization library would help with —
// see DESIGN.md.
type Backend interface {
	ReadAt(offset int64, buf []byte) error
	WriteAt(offset int64, data []byte) error
	Size() int64
}

// MemBackend emulates a byte-addressable EEPROM/flash medium entirely in
// process memory — the backend used by the host test platform and by
// KVStore's own tests (spec §4.8 "byte-addressable backend").
type MemBackend struct {
	buf []byte
}

// NewMemBackend allocates a zeroed medium of size bytes.
func NewMemBackend(size int) *MemBackend {
	return &MemBackend{buf: make([]byte, size)}
}

func (m *MemBackend) ReadAt(offset int64, buf []byte) error {
	if offset < 0 || offset+int64(len(buf)) > int64(len(m.buf)) {
		return fmt.Errorf("kvstore: read out of bounds at %d", offset)
	}
	copy(buf, m.buf[offset:offset+int64(len(buf))])
	return nil
}

func (m *MemBackend) WriteAt(offset int64, data []byte) error {
	if offset < 0 || offset+int64(len(data)) > int64(len(m.buf)) {
		return fmt.Errorf("kvstore: write out of bounds at %d", offset)
	}
	copy(m.buf[offset:offset+int64(len(data))], data)
	return nil
}

func (m *MemBackend) Size() int64 { return int64(len(m.buf)) }

// FileBackend persists the same byte-addressable layout to a single
// preallocated file, for the filesystem-backed deployment target (spec
// §4.8 "Filesystem... backends share the same operation surface but
// delegate to their platform primitives").
type FileBackend struct {
	f    *os.File
	size int64
}

// OpenFileBackend opens (creating if necessary) path and ensures it is at
// least size bytes, zero-filling any extension.
func OpenFileBackend(path string, size int64) (*FileBackend, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open backend file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("kvstore: stat backend file: %w", err)
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("kvstore: truncate backend file: %w", err)
		}
	}
	return &FileBackend{f: f, size: size}, nil
}

func (fb *FileBackend) ReadAt(offset int64, buf []byte) error {
	_, err := fb.f.ReadAt(buf, offset)
	return err
}

func (fb *FileBackend) WriteAt(offset int64, data []byte) error {
	_, err := fb.f.WriteAt(data, offset)
	return err
}

func (fb *FileBackend) Size() int64 { return fb.size }

// Close releases the underlying file handle.
func (fb *FileBackend) Close() error { return fb.f.Close() }
