// Package kvstore implements the directory-indexed persistent key/value
// store (spec §4.8): a fixed-capacity key directory plus a data area,
// written to a byte-addressable Backend, with optional run-length
// compression and a single-level (non-nestable) transaction bracket.
package kvstore

import (
	"errors"
	"fmt"
	"sort"
	"unicode"
)

var (
	// ErrReadOnly is returned by mutating operations on a read-only Store.
	ErrReadOnly = errors.New("kvstore: store is read-only")
	// ErrNoSpace is returned when no gap in the data area is large enough
	// for a new value.
	ErrNoSpace = errors.New("kvstore: insufficient space")
	// ErrKeyTooLong is returned when a key exceeds maxKeyLen bytes.
	ErrKeyTooLong = errors.New("kvstore: key too long")
	// ErrInvalidKey is returned for an empty key or one containing
	// non-printable bytes.
	ErrInvalidKey = errors.New("kvstore: invalid key")
	// ErrKeyNotFound is returned by Read/Delete for an absent key.
	ErrKeyNotFound = errors.New("kvstore: key not found")
	// ErrTransactionActive is returned by BeginTransaction when a
	// transaction is already open; the format has no nesting.
	ErrTransactionActive = errors.New("kvstore: transaction already in progress")
	// ErrDirectoryFull is returned when every directory slot is occupied.
	ErrDirectoryFull = errors.New("kvstore: directory full")
)

// Options configures a Store at open time.
type Options struct {
	// MaxKeys bounds the directory's fixed entry table (spec §4.8
	// "fixed MAX_KEYS table").
	MaxKeys int
	// Compression enables RLE compression for values over the
	// compression threshold.
	Compression bool
	// ReadOnly rejects Write/Delete/Clear/transactions.
	ReadOnly bool
}

// Store is a directory-indexed key/value store over a Backend medium. It
// is not safe for concurrent use; the owning system serializes access to
// it from the single main tick, matching the rest of this runtime's
// cooperative concurrency model.
type Store struct {
	backend     Backend
	opts        Options
	dir         *directory
	dataStart   int64
	totalSize   int64
	inTxn       bool
	dirty       bool
}

// Open reads (or, if the medium is blank or its directory is corrupt,
// initializes) a Store backed by backend, which must be at least large
// enough to hold the directory for opts.MaxKeys entries.
func Open(backend Backend, opts Options) (*Store, error) {
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = 32
	}
	total := backend.Size()
	hdrSize := int64(dirSize(opts.MaxKeys))
	if total < hdrSize {
		return nil, fmt.Errorf("kvstore: backend too small for directory of %d keys", opts.MaxKeys)
	}

	s := &Store{
		backend:   backend,
		opts:      opts,
		dataStart: hdrSize,
		totalSize: total,
	}

	buf := make([]byte, hdrSize)
	if err := backend.ReadAt(0, buf); err != nil {
		return nil, fmt.Errorf("kvstore: read directory: %w", err)
	}
	d := decodeDirectory(buf, opts.MaxKeys)
	if !d.valid() {
		// Corrupt or blank medium: auto-reinitialize (spec §4.8
		// "directory corruption auto-reinit on bad magic").
		d = newDirectory(opts.MaxKeys)
		s.dir = d
		if !opts.ReadOnly {
			if err := s.Commit(); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	s.dir = d
	return s, nil
}

// validateKey enforces the printable-ASCII, length-bounded key rules
// shared by the tool registry, rule engine, and config snapshot prefixes
// that all write through this store.
func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > maxKeyLen {
		return ErrKeyTooLong
	}
	for _, r := range key {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return ErrInvalidKey
		}
	}
	return nil
}

// occupiedRange describes one entry's byte span in the data area.
type occupiedRange struct {
	start, end int64 // [start, end)
}

func (s *Store) occupiedRanges(excludeIdx int) []occupiedRange {
	ranges := make([]occupiedRange, 0, len(s.dir.entries))
	for i, e := range s.dir.entries {
		if !e.used || i == excludeIdx {
			continue
		}
		ranges = append(ranges, occupiedRange{start: int64(e.offset), end: int64(e.offset) + int64(e.size)})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	return ranges
}

// allocate finds a first-fit gap of at least n bytes in the data area,
// excluding the given directory entry's own span (used when overwriting a
// key in place), or appends at the tail if no gap is large enough.
func (s *Store) allocate(n int, excludeIdx int) (int64, error) {
	ranges := s.occupiedRanges(excludeIdx)
	cursor := s.dataStart
	for _, r := range ranges {
		if r.start-cursor >= int64(n) {
			return cursor, nil
		}
		if r.end > cursor {
			cursor = r.end
		}
	}
	if s.totalSize-cursor >= int64(n) {
		return cursor, nil
	}
	return 0, ErrNoSpace
}

// Write stores value under key, compressing it first when the store has
// compression enabled and the payload is large enough to benefit.
func (s *Store) Write(key string, value []byte) error {
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	if err := validateKey(key); err != nil {
		return err
	}

	payload := maybeCompress(value, s.opts.Compression)

	idx := s.dir.find(key)
	if idx < 0 {
		idx = s.dir.freeSlot()
		if idx < 0 {
			return ErrDirectoryFull
		}
	}

	offset, err := s.allocate(len(payload), idx)
	if err != nil {
		return err
	}
	if err := s.backend.WriteAt(offset, payload); err != nil {
		return fmt.Errorf("kvstore: write value: %w", err)
	}

	e := &s.dir.entries[idx]
	wasUsed := e.used
	setEntryKey(e, key)
	e.used = true
	e.offset = uint32(offset)
	e.size = uint32(len(payload))
	if !wasUsed {
		s.dir.entryCount++
	}
	s.dirty = true
	return s.autoCommit()
}

// Read retrieves the value stored under key, transparently decompressing
// it if it was written compressed.
func (s *Store) Read(key string) ([]byte, error) {
	idx := s.dir.find(key)
	if idx < 0 {
		return nil, ErrKeyNotFound
	}
	e := s.dir.entries[idx]
	raw := make([]byte, e.size)
	if err := s.backend.ReadAt(int64(e.offset), raw); err != nil {
		return nil, fmt.Errorf("kvstore: read value: %w", err)
	}
	if isCompressed(raw) {
		return decompress(raw), nil
	}
	return raw, nil
}

// Exists reports whether key has a stored value.
func (s *Store) Exists(key string) bool {
	return s.dir.find(key) >= 0
}

// Delete removes key's entry, if present, freeing its directory slot.
func (s *Store) Delete(key string) error {
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	idx := s.dir.find(key)
	if idx < 0 {
		return ErrKeyNotFound
	}
	s.dir.entries[idx] = dirEntry{}
	s.dir.entryCount--
	s.dirty = true
	return s.autoCommit()
}

// ListKeys returns every currently-stored key, in directory slot order.
func (s *Store) ListKeys() []string {
	return s.dir.keys()
}

// Size reports the bytes of the directory header plus all values currently
// recorded in the in-memory directory (original_source's get_free_space/get_total_space
// pair, exposed here as Size/Capacity per SPEC_FULL's introspection
// addition).
func (s *Store) Size() int64 {
	used := int64(dirSize(len(s.dir.entries)))
	for _, e := range s.dir.entries {
		if e.used {
			used += int64(e.size)
		}
	}
	return used
}

// Capacity reports the total addressable size of the backing medium.
func (s *Store) Capacity() int64 {
	return s.totalSize
}

// Commit flushes the in-memory directory to the backend.
func (s *Store) Commit() error {
	if err := s.backend.WriteAt(0, s.dir.encode()); err != nil {
		return fmt.Errorf("kvstore: commit directory: %w", err)
	}
	s.dirty = false
	return nil
}

// autoCommit writes the directory immediately unless a transaction is
// open, matching original_source's write/delete paths, which commit
// unless an explicit transaction is in progress.
func (s *Store) autoCommit() error {
	if s.inTxn {
		return nil
	}
	return s.Commit()
}

// BeginTransaction suspends auto-commit until EndTransaction. The format
// supports only one level; a second BeginTransaction call fails.
func (s *Store) BeginTransaction() error {
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	if s.inTxn {
		return ErrTransactionActive
	}
	s.inTxn = true
	return nil
}

// EndTransaction commits any pending directory changes and closes the
// transaction.
func (s *Store) EndTransaction() error {
	if !s.inTxn {
		return nil
	}
	s.inTxn = false
	if s.dirty {
		return s.Commit()
	}
	return nil
}

// Clear removes every key, re-stamping a fresh directory.
func (s *Store) Clear() error {
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	s.dir = newDirectory(len(s.dir.entries))
	s.dirty = true
	return s.autoCommit()
}
