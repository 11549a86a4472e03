package kvstore

import "encoding/binary"

// Directory layout constants, carried over from
// original_source/persistent_storage.c: a fixed-size magic-stamped header
// followed by a fixed-capacity table of key entries. maxKeys is a Store
// construction parameter rather than a compile-time constant so hosts with
// different flash budgets can size it, but the on-medium shape is the same.
const (
	dirMagic       uint32 = 0x5073746F // "Psto"
	dirVersion     uint32 = 1
	maxKeyLen             = 32
	dirHeaderSize         = 4 + 4 + 4 // magic, version, entryCount
	dirEntrySize          = maxKeyLen + 1 + 4 + 4 // key, used, offset, size
)

// dirEntry is one slot of the key directory: a fixed-width key, the byte
// offset of its value in the data area, and its stored (possibly
// compressed) size.
type dirEntry struct {
	key    [maxKeyLen]byte
	used   bool
	offset uint32
	size   uint32
}

func (e dirEntry) keyString() string {
	n := 0
	for n < len(e.key) && e.key[n] != 0 {
		n++
	}
	return string(e.key[:n])
}

func setEntryKey(e *dirEntry, key string) {
	var buf [maxKeyLen]byte
	copy(buf[:], key)
	e.key = buf
}

// directory is the in-memory mirror of the on-medium directory.
type directory struct {
	magic      uint32
	version    uint32
	entryCount uint32
	entries    []dirEntry // len == maxKeys, "used" marks occupancy
}

func newDirectory(maxKeys int) *directory {
	return &directory{
		magic:   dirMagic,
		version: dirVersion,
		entries: make([]dirEntry, maxKeys),
	}
}

func dirSize(maxKeys int) int {
	return dirHeaderSize + maxKeys*dirEntrySize
}

func (d *directory) valid() bool {
	return d.magic == dirMagic && d.version == dirVersion
}

// find returns the index of the entry for key, or -1.
func (d *directory) find(key string) int {
	for i := range d.entries {
		if d.entries[i].used && d.entries[i].keyString() == key {
			return i
		}
	}
	return -1
}

// freeSlot returns the index of an unused entry slot, or -1 if the
// directory is full.
func (d *directory) freeSlot() int {
	for i := range d.entries {
		if !d.entries[i].used {
			return i
		}
	}
	return -1
}

func (d *directory) keys() []string {
	keys := make([]string, 0, d.entryCount)
	for i := range d.entries {
		if d.entries[i].used {
			keys = append(keys, d.entries[i].keyString())
		}
	}
	return keys
}

// encode serializes the directory header and fixed entry table.
func (d *directory) encode() []byte {
	buf := make([]byte, dirSize(len(d.entries)))
	binary.LittleEndian.PutUint32(buf[0:4], d.magic)
	binary.LittleEndian.PutUint32(buf[4:8], d.version)
	binary.LittleEndian.PutUint32(buf[8:12], d.entryCount)

	off := dirHeaderSize
	for _, e := range d.entries {
		copy(buf[off:off+maxKeyLen], e.key[:])
		used := byte(0)
		if e.used {
			used = 1
		}
		buf[off+maxKeyLen] = used
		binary.LittleEndian.PutUint32(buf[off+maxKeyLen+1:off+maxKeyLen+5], e.offset)
		binary.LittleEndian.PutUint32(buf[off+maxKeyLen+5:off+maxKeyLen+9], e.size)
		off += dirEntrySize
	}
	return buf
}

// decodeDirectory parses a directory previously produced by encode. maxKeys
// must match the capacity the buffer was encoded with.
func decodeDirectory(buf []byte, maxKeys int) *directory {
	d := newDirectory(maxKeys)
	if len(buf) < dirSize(maxKeys) {
		return d
	}
	d.magic = binary.LittleEndian.Uint32(buf[0:4])
	d.version = binary.LittleEndian.Uint32(buf[4:8])
	d.entryCount = binary.LittleEndian.Uint32(buf[8:12])

	off := dirHeaderSize
	for i := range d.entries {
		e := &d.entries[i]
		copy(e.key[:], buf[off:off+maxKeyLen])
		e.used = buf[off+maxKeyLen] == 1
		e.offset = binary.LittleEndian.Uint32(buf[off+maxKeyLen+1 : off+maxKeyLen+5])
		e.size = binary.LittleEndian.Uint32(buf[off+maxKeyLen+5 : off+maxKeyLen+9])
		off += dirEntrySize
	}
	return d
}
