// Package entry defines the atomic unit of data flowing through the engine.
package entry

import "bytes"

// ValueType represents the type of a key-value entry
type ValueType uint8

const (
	// TypeValue indicates the entry contains a value
	TypeValue ValueType = iota + 1

	// TypeDeletion indicates the entry is a tombstone (deletion marker)
	TypeDeletion
)

// RecordOverhead is the fixed per-entry cost charged on top of key and value bytes:
// the int32 key length, the int64 version and the int32 offset slot of a table record.
const RecordOverhead = 4 + 8 + 4

// Entry is a versioned key with either a value or a deletion marker.
// Versions are only meaningful between entries sharing a key: the higher one is fresher.
type Entry struct {
	Key     []byte
	Value   []byte
	Type    ValueType
	Version uint64
}

// NewValue creates a live entry
func NewValue(key, value []byte, version uint64) Entry {
	return Entry{Key: key, Value: value, Type: TypeValue, Version: version}
}

// NewTombstone creates a deletion marker
func NewTombstone(key []byte, version uint64) Entry {
	return Entry{Key: key, Type: TypeDeletion, Version: version}
}

// IsTombstone returns true if the entry marks a deletion
func (e Entry) IsTombstone() bool {
	return e.Type == TypeDeletion
}

// PayloadSize returns the number of value bytes the entry carries (0 for tombstones)
func (e Entry) PayloadSize() int64 {
	if e.IsTombstone() {
		return 0
	}
	return int64(len(e.Value))
}

// Size returns the accounted size of the entry
func (e Entry) Size() int64 {
	return int64(len(e.Key)) + e.PayloadSize() + RecordOverhead
}

// Fresher reports whether e shadows other. Both must share a key.
func (e Entry) Fresher(other Entry) bool {
	return e.Version > other.Version
}

// Compare orders entries by key ascending, then by version descending so the
// freshest entry for a key sorts first.
func Compare(a, b Entry) int {
	if cmp := bytes.Compare(a.Key, b.Key); cmp != 0 {
		return cmp
	}
	switch {
	case a.Version > b.Version:
		return -1
	case a.Version < b.Version:
		return 1
	}
	return 0
}

// Clone returns a deep copy of the entry
func (e Entry) Clone() Entry {
	c := Entry{Type: e.Type, Version: e.Version}
	c.Key = append([]byte(nil), e.Key...)
	if e.Type == TypeValue {
		c.Value = append(make([]byte, 0, len(e.Value)), e.Value...)
	}
	return c
}
