package memtable

import (
	"github.com/huandu/skiplist"

	"github.com/KevoDB/strata/pkg/common/entry"
)

// Iterator walks the skip list in key order. Elements are never removed from a
// MemTable, so an iterator stays usable while the table keeps taking writes as
// long as the caller serializes the two.
type Iterator struct {
	mt   *MemTable
	elem *skiplist.Element
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *Iterator) Valid() bool {
	return it.elem != nil
}

// Next advances the iterator to the next key
func (it *Iterator) Next() bool {
	if it.elem == nil {
		return false
	}
	it.mt.mu.RLock()
	it.elem = it.elem.Next()
	it.mt.mu.RUnlock()
	return it.elem != nil
}

func (it *Iterator) record() *record {
	it.mt.mu.RLock()
	defer it.mt.mu.RUnlock()
	return it.elem.Value.(*record)
}

// Key returns the current key
func (it *Iterator) Key() []byte {
	if it.elem == nil {
		return nil
	}
	return it.elem.Key().([]byte)
}

// Value returns the current value, nil for tombstones
func (it *Iterator) Value() []byte {
	if it.elem == nil {
		return nil
	}
	rec := it.record()
	if rec.kind == entry.TypeDeletion {
		return nil
	}
	return rec.value
}

// Version returns the version of the current entry
func (it *Iterator) Version() uint64 {
	if it.elem == nil {
		return 0
	}
	return it.record().version
}

// IsTombstone returns true if the current entry is a deletion marker
func (it *Iterator) IsTombstone() bool {
	if it.elem == nil {
		return false
	}
	return it.record().kind == entry.TypeDeletion
}

// Error always returns nil: reading memory cannot fail
func (it *Iterator) Error() error {
	return nil
}
