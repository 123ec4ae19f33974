// Package bounded limits an iterator to keys below an exclusive end key
package bounded

import (
	"bytes"

	"github.com/KevoDB/strata/pkg/common/iterator"
)

// BoundedIterator wraps an iterator and stops it at an exclusive end key.
// The start of the range is the from key the wrapped iterator was created with.
type BoundedIterator struct {
	iterator.Iterator
	end []byte
}

// NewBoundedIterator creates a new bounded iterator. A nil end means unbounded.
func NewBoundedIterator(iter iterator.Iterator, endKey []byte) *BoundedIterator {
	bi := &BoundedIterator{
		Iterator: iter,
	}

	// Make a copy of the bound to avoid external modification
	if endKey != nil {
		bi.end = make([]byte, len(endKey))
		copy(bi.end, endKey)
	}

	return bi
}

// Next advances to the next key within bounds
func (b *BoundedIterator) Next() bool {
	// First check if we're already at or beyond the end boundary
	if !b.checkBounds() {
		return false
	}

	if !b.Iterator.Next() {
		return false
	}

	return b.checkBounds()
}

// Valid returns true if the iterator is positioned at a valid entry within bounds
func (b *BoundedIterator) Valid() bool {
	return b.checkBounds()
}

// Key returns the current key if within bounds
func (b *BoundedIterator) Key() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Key()
}

// Value returns the current value if within bounds
func (b *BoundedIterator) Value() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Value()
}

// IsTombstone returns true if the current entry is a deletion marker
func (b *BoundedIterator) IsTombstone() bool {
	if !b.Valid() {
		return false
	}
	return b.Iterator.IsTombstone()
}

// checkBounds verifies that the current position is below the end bound
func (b *BoundedIterator) checkBounds() bool {
	if !b.Iterator.Valid() {
		return false
	}
	if b.end != nil && bytes.Compare(b.Iterator.Key(), b.end) >= 0 {
		return false
	}
	return true
}
