// Package filtered provides iterators that skip entries based on different criteria
package filtered

import (
	"bytes"

	"github.com/KevoDB/strata/pkg/common/iterator"
)

// FilterFunc decides whether the entry under the iterator should be exposed
type FilterFunc func(it iterator.Iterator) bool

// FilteredIterator wraps an iterator and hides the entries rejected by a filter
type FilteredIterator struct {
	iter   iterator.Iterator
	filter FilterFunc
}

// NewFilteredIterator creates a new iterator with a filter and positions it at
// the first accepted entry
func NewFilteredIterator(iter iterator.Iterator, filter FilterFunc) *FilteredIterator {
	fi := &FilteredIterator{
		iter:   iter,
		filter: filter,
	}
	fi.skip()
	return fi
}

// skip advances the source until it rests on an accepted entry or runs out
func (fi *FilteredIterator) skip() {
	for fi.iter.Valid() && !fi.filter(fi.iter) {
		fi.iter.Next()
	}
}

// Next advances to the next entry that passes the filter
func (fi *FilteredIterator) Next() bool {
	if !fi.iter.Valid() {
		return false
	}
	fi.iter.Next()
	fi.skip()
	return fi.iter.Valid()
}

// Valid returns true if the iterator is at a valid position
func (fi *FilteredIterator) Valid() bool {
	return fi.iter.Valid()
}

// Key returns the current key
func (fi *FilteredIterator) Key() []byte {
	return fi.iter.Key()
}

// Value returns the current value
func (fi *FilteredIterator) Value() []byte {
	return fi.iter.Value()
}

// Version returns the version of the current entry
func (fi *FilteredIterator) Version() uint64 {
	return fi.iter.Version()
}

// IsTombstone returns true if the current entry is a deletion marker
func (fi *FilteredIterator) IsTombstone() bool {
	return fi.iter.IsTombstone()
}

// Error returns the error of the wrapped iterator
func (fi *FilteredIterator) Error() error {
	return fi.iter.Error()
}

// LiveFilterFunc accepts only entries that are not deletion markers
func LiveFilterFunc(it iterator.Iterator) bool {
	return !it.IsTombstone()
}

// PrefixFilterFunc creates a filter function for keys with a specific prefix
func PrefixFilterFunc(prefix []byte) FilterFunc {
	return func(it iterator.Iterator) bool {
		return bytes.HasPrefix(it.Key(), prefix)
	}
}

// NewLiveIterator returns an iterator that never exposes tombstones
func NewLiveIterator(iter iterator.Iterator) *FilteredIterator {
	return NewFilteredIterator(iter, LiveFilterFunc)
}

// NewPrefixIterator returns an iterator that filters keys by prefix
func NewPrefixIterator(iter iterator.Iterator, prefix []byte) *FilteredIterator {
	return NewFilteredIterator(iter, PrefixFilterFunc(prefix))
}
