package engine

import (
	"github.com/KevoDB/strata/pkg/common/iterator"
	"github.com/KevoDB/strata/pkg/common/iterator/composite"
	"github.com/KevoDB/strata/pkg/common/iterator/filtered"
	"github.com/KevoDB/strata/pkg/sstable"
)

// Iterator walks the live keys of the store in ascending order. It holds a
// reference on every table it reads, so it stays valid across flushes and
// compactions until Close.
type Iterator struct {
	iter    iterator.Iterator
	readers []*sstable.Reader
	closed  bool
}

// Ensure Iterator implements the common iterator interface
var _ iterator.Iterator = (*Iterator)(nil)

// NewIterator returns an iterator positioned at the first live key >= from.
// A nil from starts at the smallest key.
func (e *Engine) NewIterator(from []byte) *Iterator {
	if e.closed.Load() {
		return &Iterator{iter: &iterator.Empty{Err: ErrEngineClosed}}
	}

	readers := make([]*sstable.Reader, 0, len(e.tables))
	for _, t := range e.tables {
		t.reader.Ref()
		readers = append(readers, t.reader)
	}

	return &Iterator{
		iter:    filtered.NewLiveIterator(e.mergedSources(from)),
		readers: readers,
	}
}

// mergedSources merges the memtable and every table, newest first, into one
// stream holding the freshest entry per key, deletion markers included.
func (e *Engine) mergedSources(from []byte) *composite.HierarchicalIterator {
	sources := make([]iterator.Iterator, 0, len(e.tables)+1)
	sources = append(sources, e.memTable.NewIterator(from))
	for i := len(e.tables) - 1; i >= 0; i-- {
		sources = append(sources, e.tables[i].reader.NewIterator(from))
	}
	return composite.NewHierarchicalIterator(sources)
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *Iterator) Valid() bool {
	return !it.closed && it.iter.Valid()
}

// Next advances to the next live key
func (it *Iterator) Next() bool {
	if it.closed {
		return false
	}
	return it.iter.Next()
}

// Key returns the current key
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.iter.Key()
}

// Value returns the current value
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.iter.Value()
}

// Version returns the version of the current entry
func (it *Iterator) Version() uint64 {
	if !it.Valid() {
		return 0
	}
	return it.iter.Version()
}

// IsTombstone is always false: deleted keys are never surfaced
func (it *Iterator) IsTombstone() bool {
	return false
}

// Error returns the first error met by any source
func (it *Iterator) Error() error {
	return it.iter.Error()
}

// Close releases the tables held by the iterator. It is safe to call more than once.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true

	var firstErr error
	for _, r := range it.readers {
		if err := r.Unref(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	it.readers = nil
	return firstErr
}
