package iterator

// Iterator defines the interface for walking versioned entries in ascending key order.
// This is used across the storage engine components to provide a consistent
// way to traverse data regardless of where it's stored.
//
// Iterators are forward-only and come back already positioned at their first
// entry, so the usual loop is:
//
//	for it := src.NewIterator(from); it.Valid(); it.Next() {
//		...
//	}
//	if err := it.Error(); err != nil {
//		...
//	}
type Iterator interface {
	// Valid returns true if the iterator is positioned at a valid entry
	Valid() bool

	// Next advances the iterator to the next entry and reports whether it is valid
	Next() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value, nil for tombstones
	Value() []byte

	// Version returns the version of the current entry
	Version() uint64

	// IsTombstone returns true if the current entry is a deletion marker
	IsTombstone() bool

	// Error returns the error that ended the iteration, if any.
	// An iterator that failed is no longer valid.
	Error() error
}

// Source is anything that can produce an ordered entry cursor starting at a key.
// MemTables and SSTables both implement it so merging is written once.
type Source interface {
	// NewIterator returns a fresh iterator positioned at the first key >= from.
	// A nil or empty from starts at the beginning.
	NewIterator(from []byte) Iterator
}

// Empty is an iterator that contains no entries
type Empty struct {
	Err error
}

func (e *Empty) Valid() bool       { return false }
func (e *Empty) Next() bool        { return false }
func (e *Empty) Key() []byte       { return nil }
func (e *Empty) Value() []byte     { return nil }
func (e *Empty) Version() uint64   { return 0 }
func (e *Empty) IsTombstone() bool { return false }
func (e *Empty) Error() error      { return e.Err }
