package iterator

import (
	"bytes"
	"sort"

	"github.com/KevoDB/strata/pkg/common/entry"
)

// SliceIterator walks an in-memory slice of entries sorted by entry.Compare
type SliceIterator struct {
	entries []entry.Entry
	pos     int
}

// NewSliceIterator creates an iterator over entries, positioned at the first key >= from.
// The slice must already be sorted by entry.Compare.
func NewSliceIterator(entries []entry.Entry, from []byte) *SliceIterator {
	pos := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].Key, from) >= 0
	})
	return &SliceIterator{entries: entries, pos: pos}
}

func (s *SliceIterator) Valid() bool { return s.pos < len(s.entries) }

func (s *SliceIterator) Next() bool {
	if s.pos < len(s.entries) {
		s.pos++
	}
	return s.Valid()
}

func (s *SliceIterator) Key() []byte {
	if !s.Valid() {
		return nil
	}
	return s.entries[s.pos].Key
}

func (s *SliceIterator) Value() []byte {
	if !s.Valid() || s.entries[s.pos].IsTombstone() {
		return nil
	}
	return s.entries[s.pos].Value
}

func (s *SliceIterator) Version() uint64 {
	if !s.Valid() {
		return 0
	}
	return s.entries[s.pos].Version
}

func (s *SliceIterator) IsTombstone() bool {
	return s.Valid() && s.entries[s.pos].IsTombstone()
}

func (s *SliceIterator) Error() error { return nil }

// Current returns the entry under the iterator
func Current(it Iterator) entry.Entry {
	e := entry.Entry{
		Key:     it.Key(),
		Version: it.Version(),
		Type:    entry.TypeValue,
	}
	if it.IsTombstone() {
		e.Type = entry.TypeDeletion
	} else {
		e.Value = it.Value()
	}
	return e
}

// Collect drains an iterator into a slice of copied entries
func Collect(it Iterator) ([]entry.Entry, error) {
	var out []entry.Entry
	for ; it.Valid(); it.Next() {
		out = append(out, Current(it).Clone())
	}
	return out, it.Error()
}
