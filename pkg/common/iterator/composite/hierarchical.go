// Package composite combines several ordered sources into a single logical view
package composite

import (
	"bytes"
	"container/heap"

	"github.com/KevoDB/strata/pkg/common/iterator"
)

// HierarchicalIterator implements an iterator that follows the LSM-tree hierarchy.
// Every source is merged through a min-heap and each key is reported once, with the
// entry that has the highest version. When two sources carry the same key and version
// the one earlier in the sources slice wins, so sources are expected newest first.
//
// Tombstones are reported like any other entry. Wrap the iterator with
// filtered.NewLiveIterator to hide them.
type HierarchicalIterator struct {
	heap    mergeHeap
	sources int

	// Current entry, copied out of the winning source
	key       []byte
	value     []byte
	version   uint64
	tombstone bool

	valid bool
	err   error
}

// NewHierarchicalIterator creates a new hierarchical iterator positioned at the
// smallest key across all sources. Sources must be provided in newest-to-oldest order.
func NewHierarchicalIterator(iterators []iterator.Iterator) *HierarchicalIterator {
	h := &HierarchicalIterator{
		heap:    make(mergeHeap, 0, len(iterators)),
		sources: len(iterators),
	}

	for rank, iter := range iterators {
		if iter.Valid() {
			h.heap = append(h.heap, &heapItem{iter: iter, rank: rank})
			continue
		}
		if err := iter.Error(); err != nil && h.err == nil {
			h.err = err
		}
	}
	heap.Init(&h.heap)

	h.settle()
	return h
}

// settle takes the winning entry from the top of the heap and moves every source
// holding the same key past it
func (h *HierarchicalIterator) settle() {
	if h.err != nil || h.heap.Len() == 0 {
		h.valid = false
		return
	}

	top := h.heap[0].iter
	h.key = append(h.key[:0], top.Key()...)
	h.version = top.Version()
	h.tombstone = top.IsTombstone()
	if h.tombstone {
		h.value = nil
	} else {
		h.value = append(h.value[:0], top.Value()...)
		if h.value == nil {
			h.value = []byte{}
		}
	}
	h.valid = true

	for h.heap.Len() > 0 && bytes.Equal(h.heap[0].iter.Key(), h.key) {
		item := h.heap[0]
		if item.iter.Next() {
			heap.Fix(&h.heap, 0)
			continue
		}
		heap.Pop(&h.heap)
		if err := item.iter.Error(); err != nil {
			h.err = err
			h.valid = false
			return
		}
	}
}

// Next advances the iterator to the next distinct key
func (h *HierarchicalIterator) Next() bool {
	if !h.valid {
		return false
	}
	h.settle()
	return h.valid
}

// Valid returns true if the iterator is positioned at a valid entry
func (h *HierarchicalIterator) Valid() bool {
	return h.valid
}

// Key returns the current key
func (h *HierarchicalIterator) Key() []byte {
	if !h.valid {
		return nil
	}
	return h.key
}

// Value returns the current value
func (h *HierarchicalIterator) Value() []byte {
	if !h.valid || h.tombstone {
		return nil
	}
	return h.value
}

// Version returns the version of the current entry
func (h *HierarchicalIterator) Version() uint64 {
	if !h.valid {
		return 0
	}
	return h.version
}

// IsTombstone returns true if the current entry is a deletion marker
func (h *HierarchicalIterator) IsTombstone() bool {
	return h.valid && h.tombstone
}

// Error returns the first error reported by any source
func (h *HierarchicalIterator) Error() error {
	return h.err
}

// NumSources returns the number of source iterators
func (h *HierarchicalIterator) NumSources() int {
	return h.sources
}

type heapItem struct {
	iter iterator.Iterator
	rank int
}

// mergeHeap orders sources by current key ascending, then version descending,
// then source rank ascending
type mergeHeap []*heapItem

func (m mergeHeap) Len() int { return len(m) }

func (m mergeHeap) Less(i, j int) bool {
	if cmp := bytes.Compare(m[i].iter.Key(), m[j].iter.Key()); cmp != 0 {
		return cmp < 0
	}
	vi, vj := m[i].iter.Version(), m[j].iter.Version()
	if vi != vj {
		return vi > vj
	}
	return m[i].rank < m[j].rank
}

func (m mergeHeap) Swap(i, j int) { m[i], m[j] = m[j], m[i] }

func (m *mergeHeap) Push(x any) { *m = append(*m, x.(*heapItem)) }

func (m *mergeHeap) Pop() any {
	old := *m
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*m = old[:n-1]
	return item
}
