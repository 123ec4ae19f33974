package bounded

import (
	"testing"

	"github.com/KevoDB/strata/pkg/common/entry"
	"github.com/KevoDB/strata/pkg/common/iterator"
)

func testEntries() []entry.Entry {
	return []entry.Entry{
		entry.NewValue([]byte("a"), []byte("1"), 1),
		entry.NewValue([]byte("b"), []byte("2"), 2),
		entry.NewValue([]byte("c"), []byte("3"), 3),
		entry.NewValue([]byte("d"), []byte("4"), 4),
		entry.NewValue([]byte("e"), []byte("5"), 5),
	}
}

func keys(it iterator.Iterator) []string {
	var out []string
	for ; it.Valid(); it.Next() {
		out = append(out, string(it.Key()))
	}
	return out
}

func TestBoundedIterator(t *testing.T) {
	testCases := []struct {
		name     string
		from     string
		end      []byte
		expected []string
	}{
		{"unbounded", "", nil, []string{"a", "b", "c", "d", "e"}},
		{"end excludes bound", "", []byte("c"), []string{"a", "b"}},
		{"start and end", "b", []byte("e"), []string{"b", "c", "d"}},
		{"end between keys", "a", []byte("bb"), []string{"a", "b"}},
		{"empty range", "c", []byte("c"), nil},
		{"end before start", "d", []byte("b"), nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			it := NewBoundedIterator(iterator.NewSliceIterator(testEntries(), []byte(tc.from)), tc.end)
			got := keys(it)

			if len(got) != len(tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
			for i := range got {
				if got[i] != tc.expected[i] {
					t.Errorf("position %d: expected %s, got %s", i, tc.expected[i], got[i])
				}
			}

			if it.Valid() || it.Key() != nil || it.Value() != nil {
				t.Errorf("expected exhausted iterator to be invalid")
			}
		})
	}
}

func TestBoundedIteratorCopiesEnd(t *testing.T) {
	end := []byte("c")
	it := NewBoundedIterator(iterator.NewSliceIterator(testEntries(), nil), end)
	end[0] = 'z'

	if got := keys(it); len(got) != 2 {
		t.Errorf("mutating the end key after construction changed the bound: %v", got)
	}
}
