package filtered

import (
	"errors"
	"testing"

	"github.com/KevoDB/strata/pkg/common/entry"
	"github.com/KevoDB/strata/pkg/common/iterator"
)

func mixedEntries() []entry.Entry {
	return []entry.Entry{
		entry.NewTombstone([]byte("a"), 1),
		entry.NewValue([]byte("app"), []byte("1"), 2),
		entry.NewTombstone([]byte("apple"), 3),
		entry.NewValue([]byte("apply"), []byte("2"), 4),
		entry.NewValue([]byte("banana"), []byte("3"), 5),
		entry.NewTombstone([]byte("cherry"), 6),
	}
}

func collectKeys(it iterator.Iterator) []string {
	var out []string
	for ; it.Valid(); it.Next() {
		out = append(out, string(it.Key()))
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLiveIteratorSkipsTombstones(t *testing.T) {
	it := NewLiveIterator(iterator.NewSliceIterator(mixedEntries(), nil))

	got := collectKeys(it)
	expected := []string{"app", "apply", "banana"}
	if !equal(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestLiveIteratorAllTombstones(t *testing.T) {
	entries := []entry.Entry{
		entry.NewTombstone([]byte("x"), 1),
		entry.NewTombstone([]byte("y"), 2),
	}
	it := NewLiveIterator(iterator.NewSliceIterator(entries, nil))

	if it.Valid() {
		t.Errorf("expected no live entries, got key %q", it.Key())
	}
	if it.Next() {
		t.Errorf("expected Next on exhausted iterator to return false")
	}
}

func TestPrefixIterator(t *testing.T) {
	it := NewPrefixIterator(iterator.NewSliceIterator(mixedEntries(), []byte("app")), []byte("app"))

	got := collectKeys(it)
	expected := []string{"app", "apple", "apply"}
	if !equal(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestFilteredIteratorPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	it := NewLiveIterator(&iterator.Empty{Err: boom})

	if it.Valid() {
		t.Fatalf("expected failed iterator to be invalid")
	}
	if !errors.Is(it.Error(), boom) {
		t.Errorf("expected error %v, got %v", boom, it.Error())
	}
}
