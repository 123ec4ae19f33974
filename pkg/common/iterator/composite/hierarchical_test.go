package composite

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/KevoDB/strata/pkg/common/entry"
	"github.com/KevoDB/strata/pkg/common/iterator"
	"github.com/KevoDB/strata/pkg/common/iterator/filtered"
)

func source(entries ...entry.Entry) []entry.Entry {
	sort.Slice(entries, func(i, j int) bool { return entry.Compare(entries[i], entries[j]) < 0 })
	return entries
}

func val(k, v string, version uint64) entry.Entry {
	return entry.NewValue([]byte(k), []byte(v), version)
}

func tomb(k string, version uint64) entry.Entry {
	return entry.NewTombstone([]byte(k), version)
}

func merge(from []byte, sources ...[]entry.Entry) *HierarchicalIterator {
	iters := make([]iterator.Iterator, len(sources))
	for i, s := range sources {
		iters[i] = iterator.NewSliceIterator(s, from)
	}
	return NewHierarchicalIterator(iters)
}

func TestHierarchicalIteratorFreshestWins(t *testing.T) {
	newest := source(val("b", "new-b", 5), tomb("c", 6))
	middle := source(val("a", "a", 2), val("c", "c", 3))
	oldest := source(val("b", "old-b", 1), val("d", "d", 4))

	it := merge(nil, newest, middle, oldest)
	got, err := iterator.Collect(it)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []entry.Entry{
		val("a", "a", 2),
		val("b", "new-b", 5),
		tomb("c", 6),
		val("d", "d", 4),
	}
	if len(got) != len(expected) {
		t.Fatalf("expected %d entries, got %d: %v", len(expected), len(got), got)
	}
	for i := range expected {
		if string(got[i].Key) != string(expected[i].Key) ||
			string(got[i].Value) != string(expected[i].Value) ||
			got[i].Version != expected[i].Version ||
			got[i].IsTombstone() != expected[i].IsTombstone() {
			t.Errorf("position %d: expected %+v, got %+v", i, expected[i], got[i])
		}
	}

	if it.NumSources() != 3 {
		t.Errorf("expected 3 sources, got %d", it.NumSources())
	}
}

func TestHierarchicalIteratorVersionBeatsRank(t *testing.T) {
	// An older source can still hold the fresher version of a key
	first := source(val("k", "stale", 1))
	second := source(val("k", "fresh", 9))

	it := merge(nil, first, second)
	if !it.Valid() || string(it.Value()) != "fresh" {
		t.Fatalf("expected fresh value, got %q", it.Value())
	}
	if it.Next() {
		t.Errorf("expected a single merged key")
	}
}

func TestHierarchicalIteratorRankBreaksTies(t *testing.T) {
	first := source(val("k", "first", 3))
	second := source(val("k", "second", 3))

	it := merge(nil, first, second)
	if string(it.Value()) != "first" {
		t.Errorf("expected earlier source to win a version tie, got %q", it.Value())
	}
}

func TestHierarchicalIteratorFrom(t *testing.T) {
	a := source(val("a", "1", 1), val("c", "3", 3), val("e", "5", 5))
	b := source(val("b", "2", 2), val("d", "4", 4))

	it := merge([]byte("c"), a, b)
	var keys []string
	for ; it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if fmt.Sprint(keys) != "[c d e]" {
		t.Errorf("expected [c d e], got %v", keys)
	}
}

func TestHierarchicalIteratorLiveView(t *testing.T) {
	newest := source(tomb("a", 3))
	oldest := source(val("a", "1", 1), val("b", "2", 2))

	it := filtered.NewLiveIterator(merge(nil, newest, oldest))
	if !it.Valid() || string(it.Key()) != "b" {
		t.Fatalf("expected deleted key to be hidden, got %q", it.Key())
	}
	if it.Next() {
		t.Errorf("expected iteration to end after b")
	}
}

func TestHierarchicalIteratorNoSources(t *testing.T) {
	it := NewHierarchicalIterator(nil)
	if it.Valid() || it.Next() || it.Key() != nil || it.Error() != nil {
		t.Errorf("expected empty iterator")
	}
}

type failingIterator struct {
	iterator.Iterator
	failAfter int
	err       error
}

func (f *failingIterator) Next() bool {
	if f.failAfter == 0 {
		return false
	}
	f.failAfter--
	return f.Iterator.Next()
}

func (f *failingIterator) Error() error {
	if f.failAfter == 0 {
		return f.err
	}
	return nil
}

func TestHierarchicalIteratorSourceError(t *testing.T) {
	boom := errors.New("read failed")
	bad := &failingIterator{
		Iterator:  iterator.NewSliceIterator(source(val("a", "1", 1), val("c", "3", 3)), nil),
		failAfter: 0,
		err:       boom,
	}
	good := iterator.NewSliceIterator(source(val("b", "2", 2)), nil)

	it := NewHierarchicalIterator([]iterator.Iterator{bad, good})
	for it.Valid() {
		it.Next()
	}
	if !errors.Is(it.Error(), boom) {
		t.Errorf("expected source error to surface, got %v", it.Error())
	}
}

func TestHierarchicalIteratorMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	model := make(map[string]entry.Entry)
	sources := make([][]entry.Entry, 5)

	var version uint64
	for s := len(sources) - 1; s >= 0; s-- {
		seen := make(map[string]bool)
		for i := 0; i < 200; i++ {
			k := fmt.Sprintf("key-%03d", rng.Intn(150))
			if seen[k] {
				continue
			}
			seen[k] = true
			version++
			var e entry.Entry
			if rng.Intn(4) == 0 {
				e = tomb(k, version)
			} else {
				e = val(k, fmt.Sprintf("v%d", version), version)
			}
			sources[s] = append(sources[s], e)
			model[k] = e
		}
		sources[s] = source(sources[s]...)
	}

	var live []string
	for k, e := range model {
		if !e.IsTombstone() {
			live = append(live, k)
		}
	}
	sort.Strings(live)

	it := filtered.NewLiveIterator(merge(nil, sources...))
	i := 0
	for ; it.Valid(); it.Next() {
		if i >= len(live) {
			t.Fatalf("iterator returned extra key %q", it.Key())
		}
		k := string(it.Key())
		if k != live[i] {
			t.Fatalf("position %d: expected key %s, got %s", i, live[i], k)
		}
		if string(it.Value()) != string(model[k].Value) {
			t.Errorf("key %s: expected %s, got %s", k, model[k].Value, it.Value())
		}
		i++
	}
	if i != len(live) {
		t.Errorf("expected %d live keys, got %d", len(live), i)
	}
}
