package entry

import (
	"sort"
	"testing"
)

func TestEntrySize(t *testing.T) {
	live := NewValue([]byte("key"), []byte("value"), 1)
	if got, want := live.Size(), int64(3+5+RecordOverhead); got != want {
		t.Errorf("expected live size %d, got %d", want, got)
	}

	tomb := NewTombstone([]byte("key"), 2)
	if got, want := tomb.Size(), int64(3+RecordOverhead); got != want {
		t.Errorf("expected tombstone size %d, got %d", want, got)
	}
	if !tomb.IsTombstone() || live.IsTombstone() {
		t.Errorf("tombstone flags are wrong: live=%v tomb=%v", live.IsTombstone(), tomb.IsTombstone())
	}
}

func TestEntryCompareOrdersFreshestFirst(t *testing.T) {
	entries := []Entry{
		NewValue([]byte("b"), []byte("1"), 1),
		NewValue([]byte("a"), []byte("old"), 2),
		NewTombstone([]byte("a"), 5),
		NewValue([]byte("a"), []byte("mid"), 3),
	}

	sort.Slice(entries, func(i, j int) bool { return Compare(entries[i], entries[j]) < 0 })

	wantVersions := []uint64{5, 3, 2, 1}
	for i, e := range entries {
		if e.Version != wantVersions[i] {
			t.Errorf("position %d: expected version %d, got %d", i, wantVersions[i], e.Version)
		}
	}
	if !entries[0].Fresher(entries[1]) {
		t.Errorf("expected version 5 to be fresher than version 3")
	}
}

func TestEntryCloneIsIndependent(t *testing.T) {
	key := []byte("key")
	value := []byte("value")
	e := NewValue(key, value, 7)
	c := e.Clone()

	key[0] = 'X'
	value[0] = 'X'

	if string(c.Key) != "key" || string(c.Value) != "value" {
		t.Errorf("clone shares memory with the original: %q=%q", c.Key, c.Value)
	}

	empty := NewValue([]byte("k"), []byte{}, 1).Clone()
	if empty.Value == nil {
		t.Errorf("expected empty live value to stay non-nil after clone")
	}
}
