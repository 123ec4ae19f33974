// Package memtable holds the mutable, sorted in-memory buffer that absorbs writes
// until it is flushed to a sorted table.
package memtable

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/huandu/skiplist"

	"github.com/KevoDB/strata/pkg/common/clock"
	"github.com/KevoDB/strata/pkg/common/entry"
	"github.com/KevoDB/strata/pkg/common/iterator"
)

// record is the value stored in the skip list for each key
type record struct {
	value   []byte
	version uint64
	kind    entry.ValueType
}

func (r *record) payload() int64 {
	if r.kind == entry.TypeDeletion {
		return 0
	}
	return int64(len(r.value))
}

// MemTable is an in-memory table that stores the latest entry for each key.
// It is implemented using a skip list for ordered inserts, lookups and seeks.
type MemTable struct {
	skipList     *skiplist.SkipList
	clock        *clock.VersionClock
	creationTime time.Time
	immutable    atomic.Bool
	size         int64
	mu           sync.RWMutex
}

// NewMemTable creates a new memory table that stamps writes with versions from c
func NewMemTable(c *clock.VersionClock) *MemTable {
	return &MemTable{
		skipList:     skiplist.New(skiplist.Bytes),
		clock:        c,
		creationTime: time.Now(),
	}
}

// Put stores a value for key and returns the accounted size of the table afterwards
func (m *MemTable) Put(key, value []byte) int64 {
	return m.write(key, value, entry.TypeValue)
}

// Delete records a tombstone for key and returns the accounted size afterwards.
// The key is never removed: the tombstone has to shadow older tables.
func (m *MemTable) Delete(key []byte) int64 {
	return m.write(key, nil, entry.TypeDeletion)
}

func (m *MemTable) write(key, value []byte, kind entry.ValueType) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsImmutable() {
		panic("memtable: write to an immutable memtable")
	}

	rec := &record{
		version: m.clock.Tick(),
		kind:    kind,
	}
	if kind == entry.TypeValue {
		rec.value = append(make([]byte, 0, len(value)), value...)
	}

	if elem := m.skipList.Get(key); elem != nil {
		old := elem.Value.(*record)
		m.size += rec.payload() - old.payload()
		elem.Value = rec
		return m.size
	}

	k := append([]byte(nil), key...)
	m.skipList.Set(k, rec)
	m.size += int64(len(k)) + rec.payload() + entry.RecordOverhead
	return m.size
}

// Get retrieves the value associated with the given key
// Returns (nil, true) if the key exists but has been deleted
// Returns (nil, false) if the key does not exist
// Returns (value, true) if the key exists and has a value
func (m *MemTable) Get(key []byte) ([]byte, bool) {
	e, ok := m.Lookup(key)
	if !ok || e.IsTombstone() {
		return nil, ok
	}
	return e.Value, true
}

// Lookup returns a copy of the entry stored for key
func (m *MemTable) Lookup(key []byte) (entry.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elem := m.skipList.Get(key)
	if elem == nil {
		return entry.Entry{}, false
	}
	return toEntry(elem).Clone(), true
}

func toEntry(elem *skiplist.Element) entry.Entry {
	rec := elem.Value.(*record)
	return entry.Entry{
		Key:     elem.Key().([]byte),
		Value:   rec.value,
		Type:    rec.kind,
		Version: rec.version,
	}
}

// Len returns the number of distinct keys, tombstones included
func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skipList.Len()
}

// ApproximateSize returns the accounted size of the MemTable in bytes: for every
// key its length, its value length and the fixed per-record overhead
func (m *MemTable) ApproximateSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// SetImmutable marks the MemTable as immutable
// After this is called, no more modifications are allowed
func (m *MemTable) SetImmutable() {
	m.immutable.Store(true)
}

// SetMutable reopens a frozen MemTable for writes after a failed flush
func (m *MemTable) SetMutable() {
	m.immutable.Store(false)
}

// IsImmutable returns whether the MemTable is immutable
func (m *MemTable) IsImmutable() bool {
	return m.immutable.Load()
}

// Age returns the age of the MemTable in seconds
func (m *MemTable) Age() float64 {
	return time.Since(m.creationTime).Seconds()
}

// NewIterator returns an iterator positioned at the first key >= from
func (m *MemTable) NewIterator(from []byte) iterator.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var elem *skiplist.Element
	if len(from) == 0 {
		elem = m.skipList.Front()
	} else {
		elem = m.skipList.Find(from)
	}
	return &Iterator{mt: m, elem: elem}
}
