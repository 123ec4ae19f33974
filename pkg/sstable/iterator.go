package sstable

import (
	"github.com/KevoDB/strata/pkg/common/entry"
)

// Iterator walks the records of a table in key order
type Iterator struct {
	reader *Reader
	pos    int
	cur    entry.Entry
	buf    []byte
	valid  bool
	err    error
}

// load decodes the record at the current position
func (it *Iterator) load() {
	it.valid = false
	if it.err != nil || it.pos >= len(it.reader.offsets) {
		return
	}

	e, buf, err := it.reader.readEntry(it.pos, it.buf)
	it.buf = buf
	if err != nil {
		it.err = err
		return
	}
	it.cur = e
	it.valid = true
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *Iterator) Valid() bool {
	return it.valid
}

// Next advances the iterator to the next entry
func (it *Iterator) Next() bool {
	if !it.valid {
		return false
	}
	it.pos++
	it.load()
	return it.valid
}

// Key returns the current key
func (it *Iterator) Key() []byte {
	if !it.valid {
		return nil
	}
	return it.cur.Key
}

// Value returns the current value, nil for deletion markers
func (it *Iterator) Value() []byte {
	if !it.valid || it.cur.IsTombstone() {
		return nil
	}
	return it.cur.Value
}

// Version returns the version of the current entry
func (it *Iterator) Version() uint64 {
	if !it.valid {
		return 0
	}
	return it.cur.Version
}

// IsTombstone returns true if the current entry is a deletion marker
func (it *Iterator) IsTombstone() bool {
	return it.valid && it.cur.IsTombstone()
}

// Error returns the read error that stopped the iterator, if any
func (it *Iterator) Error() error {
	return it.err
}

// Position returns the index of the current entry
func (it *Iterator) Position() int {
	return it.pos
}
