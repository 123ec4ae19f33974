// Package sstable implements the immutable on-disk sorted table.
//
// A table is a run of records followed by an offset trailer:
//
//	record  := [int32 keyLen][key][int64 version][value]
//	trailer := [int32 offset] * count [int32 count]
//
// All integers are little-endian. A deletion marker stores its version negated
// and carries no value bytes, which is why versions start at 1. The length of a
// value is implied by the offset of the following record, or by the start of the
// trailer for the last one.
package sstable

import (
	"errors"
)

const (
	// keyLenSize is the size of the key length prefix
	keyLenSize = 4
	// versionSize is the size of the signed version field
	versionSize = 8
	// offsetSize is the size of a trailer slot
	offsetSize = 4
	// recordHeaderSize is the smallest valid record: an empty key and no value
	recordHeaderSize = keyLenSize + versionSize

	// DefaultBloomBitsPerKey sizes the in-memory bloom filter built on open
	DefaultBloomBitsPerKey = 10
)

var (
	// ErrCorruption indicates data corruption was detected
	ErrCorruption = errors.New("sstable corruption detected")
	// ErrImmutable is returned by mutating calls on a sorted table
	ErrImmutable = errors.New("sstable is immutable")
	// ErrOutOfOrder is returned when keys are not added in strictly ascending order
	ErrOutOfOrder = errors.New("keys must be added in strictly ascending order")
	// ErrTableTooLarge is returned when a record offset no longer fits the trailer
	ErrTableTooLarge = errors.New("sstable exceeds maximum size")
	// ErrInvalidVersion is returned for versions that cannot be encoded
	ErrInvalidVersion = errors.New("invalid entry version")
	// ErrClosed is returned when a closed table is read
	ErrClosed = errors.New("sstable is closed")
)
