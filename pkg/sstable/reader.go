package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/KevoDB/strata/pkg/common/entry"
	"github.com/KevoDB/strata/pkg/common/iterator"
)

// ReaderOptions configures how a table is opened
type ReaderOptions struct {
	// BloomBitsPerKey sizes the bloom filter; 0 disables it
	BloomBitsPerKey int
}

// DefaultReaderOptions returns the default reader options
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{BloomBitsPerKey: DefaultBloomBitsPerKey}
}

// Reader gives read access to one immutable table file.
//
// A Reader starts with one reference owned by whoever opened it. Iterators that
// must outlive a Close take their own reference with Ref and drop it with Unref;
// the file handle is released when the last reference goes away.
type Reader struct {
	path       string
	file       *os.File
	fileSize   int64
	dataEnd    int64
	offsets    []int32
	maxVersion uint64
	bloom      *bloomFilter

	refs      atomic.Int32
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// OpenReader opens and validates the table at path
func OpenReader(path string) (*Reader, error) {
	return OpenReaderWithOptions(path, DefaultReaderOptions())
}

// OpenReaderWithOptions opens and validates the table at path. Every record is
// checked once, so a Reader that opens successfully is structurally sound.
func OpenReaderWithOptions(path string, options ReaderOptions) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat table: %w", err)
	}

	r := &Reader{
		path:     path,
		file:     file,
		fileSize: stat.Size(),
	}
	r.refs.Store(1)

	if err := r.loadTrailer(); err != nil {
		file.Close()
		return nil, err
	}
	if err := r.validate(options); err != nil {
		file.Close()
		return nil, err
	}

	return r, nil
}

func (r *Reader) corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %s: %w", r.path, fmt.Sprintf(format, args...), ErrCorruption)
}

// loadTrailer reads the entry count and the offset array
func (r *Reader) loadTrailer() error {
	if r.fileSize < offsetSize {
		return r.corrupt("file too small (%d bytes)", r.fileSize)
	}

	var countBuf [offsetSize]byte
	if _, err := r.file.ReadAt(countBuf[:], r.fileSize-offsetSize); err != nil {
		return fmt.Errorf("%s: failed to read entry count: %w", r.path, err)
	}
	count := int64(int32(binary.LittleEndian.Uint32(countBuf[:])))
	if count < 0 {
		return r.corrupt("negative entry count %d", count)
	}

	indexSize := offsetSize * (count + 1)
	if indexSize > r.fileSize {
		return r.corrupt("index of %d entries larger than file (%d bytes)", count, r.fileSize)
	}
	r.dataEnd = r.fileSize - indexSize

	if count == 0 {
		if r.dataEnd != 0 {
			return r.corrupt("%d data bytes in a table with no entries", r.dataEnd)
		}
		return nil
	}

	index := make([]byte, offsetSize*count)
	if _, err := r.file.ReadAt(index, r.dataEnd); err != nil {
		return fmt.Errorf("%s: failed to read offsets: %w", r.path, err)
	}

	r.offsets = make([]int32, count)
	for i := range r.offsets {
		off := int32(binary.LittleEndian.Uint32(index[i*offsetSize:]))
		switch {
		case i == 0 && off != 0:
			return r.corrupt("first offset is %d", off)
		case i > 0 && off <= r.offsets[i-1]:
			return r.corrupt("offset %d of entry %d not after %d", off, i, r.offsets[i-1])
		case int64(off) >= r.dataEnd:
			return r.corrupt("offset %d of entry %d beyond data region (%d bytes)", off, i, r.dataEnd)
		}
		r.offsets[i] = off
	}
	return nil
}

// recordEnd returns the end of record i
func (r *Reader) recordEnd(i int) int64 {
	if i+1 < len(r.offsets) {
		return int64(r.offsets[i+1])
	}
	return r.dataEnd
}

// validate walks every record once, checking its framing and key order, and
// builds the bloom filter and the maximum version on the way
func (r *Reader) validate(options ReaderOptions) error {
	if options.BloomBitsPerKey > 0 {
		r.bloom = newBloomFilter(len(r.offsets), options.BloomBitsPerKey)
	}

	br := bufio.NewReaderSize(io.NewSectionReader(r.file, 0, r.dataEnd), 64*1024)
	var header [recordHeaderSize]byte
	var key, prevKey []byte

	for i, off := range r.offsets {
		recordLen := r.recordEnd(i) - int64(off)
		if recordLen < recordHeaderSize {
			return r.corrupt("entry %d at offset %d shorter than its header (%d bytes)", i, off, recordLen)
		}

		if _, err := io.ReadFull(br, header[:keyLenSize]); err != nil {
			return fmt.Errorf("%s: failed to read entry %d: %w", r.path, i, err)
		}
		keyLen := int64(int32(binary.LittleEndian.Uint32(header[:keyLenSize])))
		if keyLen < 0 || recordHeaderSize+keyLen > recordLen {
			return r.corrupt("entry %d key length %d out of bounds", i, keyLen)
		}

		if int64(cap(key)) < keyLen {
			key = make([]byte, keyLen)
		}
		key = key[:keyLen]
		if _, err := io.ReadFull(br, key); err != nil {
			return fmt.Errorf("%s: failed to read key of entry %d: %w", r.path, i, err)
		}
		if i > 0 && bytes.Compare(key, prevKey) <= 0 {
			return r.corrupt("entry %d key %q not after %q", i, key, prevKey)
		}

		if _, err := io.ReadFull(br, header[keyLenSize:]); err != nil {
			return fmt.Errorf("%s: failed to read version of entry %d: %w", r.path, i, err)
		}
		version := int64(binary.LittleEndian.Uint64(header[keyLenSize:]))
		valueLen := recordLen - recordHeaderSize - keyLen
		switch {
		case version == 0:
			return r.corrupt("entry %d has version 0", i)
		case version == math.MinInt64:
			return r.corrupt("entry %d version out of range", i)
		case version < 0 && valueLen > 0:
			return r.corrupt("deletion marker %d carries %d value bytes", i, valueLen)
		}
		if version < 0 {
			version = -version
		}
		if uint64(version) > r.maxVersion {
			r.maxVersion = uint64(version)
		}

		if _, err := br.Discard(int(valueLen)); err != nil {
			return fmt.Errorf("%s: failed to skip value of entry %d: %w", r.path, i, err)
		}

		if r.bloom != nil {
			r.bloom.Add(key)
		}
		prevKey = append(prevKey[:0], key...)
	}
	return nil
}

// readKey reads only the key of record i
func (r *Reader) readKey(i int, buf []byte) ([]byte, error) {
	var header [keyLenSize]byte
	off := int64(r.offsets[i])
	if _, err := r.file.ReadAt(header[:], off); err != nil {
		return nil, r.readError(err, "key length of entry %d", i)
	}
	keyLen := int(binary.LittleEndian.Uint32(header[:]))
	if cap(buf) < keyLen {
		buf = make([]byte, keyLen)
	}
	buf = buf[:keyLen]
	if _, err := r.file.ReadAt(buf, off+keyLenSize); err != nil {
		return nil, r.readError(err, "key of entry %d", i)
	}
	return buf, nil
}

// readEntry reads record i into buf and decodes it. The returned entry's key and
// value alias buf.
func (r *Reader) readEntry(i int, buf []byte) (entry.Entry, []byte, error) {
	off := int64(r.offsets[i])
	recordLen := int(r.recordEnd(i) - off)
	if cap(buf) < recordLen {
		buf = make([]byte, recordLen)
	}
	buf = buf[:recordLen]
	if _, err := r.file.ReadAt(buf, off); err != nil {
		return entry.Entry{}, buf, r.readError(err, "entry %d", i)
	}

	keyLen := int(binary.LittleEndian.Uint32(buf))
	key := buf[keyLenSize : keyLenSize+keyLen]
	version := int64(binary.LittleEndian.Uint64(buf[keyLenSize+keyLen:]))
	value := buf[recordHeaderSize+keyLen:]

	if version < 0 {
		return entry.NewTombstone(key, uint64(-version)), buf, nil
	}
	return entry.NewValue(key, value, uint64(version)), buf, nil
}

func (r *Reader) readError(err error, format string, args ...interface{}) error {
	if r.refs.Load() <= 0 {
		return fmt.Errorf("%s: %w", r.path, ErrClosed)
	}
	return fmt.Errorf("%s: failed to read %s: %w", r.path, fmt.Sprintf(format, args...), err)
}

// KeyPosition returns the index of the first entry whose key is >= key: the
// entry's own index on an exact match, 0 below every key and Count() above them
func (r *Reader) KeyPosition(key []byte) (int, error) {
	lo, hi := 0, len(r.offsets)
	var buf []byte
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		k, err := r.readKey(mid, buf)
		if err != nil {
			return 0, err
		}
		buf = k

		if bytes.Compare(k, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// Get returns the entry stored for key. A deletion marker is returned as found:
// the caller decides whether it shadows older tables.
func (r *Reader) Get(key []byte) (entry.Entry, bool, error) {
	if r.bloom != nil && !r.bloom.MayContain(key) {
		return entry.Entry{}, false, nil
	}

	pos, err := r.KeyPosition(key)
	if err != nil {
		return entry.Entry{}, false, err
	}
	if pos >= len(r.offsets) {
		return entry.Entry{}, false, nil
	}

	e, _, err := r.readEntry(pos, nil)
	if err != nil {
		return entry.Entry{}, false, err
	}
	if !bytes.Equal(e.Key, key) {
		return entry.Entry{}, false, nil
	}
	return e, true, nil
}

// MayContain reports whether the bloom filter admits key
func (r *Reader) MayContain(key []byte) bool {
	return r.bloom == nil || r.bloom.MayContain(key)
}

// Put always fails: tables are immutable
func (r *Reader) Put(key, value []byte) error {
	return ErrImmutable
}

// Delete always fails: tables are immutable
func (r *Reader) Delete(key []byte) error {
	return ErrImmutable
}

// NewIterator returns an iterator positioned at the first key >= from
func (r *Reader) NewIterator(from []byte) iterator.Iterator {
	pos := 0
	if len(from) > 0 {
		var err error
		if pos, err = r.KeyPosition(from); err != nil {
			return &iterator.Empty{Err: err}
		}
	}
	it := &Iterator{reader: r, pos: pos}
	it.load()
	return it
}

// Count returns the number of entries in the table
func (r *Reader) Count() int {
	return len(r.offsets)
}

// MaxVersion returns the highest version stored in the table
func (r *Reader) MaxVersion() uint64 {
	return r.maxVersion
}

// DataSize returns the size of the record region in bytes
func (r *Reader) DataSize() int64 {
	return r.dataEnd
}

// FileSize returns the size of the table file in bytes
func (r *Reader) FileSize() int64 {
	return r.fileSize
}

// FilePath returns the path of the table file
func (r *Reader) FilePath() string {
	return r.path
}

// Ref takes a reference that keeps the file open until the matching Unref
func (r *Reader) Ref() {
	r.refs.Add(1)
}

// Unref drops a reference and closes the file when none remain
func (r *Reader) Unref() error {
	if r.refs.Add(-1) == 0 {
		r.closeOnce.Do(func() {
			r.closeErr = r.file.Close()
		})
		return r.closeErr
	}
	return nil
}

// Close releases the owner's reference. It is safe to call more than once.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.Unref()
}

// IsClosed reports whether the owner released the table
func (r *Reader) IsClosed() bool {
	return r.closed.Load()
}
