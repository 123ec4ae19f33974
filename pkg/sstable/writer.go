package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/KevoDB/strata/pkg/common/entry"
	"github.com/KevoDB/strata/pkg/common/iterator"
)

// FileManager handles file operations for SSTable writing
type FileManager struct {
	path string
	file *os.File
	buf  *bufio.Writer
}

// NewFileManager creates the file at path, truncating anything already there
func NewFileManager(path string) (*FileManager, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create table file: %w", err)
	}

	return &FileManager{
		path: path,
		file: file,
		buf:  bufio.NewWriterSize(file, 64*1024),
	}, nil
}

// Write writes data to the file at the current position
func (fm *FileManager) Write(data []byte) (int, error) {
	return fm.buf.Write(data)
}

// Sync flushes buffered data and the file to disk
func (fm *FileManager) Sync() error {
	if err := fm.buf.Flush(); err != nil {
		return err
	}
	return fm.file.Sync()
}

// Close flushes buffered data and closes the file
func (fm *FileManager) Close() error {
	if fm.file == nil {
		return nil
	}
	flushErr := fm.buf.Flush()
	err := fm.file.Close()
	fm.file = nil
	if flushErr != nil {
		return flushErr
	}
	return err
}

// Cleanup closes and removes the file if writing is aborted
func (fm *FileManager) Cleanup() error {
	if fm.file != nil {
		fm.file.Close()
		fm.file = nil
	}
	if err := os.Remove(fm.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriterOptions configures a Writer
type WriterOptions struct {
	// Sync fsyncs the file in Finish
	Sync bool
}

// DefaultWriterOptions returns the default writer options
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{Sync: true}
}

// Writer writes an SSTable file. Entries must arrive in strictly ascending key order.
type Writer struct {
	fileManager *FileManager
	options     WriterOptions
	offsets     []int32
	dataOffset  int64
	lastKey     []byte
	header      [keyLenSize]byte
	version     [versionSize]byte
	finished    bool
}

// NewWriter creates a new SSTable writer
func NewWriter(path string) (*Writer, error) {
	return NewWriterWithOptions(path, DefaultWriterOptions())
}

// NewWriterWithOptions creates a new SSTable writer with the given options
func NewWriterWithOptions(path string, options WriterOptions) (*Writer, error) {
	fileManager, err := NewFileManager(path)
	if err != nil {
		return nil, err
	}

	return &Writer{
		fileManager: fileManager,
		options:     options,
	}, nil
}

// Add appends an entry to the table
func (w *Writer) Add(e entry.Entry) error {
	if w.finished {
		return fmt.Errorf("cannot add to finished table %s", w.fileManager.path)
	}
	if e.Version == 0 || e.Version > math.MaxInt64 {
		return fmt.Errorf("key %q version %d: %w", e.Key, e.Version, ErrInvalidVersion)
	}
	if len(w.offsets) > 0 && bytes.Compare(e.Key, w.lastKey) <= 0 {
		return fmt.Errorf("key %q after %q: %w", e.Key, w.lastKey, ErrOutOfOrder)
	}

	recordLen := int64(recordHeaderSize + len(e.Key))
	if !e.IsTombstone() {
		recordLen += int64(len(e.Value))
	}
	if w.dataOffset+recordLen > math.MaxInt32 {
		return fmt.Errorf("record at offset %d: %w", w.dataOffset, ErrTableTooLarge)
	}

	version := int64(e.Version)
	if e.IsTombstone() {
		version = -version
	}

	binary.LittleEndian.PutUint32(w.header[:], uint32(len(e.Key)))
	binary.LittleEndian.PutUint64(w.version[:], uint64(version))

	if _, err := w.fileManager.Write(w.header[:]); err != nil {
		return fmt.Errorf("failed to write key length: %w", err)
	}
	if _, err := w.fileManager.Write(e.Key); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	if _, err := w.fileManager.Write(w.version[:]); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	if !e.IsTombstone() {
		if _, err := w.fileManager.Write(e.Value); err != nil {
			return fmt.Errorf("failed to write value: %w", err)
		}
	}

	w.offsets = append(w.offsets, int32(w.dataOffset))
	w.dataOffset += recordLen
	w.lastKey = append(w.lastKey[:0], e.Key...)
	return nil
}

// Count returns the number of entries added so far
func (w *Writer) Count() int {
	return len(w.offsets)
}

// Finish writes the offset trailer, syncs and closes the file
func (w *Writer) Finish() error {
	if w.finished {
		return fmt.Errorf("table %s already finished", w.fileManager.path)
	}
	w.finished = true

	trailer := make([]byte, offsetSize*(len(w.offsets)+1))
	for i, off := range w.offsets {
		binary.LittleEndian.PutUint32(trailer[i*offsetSize:], uint32(off))
	}
	binary.LittleEndian.PutUint32(trailer[len(w.offsets)*offsetSize:], uint32(len(w.offsets)))

	if _, err := w.fileManager.Write(trailer); err != nil {
		w.fileManager.Close()
		return fmt.Errorf("failed to write trailer: %w", err)
	}

	if w.options.Sync {
		if err := w.fileManager.Sync(); err != nil {
			w.fileManager.Close()
			return fmt.Errorf("failed to sync table: %w", err)
		}
	}

	if err := w.fileManager.Close(); err != nil {
		return fmt.Errorf("failed to close table: %w", err)
	}
	return nil
}

// Abort closes the writer and removes the partial file
func (w *Writer) Abort() error {
	w.finished = true
	return w.fileManager.Cleanup()
}

// WriteAll drains it into a new table at path and returns the number of entries
// written. The file is removed if anything fails.
func WriteAll(path string, it iterator.Iterator, options WriterOptions) (int, error) {
	w, err := NewWriterWithOptions(path, options)
	if err != nil {
		return 0, err
	}

	for ; it.Valid(); it.Next() {
		if err := w.Add(iterator.Current(it)); err != nil {
			w.Abort()
			return 0, err
		}
	}
	if err := it.Error(); err != nil {
		w.Abort()
		return 0, fmt.Errorf("source iterator failed: %w", err)
	}

	if err := w.Finish(); err != nil {
		w.fileManager.Cleanup()
		return 0, err
	}
	return w.Count(), nil
}
