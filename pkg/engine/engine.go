// Package engine implements the generational LSM store: a mutable memtable in
// front of a stack of immutable sorted tables, one per generation. Writes go to
// the memtable and are flushed to a new generation once it grows past the
// configured threshold. Compaction folds every generation into generation 0.
//
// Engine itself is not safe for concurrent use; DB wraps it for that.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/KevoDB/strata/pkg/common/clock"
	"github.com/KevoDB/strata/pkg/common/iterator"
	"github.com/KevoDB/strata/pkg/common/log"
	"github.com/KevoDB/strata/pkg/config"
	"github.com/KevoDB/strata/pkg/memtable"
	"github.com/KevoDB/strata/pkg/sstable"
)

// FlushInfo describes a completed or failed flush
type FlushInfo struct {
	Generation   uint64
	Entries      int
	Bytes        int64
	MemTableSize int64
	Duration     time.Duration
	Err          error
}

// CompactionInfo describes a completed or failed compaction
type CompactionInfo struct {
	TablesMerged int
	EntriesKept  int
	Bytes        int64
	Duration     time.Duration
	Err          error
}

// OpenInfo describes what the restart scan found
type OpenInfo struct {
	TablesOpened     int
	TempFilesRemoved int
	MaxVersion       uint64
	Duration         time.Duration
}

type options struct {
	logger       log.Logger
	onFlush      func(FlushInfo)
	onCompaction func(CompactionInfo)
	facade       facadeOptions
}

// Option configures an Engine or DB
type Option func(*options)

// WithLogger sets the logger used by the engine
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFlushListener registers a function called after every flush attempt
func WithFlushListener(fn func(FlushInfo)) Option {
	return func(o *options) {
		o.onFlush = fn
	}
}

// WithCompactionListener registers a function called after every compaction attempt
func WithCompactionListener(fn func(CompactionInfo)) Option {
	return func(o *options) {
		o.onCompaction = fn
	}
}

// table is an open generation
type table struct {
	gen    uint64
	reader *sstable.Reader
}

// Engine is the storage engine
type Engine struct {
	cfg    config.Config
	dir    string
	logger log.Logger

	clock    *clock.VersionClock
	memTable *memtable.MemTable
	tables   []*table // ascending generation order
	nextGen  uint64

	onFlush      func(FlushInfo)
	onCompaction func(CompactionInfo)
	openReader   func(path string) (*sstable.Reader, error)

	openInfo OpenInfo
	closed   atomic.Bool
}

// Open opens or creates the store in cfg.Dir. Leftover temporary files from an
// interrupted flush or compaction are removed; any corrupt table fails the open.
func Open(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.GetDefaultLogger()
	}

	e := &Engine{
		cfg:          cfg.Snapshot(),
		onFlush:      o.onFlush,
		onCompaction: o.onCompaction,
	}
	e.dir = e.cfg.Dir
	e.logger = o.logger.WithField("component", "engine")
	e.openReader = e.openTableFile

	start := time.Now()
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	files, temps, err := scanDir(e.dir)
	if err != nil {
		return nil, err
	}

	for _, path := range temps {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove temporary file %s: %w", path, err)
		}
		e.logger.Warn("Removed leftover temporary file %s", path)
	}

	var maxVersion uint64
	for _, f := range files {
		reader, err := e.openTable(f.path)
		if err != nil {
			e.closeTables()
			return nil, fmt.Errorf("failed to open table %s: %w", f.path, err)
		}
		e.tables = append(e.tables, &table{gen: f.gen, reader: reader})
		if v := reader.MaxVersion(); v > maxVersion {
			maxVersion = v
		}
	}

	if n := len(e.tables); n > 0 {
		e.nextGen = e.tables[n-1].gen + 1
	}
	e.clock = clock.NewVersionClock(maxVersion)
	e.memTable = memtable.NewMemTable(e.clock)

	e.openInfo = OpenInfo{
		TablesOpened:     len(e.tables),
		TempFilesRemoved: len(temps),
		MaxVersion:       maxVersion,
		Duration:         time.Since(start),
	}

	e.logger.WithFields(map[string]interface{}{
		"tables":      len(e.tables),
		"next_gen":    e.nextGen,
		"max_version": maxVersion,
	}).Info("Opened store at %s", e.dir)

	return e, nil
}

// Put stores value under key. When the write pushes the memtable past the
// flush threshold the memtable is flushed before Put returns; a flush error is
// returned but the write itself stays in memory.
func (e *Engine) Put(key, value []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	size := e.memTable.Put(key, value)
	return e.maybeFlush(size)
}

// Delete writes a deletion marker for key
func (e *Engine) Delete(key []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	size := e.memTable.Delete(key)
	return e.maybeFlush(size)
}

func (e *Engine) maybeFlush(size int64) error {
	if size < e.cfg.FlushThresholdBytes {
		return nil
	}
	return e.flush()
}

// Get returns the newest value stored for key
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	if ent, ok := e.memTable.Lookup(key); ok {
		if ent.IsTombstone() {
			return nil, ErrKeyNotFound
		}
		return ent.Value, nil
	}

	for i := len(e.tables) - 1; i >= 0; i-- {
		ent, found, err := e.tables[i].reader.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to read generation %d: %w", e.tables[i].gen, err)
		}
		if !found {
			continue
		}
		if ent.IsTombstone() {
			return nil, ErrKeyNotFound
		}
		return ent.Value, nil
	}

	return nil, ErrKeyNotFound
}

// Flush writes the memtable to a new generation. It does nothing when the
// memtable is empty.
func (e *Engine) Flush() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.flush()
}

func (e *Engine) flush() error {
	mem := e.memTable
	if mem.Len() == 0 {
		return nil
	}

	start := time.Now()
	gen := e.nextGen
	info := FlushInfo{Generation: gen, MemTableSize: mem.ApproximateSize()}

	mem.SetImmutable()
	reader, count, err := e.flushTo(gen, mem)
	if err != nil {
		mem.SetMutable()
		info.Err = err
		info.Duration = time.Since(start)
		e.logger.Error("Flush of generation %d failed: %v", gen, err)
		e.notifyFlush(info)
		return fmt.Errorf("failed to flush memtable: %w", err)
	}

	e.tables = append(e.tables, &table{gen: gen, reader: reader})
	e.nextGen++
	e.memTable = memtable.NewMemTable(e.clock)

	info.Entries = count
	info.Bytes = reader.FileSize()
	info.Duration = time.Since(start)
	e.logger.WithFields(map[string]interface{}{
		"generation": gen,
		"entries":    count,
		"bytes":      info.Bytes,
	}).Info("Flushed memtable in %s", info.Duration)
	e.notifyFlush(info)

	return nil
}

// writeGeneration drains it into <gen>sst.dat through a temporary file and
// returns the final path once the rename is durable. Nothing is left on disk
// when it fails.
func (e *Engine) writeGeneration(gen uint64, it iterator.Iterator) (string, int, error) {
	tmpPath := filepath.Join(e.dir, tempFileName(gen))
	datPath := filepath.Join(e.dir, tableFileName(gen))

	count, err := sstable.WriteAll(tmpPath, it, sstable.WriterOptions{Sync: e.cfg.SyncWrites})
	if err != nil {
		return "", 0, err
	}

	if err := os.Rename(tmpPath, datPath); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to rename table: %w", err)
	}
	if err := e.syncDir(); err != nil {
		os.Remove(datPath)
		return "", 0, err
	}
	return datPath, count, nil
}

func (e *Engine) openTable(path string) (*sstable.Reader, error) {
	return e.openReader(path)
}

func (e *Engine) openTableFile(path string) (*sstable.Reader, error) {
	return sstable.OpenReaderWithOptions(path, sstable.ReaderOptions{BloomBitsPerKey: e.cfg.BloomBitsPerKey})
}

func (e *Engine) flushTo(gen uint64, mem *memtable.MemTable) (*sstable.Reader, int, error) {
	path, count, err := e.writeGeneration(gen, mem.NewIterator(nil))
	if err != nil {
		return nil, 0, err
	}

	reader, err := e.openTable(path)
	if err != nil {
		os.Remove(path)
		return nil, 0, fmt.Errorf("failed to open flushed table: %w", err)
	}
	return reader, count, nil
}

func (e *Engine) syncDir() error {
	if !e.cfg.SyncWrites {
		return nil
	}
	return syncDir(e.dir)
}

func (e *Engine) notifyFlush(info FlushInfo) {
	if e.onFlush != nil {
		e.onFlush(info)
	}
}

func (e *Engine) notifyCompaction(info CompactionInfo) {
	if e.onCompaction != nil {
		e.onCompaction(info)
	}
}

// Close flushes any buffered writes and releases every table. Tables still
// referenced by open iterators stay readable until those iterators close.
func (e *Engine) Close() error {
	if e.closed.Load() {
		return nil
	}

	flushErr := e.flush()
	e.closed.Store(true)
	closeErr := e.closeTables()

	if flushErr != nil || closeErr != nil {
		return errors.Join(flushErr, closeErr)
	}
	e.logger.Info("Closed store at %s", e.dir)
	return nil
}

func (e *Engine) closeTables() error {
	var errs []error
	for _, t := range e.tables {
		if err := t.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close generation %d: %w", t.gen, err))
		}
	}
	e.tables = nil
	return errors.Join(errs...)
}

// IsClosed reports whether Close has been called
func (e *Engine) IsClosed() bool {
	return e.closed.Load()
}

// Generations returns the generations currently open, oldest first
func (e *Engine) Generations() []uint64 {
	gens := make([]uint64, len(e.tables))
	for i, t := range e.tables {
		gens[i] = t.gen
	}
	return gens
}

// NextGeneration returns the generation the next flush will write
func (e *Engine) NextGeneration() uint64 {
	return e.nextGen
}

// MemTableSize returns the accounted size of the active memtable
func (e *Engine) MemTableSize() int64 {
	return e.memTable.ApproximateSize()
}

// OpenInfo returns what the restart scan found
func (e *Engine) OpenInfo() OpenInfo {
	return e.openInfo
}

// Dir returns the data directory
func (e *Engine) Dir() string {
	return e.dir
}

// Stats returns a snapshot of the engine's structure
func (e *Engine) Stats() map[string]interface{} {
	var entries int
	var bytes int64
	for _, t := range e.tables {
		entries += t.reader.Count()
		bytes += t.reader.FileSize()
	}

	return map[string]interface{}{
		"memtable_size":    e.memTable.ApproximateSize(),
		"memtable_entries": e.memTable.Len(),
		"table_count":      len(e.tables),
		"table_entries":    entries,
		"table_bytes":      bytes,
		"generations":      e.Generations(),
		"next_generation":  e.nextGen,
		"version":          e.clock.Current(),
		"closed":           e.closed.Load(),
	}
}
