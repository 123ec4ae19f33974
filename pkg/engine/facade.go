package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevoDB/strata/pkg/common/iterator"
	"github.com/KevoDB/strata/pkg/common/iterator/bounded"
	"github.com/KevoDB/strata/pkg/common/iterator/filtered"
	"github.com/KevoDB/strata/pkg/common/log"
	"github.com/KevoDB/strata/pkg/config"
	"github.com/KevoDB/strata/pkg/stats"
	"github.com/KevoDB/strata/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type facadeOptions struct {
	tel       telemetry.Telemetry
	collector stats.Collector
}

// WithTelemetry sets the telemetry used by DB for metrics and spans
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(o *options) {
		o.facade.tel = tel
	}
}

// WithStatsCollector sets the collector DB reports operations to
func WithStatsCollector(collector stats.Collector) Option {
	return func(o *options) {
		o.facade.collector = collector
	}
}

// DB makes an Engine safe for concurrent use. Writes, flushes and compactions
// are serialized; iterators take the read lock for each step.
type DB struct {
	mu     sync.RWMutex
	engine *Engine

	stats   stats.Collector
	tel     telemetry.Telemetry
	metrics EngineMetrics
	logger  log.Logger
}

// OpenDB opens the engine described by cfg behind a DB
func OpenDB(cfg *config.Config, opts ...Option) (*DB, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	db := &DB{
		stats:  o.facade.collector,
		tel:    o.facade.tel,
		logger: o.logger,
	}
	if db.stats == nil {
		db.stats = stats.NewAtomicCollector()
	}
	if db.tel == nil {
		db.tel = telemetry.NewNoop()
	}
	if db.logger == nil {
		db.logger = log.GetDefaultLogger()
	}
	db.metrics = NewEngineMetrics(db.tel)

	userFlush, userCompaction := o.onFlush, o.onCompaction
	engineOpts := append(opts[:len(opts):len(opts)],
		WithLogger(db.logger),
		WithFlushListener(func(info FlushInfo) {
			db.onFlush(info)
			if userFlush != nil {
				userFlush(info)
			}
		}),
		WithCompactionListener(func(info CompactionInfo) {
			db.onCompaction(info)
			if userCompaction != nil {
				userCompaction(info)
			}
		}),
	)

	ctx, span := db.tel.StartSpan(context.Background(), "engine.open")
	defer span.End()

	openStart := db.stats.StartOpen()
	e, err := Open(cfg, engineOpts...)
	if err != nil {
		db.stats.TrackError("open_error")
		db.metrics.RecordError(ctx, "open_error", telemetry.ComponentEngine)
		failSpan(span, err)
		return nil, err
	}
	db.engine = e

	info := e.OpenInfo()
	db.stats.FinishOpen(openStart, uint64(info.TablesOpened), uint64(info.TempFilesRemoved), info.MaxVersion)
	db.metrics.RecordStartupMetrics(ctx, info)
	span.SetAttributes(
		attribute.Int("tables", info.TablesOpened),
		attribute.Int64("max_version", int64(info.MaxVersion)),
	)

	return db, nil
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// onFlush runs under the write lock of the call that triggered the flush
func (db *DB) onFlush(info FlushInfo) {
	ctx := context.Background()
	db.metrics.RecordFlush(ctx, info)
	if info.Err != nil {
		db.stats.TrackError("flush_error")
		db.metrics.RecordError(ctx, "flush_error", telemetry.ComponentMemTable)
		return
	}
	db.stats.TrackFlush(uint64(info.Entries))
	db.stats.TrackOperationWithLatency(stats.OpFlush, info.Duration)
}

func (db *DB) onCompaction(info CompactionInfo) {
	ctx := context.Background()
	db.metrics.RecordCompaction(ctx, info)
	if info.Err != nil {
		db.stats.TrackError("compaction_error")
		db.metrics.RecordError(ctx, "compaction_error", telemetry.ComponentSSTable)
		return
	}
	db.stats.TrackCompaction(uint64(info.TablesMerged), uint64(info.EntriesKept))
	db.stats.TrackOperationWithLatency(stats.OpCompact, info.Duration)
}

// track records the latency and outcome of a public operation
func (db *DB) track(op stats.OperationType, start time.Time, err error) {
	latency := time.Since(start)
	db.stats.TrackOperationWithLatency(op, latency)
	db.metrics.RecordEngineOperation(context.Background(), string(op), latency, err)
}

// Put adds a key-value pair to the database
func (db *DB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	start := time.Now()
	err := db.engine.Put(key, value)
	db.track(stats.OpPut, start, err)

	if err == nil {
		db.stats.TrackBytes(true, uint64(len(key)+len(value)))
	} else {
		db.stats.TrackError("put_error")
	}
	db.stats.TrackMemTableSize(uint64(db.engine.MemTableSize()))

	return err
}

// Delete removes a key from the database
func (db *DB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	start := time.Now()
	err := db.engine.Delete(key)
	db.track(stats.OpDelete, start, err)

	if err == nil {
		db.stats.TrackBytes(true, uint64(len(key)))
	} else {
		db.stats.TrackError("delete_error")
	}
	db.stats.TrackMemTableSize(uint64(db.engine.MemTableSize()))

	return err
}

// Get retrieves the value for the given key
func (db *DB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	start := time.Now()
	value, err := db.engine.Get(key)
	db.track(stats.OpGet, start, err)

	if err == nil {
		db.stats.TrackBytes(false, uint64(len(key)+len(value)))
	} else if !errors.Is(err, ErrKeyNotFound) {
		db.stats.TrackError("get_error")
	}

	return value, err
}

// Scan returns an iterator over every live key >= from
func (db *DB) Scan(from []byte) *DBIterator {
	return db.newIterator(stats.OpScan, from, func(it iterator.Iterator) iterator.Iterator {
		return it
	})
}

// ScanRange returns an iterator over the live keys in [from, to). A nil to
// leaves the range open at the top.
func (db *DB) ScanRange(from, to []byte) *DBIterator {
	return db.newIterator(stats.OpScanRange, from, func(it iterator.Iterator) iterator.Iterator {
		return bounded.NewBoundedIterator(it, to)
	})
}

// ScanPrefix returns an iterator over the live keys starting with prefix
func (db *DB) ScanPrefix(prefix []byte) *DBIterator {
	return db.newIterator(stats.OpScanRange, prefix, func(it iterator.Iterator) iterator.Iterator {
		return filtered.NewPrefixIterator(bounded.NewBoundedIterator(it, prefixEnd(prefix)), prefix)
	})
}

func (db *DB) newIterator(op stats.OperationType, from []byte, wrap func(iterator.Iterator) iterator.Iterator) *DBIterator {
	db.mu.RLock()
	defer db.mu.RUnlock()

	start := time.Now()
	base := db.engine.NewIterator(from)
	it := &DBIterator{db: db, base: base, iter: wrap(base)}
	db.track(op, start, base.Error())

	return it
}

// prefixEnd returns the smallest key greater than every key with the prefix,
// or nil when there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Flush writes the memtable to a new table
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, span := db.tel.StartSpan(context.Background(), "engine.flush",
		attribute.Int64("memtable.size", db.engine.MemTableSize()))
	defer span.End()

	if err := db.engine.Flush(); err != nil {
		failSpan(span, err)
		return err
	}
	db.stats.TrackMemTableSize(0)
	return nil
}

// Compact merges every table into one
func (db *DB) Compact() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, span := db.tel.StartSpan(context.Background(), "engine.compact",
		attribute.Int("tables", len(db.engine.Generations())))
	defer span.End()

	if err := db.engine.Compact(); err != nil {
		failSpan(span, err)
		return err
	}
	db.stats.TrackMemTableSize(0)
	return nil
}

// Close flushes buffered writes and closes the engine
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.engine.IsClosed() {
		return nil
	}

	_, span := db.tel.StartSpan(context.Background(), "engine.close")
	defer span.End()

	if err := db.engine.Close(); err != nil {
		db.stats.TrackError("close_error")
		failSpan(span, err)
		return fmt.Errorf("failed to close engine: %w", err)
	}
	return nil
}

// Generations returns the generations currently open, oldest first
func (db *DB) Generations() []uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.Generations()
}

// Dir returns the data directory
func (db *DB) Dir() string {
	return db.engine.Dir()
}

// Stats combines the engine's structure with the collected operation statistics
func (db *DB) Stats() map[string]interface{} {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := db.stats.GetStats()
	engineStats := db.engine.Stats()
	for k, v := range engineStats {
		result["engine_"+k] = v
	}

	ctx := context.Background()
	db.metrics.RecordMemTableSize(ctx, db.engine.MemTableSize())
	if n, ok := engineStats["table_count"].(int); ok {
		bytes, _ := engineStats["table_bytes"].(int64)
		db.metrics.RecordDiskUsage(ctx, n, bytes)
	}

	return result
}

// DBIterator is an Iterator that is safe to use while other goroutines write
// to the DB. Close must be called to release the tables it holds.
type DBIterator struct {
	db     *DB
	base   *Iterator
	iter   iterator.Iterator
	closed bool
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *DBIterator) Valid() bool {
	return !it.closed && it.iter.Valid()
}

// Next advances to the next key
func (it *DBIterator) Next() bool {
	if it.closed {
		return false
	}
	it.db.mu.RLock()
	defer it.db.mu.RUnlock()
	return it.iter.Next()
}

// Key returns the current key
func (it *DBIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.iter.Key()
}

// Value returns the current value
func (it *DBIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.iter.Value()
}

// Version returns the version of the current entry
func (it *DBIterator) Version() uint64 {
	if !it.Valid() {
		return 0
	}
	return it.iter.Version()
}

// IsTombstone is always false
func (it *DBIterator) IsTombstone() bool {
	return false
}

// Error returns any error met while iterating
func (it *DBIterator) Error() error {
	return it.iter.Error()
}

// Close releases the iterator's tables
func (it *DBIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.base.Close()
}
