package main

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/KevoDB/strata/pkg/engine"
)

// Options configures a benchmark run
type Options struct {
	NumKeys    int
	ValueSize  int
	ScanSize   int
	Duration   time.Duration
	Sequential bool
}

type bench struct {
	db    *engine.DB
	opts  Options
	rng   *rand.Rand
	value []byte

	// keys written by prepare, reused across read benchmarks
	keys [][]byte
	// counter keeps generated keys unique across benchmarks
	counter int
}

func newBench(db *engine.DB, opts Options) *bench {
	value := make([]byte, opts.ValueSize)
	for i := range value {
		value[i] = byte(i % 256)
	}
	return &bench{
		db:    db,
		opts:  opts,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		value: value,
	}
}

var benchmarks = map[string]func(*bench) (BenchmarkResult, error){
	"write":      (*bench).runWrite,
	"read":       (*bench).runRead,
	"scan":       (*bench).runScan,
	"range-scan": (*bench).runRangeScan,
	"mixed":      (*bench).runMixed,
	"compaction": (*bench).runCompaction,
}

var benchmarkOrder = []string{"write", "read", "scan", "range-scan", "mixed", "compaction"}

func (b *bench) keyMode() string {
	if b.opts.Sequential {
		return "Sequential"
	}
	return "Random"
}

// generateKey returns a fresh key; random keys carry the counter to stay unique
func (b *bench) generateKey() []byte {
	b.counter++
	if b.opts.Sequential {
		return []byte(fmt.Sprintf("key-%010d", b.counter))
	}
	return []byte(fmt.Sprintf("key-%s-%010d", strconv.FormatUint(b.rng.Uint64(), 16), b.counter))
}

func (b *bench) newResult(typ string) BenchmarkResult {
	return BenchmarkResult{
		BenchmarkType: typ,
		NumKeys:       b.opts.NumKeys,
		ValueSize:     b.opts.ValueSize,
		Mode:          b.keyMode(),
		Status:        "COMPLETED SUCCESSFULLY",
		Timestamp:     time.Now(),
	}
}

// prepare makes sure at least NumKeys keys have been written
func (b *bench) prepare() error {
	for len(b.keys) < b.opts.NumKeys {
		key := b.generateKey()
		if err := b.db.Put(key, b.value); err != nil {
			return fmt.Errorf("error preparing data: %w", err)
		}
		b.keys = append(b.keys, key)
	}
	return nil
}

func (b *bench) randomKey() []byte {
	return b.keys[b.rng.Intn(len(b.keys))]
}

func (b *bench) runWrite() (BenchmarkResult, error) {
	result := b.newResult("Write")

	start := time.Now()
	deadline := start.Add(b.opts.Duration)
	ops := 0
	for time.Now().Before(deadline) {
		key := b.generateKey()
		if err := b.db.Put(key, b.value); err != nil {
			return result, fmt.Errorf("write error (key #%d): %w", ops, err)
		}
		b.keys = append(b.keys, key)
		ops++
	}

	result.finish(ops, time.Since(start))
	result.BytesPerSec = float64(ops*b.opts.ValueSize) / result.Duration
	return result, nil
}

func (b *bench) runRead() (BenchmarkResult, error) {
	result := b.newResult("Read")
	if err := b.prepare(); err != nil {
		return result, err
	}

	start := time.Now()
	deadline := start.Add(b.opts.Duration)
	ops, hits := 0, 0
	for time.Now().Before(deadline) {
		// One in ten lookups targets a key that was never written
		var key []byte
		if ops%10 == 9 {
			key = []byte(fmt.Sprintf("missing-%d", ops))
		} else {
			key = b.randomKey()
		}

		_, err := b.db.Get(key)
		switch {
		case err == nil:
			hits++
		case !errors.Is(err, engine.ErrKeyNotFound):
			return result, fmt.Errorf("read error: %w", err)
		}
		ops++
	}

	result.finish(ops, time.Since(start))
	if ops > 0 {
		result.HitRate = float64(hits) / float64(ops) * 100
	}
	return result, nil
}

func (b *bench) runScan() (BenchmarkResult, error) {
	result := b.newResult("Scan")
	if err := b.prepare(); err != nil {
		return result, err
	}

	start := time.Now()
	deadline := start.Add(b.opts.Duration)
	scans, entries := 0, 0
	for time.Now().Before(deadline) {
		n, err := b.drain(b.db.Scan(nil), 0)
		if err != nil {
			return result, err
		}
		entries += n
		scans++
	}

	result.finish(scans, time.Since(start))
	result.EntriesPerSec = float64(entries) / result.Duration
	return result, nil
}

func (b *bench) runRangeScan() (BenchmarkResult, error) {
	result := b.newResult("Range Scan")
	if err := b.prepare(); err != nil {
		return result, err
	}

	start := time.Now()
	deadline := start.Add(b.opts.Duration)
	scans, entries := 0, 0
	for time.Now().Before(deadline) {
		n, err := b.drain(b.db.Scan(b.randomKey()), b.opts.ScanSize)
		if err != nil {
			return result, err
		}
		entries += n
		scans++
	}

	result.finish(scans, time.Since(start))
	result.EntriesPerSec = float64(entries) / result.Duration
	return result, nil
}

// drain reads up to limit entries, or all of them when limit is zero
func (b *bench) drain(it *engine.DBIterator, limit int) (int, error) {
	defer it.Close()
	n := 0
	for ; it.Valid() && (limit == 0 || n < limit); it.Next() {
		_ = it.Value()
		n++
	}
	if err := it.Error(); err != nil {
		return n, fmt.Errorf("scan error: %w", err)
	}
	return n, nil
}

func (b *bench) runMixed() (BenchmarkResult, error) {
	result := b.newResult("Mixed")
	result.ReadRatio, result.WriteRatio = 75, 25
	if err := b.prepare(); err != nil {
		return result, err
	}

	start := time.Now()
	deadline := start.Add(b.opts.Duration)
	ops, reads, hits := 0, 0, 0
	for time.Now().Before(deadline) {
		if b.rng.Intn(100) < 75 {
			_, err := b.db.Get(b.randomKey())
			switch {
			case err == nil:
				hits++
			case !errors.Is(err, engine.ErrKeyNotFound):
				return result, fmt.Errorf("read error: %w", err)
			}
			reads++
		} else {
			key := b.generateKey()
			if err := b.db.Put(key, b.value); err != nil {
				return result, fmt.Errorf("write error: %w", err)
			}
			b.keys = append(b.keys, key)
		}
		ops++
	}

	result.finish(ops, time.Since(start))
	if reads > 0 {
		result.HitRate = float64(hits) / float64(reads) * 100
	}
	return result, nil
}

// runCompaction spreads NumKeys writes over several flushed tables, overwriting
// and deleting a share of them, then times a full compaction
func (b *bench) runCompaction() (BenchmarkResult, error) {
	result := b.newResult("Compaction")
	if err := b.prepare(); err != nil {
		return result, err
	}

	const rounds = 4
	for round := 0; round < rounds; round++ {
		for i := round; i < len(b.keys); i += rounds * 2 {
			if i%3 == 0 {
				if err := b.db.Delete(b.keys[i]); err != nil {
					return result, fmt.Errorf("delete error: %w", err)
				}
			} else if err := b.db.Put(b.keys[i], b.value); err != nil {
				return result, fmt.Errorf("write error: %w", err)
			}
		}
		if err := b.db.Flush(); err != nil {
			return result, fmt.Errorf("flush error: %w", err)
		}
	}

	tables := len(b.db.Generations())
	start := time.Now()
	if err := b.db.Compact(); err != nil {
		return result, fmt.Errorf("compaction error: %w", err)
	}
	elapsed := time.Since(start)

	result.finish(tables, elapsed)
	result.Tables = tables
	if bytes, ok := b.db.Stats()["engine_table_bytes"].(int64); ok {
		result.BytesPerSec = float64(bytes) / result.Duration
	}
	return result, nil
}
