package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KevoDB/strata/pkg/common/iterator/filtered"
	"github.com/KevoDB/strata/pkg/memtable"
)

// Compact merges the memtable and every generation into a single table holding
// only live keys, which becomes generation 0. The merged table is made durable
// under a fresh generation before any older file is removed.
func (e *Engine) Compact() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	start := time.Now()
	info := CompactionInfo{TablesMerged: len(e.tables)}

	err := e.compact(&info)
	info.Duration = time.Since(start)
	info.Err = err
	e.notifyCompaction(info)

	if err != nil {
		e.logger.Error("Compaction failed: %v", err)
		return fmt.Errorf("compaction failed: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"tables_merged": info.TablesMerged,
		"entries":       info.EntriesKept,
		"bytes":         info.Bytes,
	}).Info("Compacted store in %s", info.Duration)
	return nil
}

func (e *Engine) compact(info *CompactionInfo) error {
	gen := e.nextGen
	mem := e.memTable
	mem.SetImmutable()

	path, count, err := e.writeGeneration(gen, filtered.NewLiveIterator(e.mergedSources(nil)))
	if err != nil {
		mem.SetMutable()
		return err
	}

	// From here on the merged table holds everything; the old files are redundant.
	old := e.tables
	e.tables = nil
	e.memTable = memtable.NewMemTable(e.clock)

	// Oldest first: at any crash point the surviving old files are the newest
	// ones, so no surviving value outlives the deletion marker that shadowed it.
	for i, t := range old {
		if err := os.Remove(t.reader.FilePath()); err != nil && !os.IsNotExist(err) {
			e.recoverTables(old[i:], path, gen)
			return fmt.Errorf("failed to remove generation %d: %w", t.gen, err)
		}
		t.reader.Close()
	}

	finalPath := filepath.Join(e.dir, tableFileName(0))
	if path != finalPath {
		if err := os.Rename(path, finalPath); err != nil {
			e.recoverTables(nil, path, gen)
			return fmt.Errorf("failed to rename compacted table: %w", err)
		}
	}
	if err := e.syncDir(); err != nil {
		e.recoverTables(nil, finalPath, 0)
		return err
	}

	reader, err := e.openTable(finalPath)
	if err != nil {
		e.halt(finalPath, err)
		return fmt.Errorf("failed to open compacted table: %w", err)
	}

	e.tables = []*table{{gen: 0, reader: reader}}
	e.nextGen = 1

	info.EntriesKept = count
	info.Bytes = reader.FileSize()
	return nil
}

// recoverTables rebuilds the table list after compaction stopped part way
// through replacing files: the old tables still on disk plus the merged one.
// When the merged table cannot be reopened the engine halts.
func (e *Engine) recoverTables(remaining []*table, path string, gen uint64) {
	e.tables = append([]*table(nil), remaining...)

	reader, err := e.openTable(path)
	if err != nil {
		e.halt(path, err)
		return
	}
	e.tables = append(e.tables, &table{gen: gen, reader: reader})
	if gen >= e.nextGen {
		e.nextGen = gen + 1
	}
}

// halt closes the engine when the merged table holding the compacted data
// cannot be opened. Every operation then fails with ErrEngineClosed; the data
// is on disk and a fresh Open serves it again.
func (e *Engine) halt(path string, err error) {
	e.logger.Error("Failed to open compacted table %s, closing store: %v", path, err)
	e.closed.Store(true)
	if cerr := e.closeTables(); cerr != nil {
		e.logger.Warn("Failed to release tables: %v", cerr)
	}
}
