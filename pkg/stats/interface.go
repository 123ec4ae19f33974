package stats

import "time"

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector interface defines methods for collecting statistics
type Collector interface {
	Provider

	// TrackOperation records a single operation
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency
	TrackOperationWithLatency(op OperationType, latency time.Duration)

	// TrackError increments the counter for the specified error type
	TrackError(errorType string)

	// TrackBytes adds the specified number of bytes to the read or write counter
	TrackBytes(isWrite bool, bytes uint64)

	// TrackMemTableSize records the current memtable size
	TrackMemTableSize(size uint64)

	// TrackFlush records a flush that produced a table of the given number of entries
	TrackFlush(entries uint64)

	// TrackCompaction records a compaction that merged the given number of tables
	TrackCompaction(tablesMerged, entriesKept uint64)

	// StartOpen marks the beginning of the restart scan
	StartOpen() time.Time

	// FinishOpen completes the restart scan statistics
	FinishOpen(startTime time.Time, tablesOpened, tempFilesRemoved, maxVersion uint64)
}

// Ensure AtomicCollector implements the Collector interface
var _ Collector = (*AtomicCollector)(nil)
