// ABOUTME: Engine-level telemetry coordination for flush, compaction, and operation tracing
// ABOUTME: Translates engine events into strata.engine.* metrics over the telemetry interface

package engine

import (
	"context"
	"time"

	"github.com/KevoDB/strata/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// EngineMetrics defines the interface for engine-level telemetry
type EngineMetrics interface {
	// Operation tracing
	RecordEngineOperation(ctx context.Context, operation string, duration time.Duration, err error)

	// Background work
	RecordFlush(ctx context.Context, info FlushInfo)
	RecordCompaction(ctx context.Context, info CompactionInfo)

	// Resource monitoring
	RecordMemTableSize(ctx context.Context, bytes int64)
	RecordDiskUsage(ctx context.Context, tables int, bytes int64)

	// Startup
	RecordStartupMetrics(ctx context.Context, info OpenInfo)

	// Error tracking
	RecordError(ctx context.Context, errorType, component string)

	Close() error
}

// engineMetrics implements EngineMetrics using the telemetry interface
type engineMetrics struct {
	tel telemetry.Telemetry
}

// NewEngineMetrics creates a new EngineMetrics instance
func NewEngineMetrics(tel telemetry.Telemetry) EngineMetrics {
	if tel == nil {
		return NewNoopEngineMetrics()
	}
	return &engineMetrics{tel: tel}
}

// NewNoopEngineMetrics creates a no-op EngineMetrics for testing or when telemetry is disabled
func NewNoopEngineMetrics() EngineMetrics {
	return &noopEngineMetrics{}
}

// recoverTelemetry keeps a misbehaving exporter from taking the engine down
func recoverTelemetry() {
	_ = recover()
}

// RecordEngineOperation records the duration and outcome of a public operation
func (m *engineMetrics) RecordEngineOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	defer recoverTelemetry()

	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrOperationType, operation),
		attribute.String(telemetry.AttrStatus, telemetry.StatusOf(err)),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
	}
	m.tel.RecordHistogram(ctx, "strata.engine.operation.duration", duration.Seconds(), attrs...)
	m.tel.RecordCounter(ctx, "strata.engine.operation.count", 1, attrs...)
}

// RecordFlush records a memtable flush
func (m *engineMetrics) RecordFlush(ctx context.Context, info FlushInfo) {
	defer recoverTelemetry()

	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrStatus, telemetry.StatusOf(info.Err)),
	}
	m.tel.RecordHistogram(ctx, "strata.engine.flush.duration", info.Duration.Seconds(), attrs...)
	if info.Err != nil {
		return
	}

	attrs = append(attrs, attribute.Int64(telemetry.AttrTableID, int64(info.Generation)))
	m.tel.RecordCounter(ctx, "strata.engine.flush.entries", int64(info.Entries), attrs...)
	m.tel.RecordCounter(ctx, "strata.engine.flush.bytes", info.Bytes, attrs...)
}

// RecordCompaction records a full compaction
func (m *engineMetrics) RecordCompaction(ctx context.Context, info CompactionInfo) {
	defer recoverTelemetry()

	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSSTable),
		attribute.String(telemetry.AttrStatus, telemetry.StatusOf(info.Err)),
	}
	m.tel.RecordHistogram(ctx, "strata.engine.compaction.duration", info.Duration.Seconds(), attrs...)
	if info.Err != nil {
		return
	}

	m.tel.RecordCounter(ctx, "strata.engine.compaction.tables_merged", int64(info.TablesMerged), attrs...)
	m.tel.RecordCounter(ctx, "strata.engine.compaction.entries_kept", int64(info.EntriesKept), attrs...)
	m.tel.RecordCounter(ctx, "strata.engine.compaction.bytes", info.Bytes, attrs...)
}

// RecordMemTableSize records the accounted size of the active memtable
func (m *engineMetrics) RecordMemTableSize(ctx context.Context, bytes int64) {
	defer recoverTelemetry()

	m.tel.RecordHistogram(ctx, "strata.engine.memtable.size.bytes", float64(bytes),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable))
}

// RecordDiskUsage records the number and total size of the open tables
func (m *engineMetrics) RecordDiskUsage(ctx context.Context, tables int, bytes int64) {
	defer recoverTelemetry()

	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSSTable),
	}
	m.tel.RecordHistogram(ctx, "strata.engine.tables.count", float64(tables), attrs...)
	m.tel.RecordHistogram(ctx, "strata.engine.tables.bytes", float64(bytes), attrs...)
}

// RecordStartupMetrics records what the restart scan found
func (m *engineMetrics) RecordStartupMetrics(ctx context.Context, info OpenInfo) {
	defer recoverTelemetry()

	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeOpen),
	}
	m.tel.RecordHistogram(ctx, "strata.engine.startup.duration", info.Duration.Seconds(), attrs...)
	m.tel.RecordCounter(ctx, "strata.engine.startup.tables", int64(info.TablesOpened), attrs...)
	if info.TempFilesRemoved > 0 {
		m.tel.RecordCounter(ctx, "strata.engine.startup.temp_files_removed", int64(info.TempFilesRemoved), attrs...)
	}
}

// RecordError records engine errors with categorization
func (m *engineMetrics) RecordError(ctx context.Context, errorType, component string) {
	defer recoverTelemetry()

	m.tel.RecordCounter(ctx, "strata.engine.errors.total", 1,
		attribute.String(telemetry.AttrErrorType, errorType),
		attribute.String(telemetry.AttrComponent, component))
}

// Close is a no-op: the telemetry instance belongs to the caller
func (m *engineMetrics) Close() error {
	return nil
}

// noopEngineMetrics provides a no-op implementation for testing or disabled telemetry
type noopEngineMetrics struct{}

func (n *noopEngineMetrics) RecordEngineOperation(ctx context.Context, operation string, duration time.Duration, err error) {
}
func (n *noopEngineMetrics) RecordFlush(ctx context.Context, info FlushInfo)              {}
func (n *noopEngineMetrics) RecordCompaction(ctx context.Context, info CompactionInfo)    {}
func (n *noopEngineMetrics) RecordMemTableSize(ctx context.Context, bytes int64)          {}
func (n *noopEngineMetrics) RecordDiskUsage(ctx context.Context, tables int, bytes int64) {}
func (n *noopEngineMetrics) RecordStartupMetrics(ctx context.Context, info OpenInfo)      {}
func (n *noopEngineMetrics) RecordError(ctx context.Context, errorType, component string) {}
func (n *noopEngineMetrics) Close() error                                                 { return nil }
