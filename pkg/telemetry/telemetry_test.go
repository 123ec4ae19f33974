// ABOUTME: Tests for the core telemetry interface and the no-op implementation
// ABOUTME: Validates recording helpers, span creation, and lifecycle on disabled telemetry

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestNoopTelemetry(t *testing.T) {
	tel := NewNoop()
	ctx := context.Background()

	tel.RecordHistogram(ctx, "test.histogram", 1.5, attribute.String("key", "value"))
	tel.RecordCounter(ctx, "test.counter", 10, attribute.String("key", "value"))

	spanCtx, span := tel.StartSpan(ctx, "test.span", attribute.String("test", "value"))
	if spanCtx == nil {
		t.Error("StartSpan returned nil context")
	}
	if span == nil {
		t.Error("StartSpan returned nil span")
	}
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
}

func TestRecordHelpers(t *testing.T) {
	tel := NewNoop()
	ctx := context.Background()
	start := time.Now()

	RecordDuration(ctx, tel, "test.duration", start, attribute.String("op", "test"))
	RecordBytes(ctx, tel, "test.bytes", 1024, attribute.String("op", "test"))
}

func TestStatusOf(t *testing.T) {
	if StatusOf(nil) != StatusSuccess {
		t.Errorf("expected success status for nil error")
	}
	if StatusOf(errors.New("boom")) != StatusError {
		t.Errorf("expected error status for non-nil error")
	}
}
