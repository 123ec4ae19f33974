// ABOUTME: Tests for the OpenTelemetry-backed provider using an in-memory reader and span exporter
// ABOUTME: Validates provider creation, recorded metric values, spans, and configuration errors

package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*TelemetryProvider, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewInMemoryExporter()
	p := newProvider(DefaultConfig(), reader, sdktrace.WithSyncer(spans))
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p, reader, spans
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestProviderRecordsCounters(t *testing.T) {
	p, reader, _ := newTestProvider(t)
	ctx := context.Background()

	p.RecordCounter(ctx, "strata.test.counter", 3, attribute.String(AttrOperationType, OpTypePut))
	p.RecordCounter(ctx, "strata.test.counter", 4, attribute.String(AttrOperationType, OpTypePut))

	data, ok := collect(t, reader)["strata.test.counter"]
	if !ok {
		t.Fatalf("counter was not exported")
	}
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected int64 sum, got %T", data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 7 {
		t.Errorf("expected a single data point of 7, got %+v", sum.DataPoints)
	}
}

func TestProviderRecordsHistograms(t *testing.T) {
	p, reader, _ := newTestProvider(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p.RecordHistogram(ctx, "strata.test.duration", float64(i))
	}

	data, ok := collect(t, reader)["strata.test.duration"]
	if !ok {
		t.Fatalf("histogram was not exported")
	}
	hist, ok := data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected float64 histogram, got %T", data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 5 {
		t.Errorf("expected 5 samples, got %+v", hist.DataPoints)
	}
}

func TestProviderSpans(t *testing.T) {
	p, _, spans := newTestProvider(t)

	_, span := p.StartSpan(context.Background(), "engine.flush", attribute.Int(AttrTableID, 3))
	span.End()

	got := spans.GetSpans()
	if len(got) != 1 || got[0].Name != "engine.flush" {
		t.Fatalf("expected one engine.flush span, got %v", got)
	}
}

func TestNew(t *testing.T) {
	tel, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error for disabled config: %v", err)
	}
	if _, ok := tel.(*NoopTelemetry); !ok {
		t.Errorf("expected no-op telemetry when disabled, got %T", tel)
	}

	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &out
	tel, err = New(cfg)
	if err != nil {
		t.Fatalf("unexpected error with default config: %v", err)
	}
	if _, ok := tel.(*TelemetryProvider); !ok {
		t.Fatalf("expected SDK provider, got %T", tel)
	}

	ctx := context.Background()
	tel.RecordCounter(ctx, "strata.test.counter", 1)
	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
	if out.Len() == 0 {
		t.Errorf("expected stdout exporter to write on shutdown")
	}
}

func TestNewWithInvalidConfigs(t *testing.T) {
	invalidConfigs := []func(*Config){
		func(c *Config) { c.ServiceName = "" },
		func(c *Config) { c.ServiceVersion = "" },
		func(c *Config) { c.SampleRate = -0.1 },
		func(c *Config) { c.SampleRate = 1.1 },
		func(c *Config) { c.ExportInterval = 0 },
		func(c *Config) { c.Exporters = []string{"jaeger"} },
	}

	for i, mutate := range invalidConfigs {
		t.Run(fmt.Sprintf("invalid_config_%d", i), func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)

			tel, err := New(cfg)
			if err == nil {
				t.Error("Expected error for invalid config but got none")
			}
			if tel != nil {
				t.Error("Expected nil telemetry for invalid config but got instance")
			}
		})
	}
}
