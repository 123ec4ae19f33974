// ABOUTME: Tests for telemetry configuration validation, environment variable loading, and default values
// ABOUTME: Ensures configuration behaves correctly with valid and invalid inputs

package telemetry

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "strata" {
		t.Errorf("Expected default service name 'strata', got '%s'", cfg.ServiceName)
	}
	if !cfg.Enabled {
		t.Error("Expected telemetry to be enabled by default")
	}
	if !cfg.HasExporter("stdout") || cfg.HasExporter("otlp") {
		t.Errorf("Expected default exporters ['stdout'], got %v", cfg.Exporters)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STRATA_TELEMETRY_SERVICE_NAME", "env-service")
	t.Setenv("STRATA_TELEMETRY_ENABLED", "false")
	t.Setenv("STRATA_TELEMETRY_EXPORTERS", " stdout , stdout")
	t.Setenv("STRATA_TELEMETRY_SAMPLE_RATE", "0.25")
	t.Setenv("STRATA_TELEMETRY_EXPORT_INTERVAL", "5s")
	t.Setenv("STRATA_TELEMETRY_EXPORT_TIMEOUT", "not-a-duration")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	if cfg.ServiceName != "env-service" {
		t.Errorf("Expected service name from env, got %s", cfg.ServiceName)
	}
	if cfg.Enabled {
		t.Errorf("Expected telemetry disabled from env")
	}
	if len(cfg.Exporters) != 2 || cfg.Exporters[0] != "stdout" {
		t.Errorf("Expected trimmed exporters, got %v", cfg.Exporters)
	}
	if cfg.SampleRate != 0.25 {
		t.Errorf("Expected sample rate 0.25, got %f", cfg.SampleRate)
	}
	if cfg.ExportInterval != 5*time.Second {
		t.Errorf("Expected export interval 5s, got %s", cfg.ExportInterval)
	}
	if cfg.ExportTimeout != DefaultConfig().ExportTimeout {
		t.Errorf("Expected invalid timeout to be ignored, got %s", cfg.ExportTimeout)
	}
}
