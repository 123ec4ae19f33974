package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevoDB/strata/pkg/common/log"
	"github.com/KevoDB/strata/pkg/config"
	"github.com/KevoDB/strata/pkg/engine"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.NewDefaultConfig(dir)
	cfg.SyncWrites = false

	opts := []engine.Option{engine.WithLogger(log.NewStandardLogger(log.WithOutput(io.Discard)))}
	db, err := engine.OpenDB(cfg, opts...)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	var out bytes.Buffer
	s := newShell(db, cfg, opts, &out)
	t.Cleanup(func() { s.closeDB() })
	return s, &out
}

// run executes each line and returns the output of the last one
func run(t *testing.T, s *shell, out *bytes.Buffer, lines ...string) string {
	t.Helper()
	for _, line := range lines {
		out.Reset()
		if s.execute(line) {
			t.Fatalf("Unexpected exit on %q", line)
		}
	}
	return out.String()
}

func TestShell_PutGetDelete(t *testing.T) {
	s, out := newTestShell(t)

	if got := run(t, s, out, "PUT greeting hello there"); got != "Value stored\n" {
		t.Errorf("Unexpected PUT output: %q", got)
	}
	if got := run(t, s, out, "get greeting"); got != "hello there\n" {
		t.Errorf("Unexpected GET output: %q", got)
	}
	if got := run(t, s, out, "DELETE greeting"); got != "Key deleted\n" {
		t.Errorf("Unexpected DELETE output: %q", got)
	}
	if got := run(t, s, out, "GET greeting"); got != "Key not found\n" {
		t.Errorf("Unexpected GET output after delete: %q", got)
	}
}

func TestShell_ArgumentErrors(t *testing.T) {
	s, out := newTestShell(t)

	tests := []struct {
		line string
		want string
	}{
		{"PUT onlykey", "Error: PUT requires key and value arguments\n"},
		{"GET", "Error: GET requires a key argument\n"},
		{"DELETE", "Error: DELETE requires a key argument\n"},
		{"SCAN RANGE a", "Error: SCAN RANGE requires start and end keys\n"},
		{"SCAN a b c d", "Error: Invalid SCAN syntax. See .help for usage\n"},
		{"FROB", "Unknown command: FROB\n"},
		{".frob", "Unknown command: .frob\n"},
		{".open", "Error: Missing path argument\n"},
		{"", ""},
	}

	for _, tc := range tests {
		if got := run(t, s, out, tc.line); got != tc.want {
			t.Errorf("%q: expected %q, got %q", tc.line, tc.want, got)
		}
	}
}

func TestShell_Scans(t *testing.T) {
	s, out := newTestShell(t)

	run(t, s, out,
		"PUT a 1",
		"PUT b 2",
		"PUT user:1 alice",
		"PUT user:2 bob",
		".flush",
		"DELETE b",
		"PUT z 26",
	)

	tests := []struct {
		line string
		want string
	}{
		{"SCAN", "a: 1\nuser:1: alice\nuser:2: bob\nz: 26\n4 entries found\n"},
		{"SCAN user:", "user:1: alice\nuser:2: bob\n2 entries found\n"},
		{"SCAN FROM user:2", "user:2: bob\nz: 26\n2 entries found\n"},
		{"SCAN RANGE a user:2", "a: 1\nuser:1: alice\n2 entries found\n"},
		{"SCAN nothing", "0 entries found\n"},
	}

	for _, tc := range tests {
		if got := run(t, s, out, tc.line); got != tc.want {
			t.Errorf("%q: expected %q, got %q", tc.line, tc.want, got)
		}
	}
}

func TestShell_FlushCompactStats(t *testing.T) {
	s, out := newTestShell(t)

	if got := run(t, s, out, "PUT a 1", ".flush"); got != "Memtable flushed to disk\n" {
		t.Errorf("Unexpected flush output: %q", got)
	}
	run(t, s, out, "PUT b 2", ".flush")

	if got := run(t, s, out, ".compact"); !strings.HasPrefix(got, "Tables compacted") {
		t.Errorf("Unexpected compact output: %q", got)
	}
	if gens := s.db.Generations(); len(gens) != 1 || gens[0] != 0 {
		t.Errorf("Expected a single generation 0 after compaction, got %v", gens)
	}

	got := run(t, s, out, ".stats")
	for _, want := range []string{"Puts: 2", "Flush Count: 2", "Compaction Count: 1", "Table Count: 1"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected stats to contain %q, got:\n%s", want, got)
		}
	}
}

func TestShell_OpenClose(t *testing.T) {
	s, out := newTestShell(t)

	run(t, s, out, "PUT k v")
	first := s.dbPath

	if got := run(t, s, out, ".close"); got != "Database "+first+" closed\n" {
		t.Errorf("Unexpected close output: %q", got)
	}
	if got := run(t, s, out, "GET k"); got != "Error: No database open\n" {
		t.Errorf("Expected no-database error, got %q", got)
	}
	if got := run(t, s, out, ".close"); got != "No database open\n" {
		t.Errorf("Unexpected second close output: %q", got)
	}
	for _, cmd := range []string{".stats", ".flush", ".compact"} {
		if got := run(t, s, out, cmd); got != "No database open\n" {
			t.Errorf("%s: expected no-database message, got %q", cmd, got)
		}
	}

	// Reopening recovers the value flushed by close
	if got := run(t, s, out, ".open "+first); got != "Database opened at "+first+"\n" {
		t.Errorf("Unexpected open output: %q", got)
	}
	if got := run(t, s, out, "GET k"); got != "v\n" {
		t.Errorf("Expected value after reopen, got %q", got)
	}
	if !strings.Contains(s.prompt(), first) {
		t.Errorf("Expected prompt to name %s, got %q", first, s.prompt())
	}
}

func TestShell_Exit(t *testing.T) {
	s, out := newTestShell(t)

	if !s.execute(".exit") {
		t.Fatal("Expected .exit to end the shell")
	}
	if out.String() != "Goodbye!\n" {
		t.Errorf("Unexpected exit output: %q", out.String())
	}
	if s.db != nil {
		t.Error("Expected database to be closed on exit")
	}
	if s.prompt() != "strata> " {
		t.Errorf("Unexpected prompt after exit: %q", s.prompt())
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("no database", func(t *testing.T) {
		cfg, err := loadConfig(Options{})
		if err != nil || cfg != nil {
			t.Fatalf("Expected nil config, got %v, %v", cfg, err)
		}
	})

	t.Run("defaults with overrides", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := loadConfig(Options{DBPath: dir, ListenAddr: ":9999", LogLevel: "debug"})
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		snap := cfg.Snapshot()
		if snap.Dir != dir || snap.HTTPAddr != ":9999" || snap.LogLevel != "debug" {
			t.Errorf("Unexpected config: %+v", &snap)
		}
	})

	t.Run("config file in database directory", func(t *testing.T) {
		dir := t.TempDir()
		saved := config.NewDefaultConfig(dir)
		saved.FlushThresholdBytes = 1234
		if err := saved.SaveFile(filepath.Join(dir, config.DefaultConfigFileName)); err != nil {
			t.Fatalf("SaveFile failed: %v", err)
		}

		cfg, err := loadConfig(Options{DBPath: dir})
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Snapshot().FlushThresholdBytes != 1234 {
			t.Errorf("Expected flush threshold from file, got %d", cfg.Snapshot().FlushThresholdBytes)
		}
	})

	t.Run("explicit config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "custom.yaml")
		saved := config.NewDefaultConfig(filepath.Join(dir, "data"))
		saved.Telemetry = config.TelemetryStdout
		if err := saved.SaveFile(path); err != nil {
			t.Fatalf("SaveFile failed: %v", err)
		}

		cfg, err := loadConfig(Options{ConfigPath: path})
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		snap := cfg.Snapshot()
		if snap.Dir != filepath.Join(dir, "data") || snap.Telemetry != config.TelemetryStdout {
			t.Errorf("Unexpected config: %+v", &snap)
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := loadConfig(Options{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Fatalf("Expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid override", func(t *testing.T) {
		_, err := loadConfig(Options{DBPath: t.TempDir(), Telemetry: "jaeger"})
		if !errors.Is(err, config.ErrInvalidConfig) {
			t.Fatalf("Expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestNewTelemetry(t *testing.T) {
	tel, err := newTelemetry(nil)
	if err != nil {
		t.Fatalf("newTelemetry failed: %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
