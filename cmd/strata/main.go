package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/KevoDB/strata/pkg/common/log"
	"github.com/KevoDB/strata/pkg/config"
	"github.com/KevoDB/strata/pkg/engine"
	"github.com/KevoDB/strata/pkg/telemetry"
)

const version = "0.1.0"

// Options holds the command line configuration
type Options struct {
	ServerMode bool
	ListenAddr string
	ConfigPath string
	DBPath     string
	LogLevel   string
	Telemetry  string
}

func main() {
	opts := parseFlags()

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %s\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		os.Exit(1)
	}
	log.SetDefaultLogger(logger)

	tel, err := newTelemetry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring telemetry: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down telemetry: %s\n", err)
		}
	}()

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTelemetry(tel),
	}

	var db *engine.DB
	if cfg != nil {
		fmt.Printf("Opening database at %s\n", cfg.Dir)
		db, err = engine.OpenDB(cfg, engineOpts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %s\n", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	if opts.ServerMode {
		if db == nil {
			fmt.Fprintf(os.Stderr, "Error: Server mode requires a database path\n")
			os.Exit(1)
		}
		if err := runServer(db, cfg.Snapshot().HTTPAddr, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		return
	}

	runInteractive(newShell(db, cfg, engineOpts, os.Stdout))
}

// parseFlags parses command line flags and returns the Options
func parseFlags() Options {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Strata - An embedded LSM key-value store\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: strata [options] [database_path]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "By default, strata runs in interactive mode with a command-line interface.\n")
		fmt.Fprintf(flag.CommandLine.Output(), "If -server flag is provided, strata serves an HTTP API instead.\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nFor interactive commands, start strata and type .help\n")
	}

	serverMode := flag.Bool("server", false, "Run in server mode, exposing an HTTP API")
	listenAddr := flag.String("address", "", "Address to listen on in server mode (overrides http_addr)")
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn or error (overrides log_level)")
	tel := flag.String("telemetry", "", "Telemetry exporter: none or stdout (overrides telemetry)")

	flag.Parse()

	var dbPath string
	if flag.NArg() > 0 {
		dbPath = flag.Arg(0)
	}

	return Options{
		ServerMode: *serverMode,
		ListenAddr: *listenAddr,
		ConfigPath: *configPath,
		DBPath:     dbPath,
		LogLevel:   *logLevel,
		Telemetry:  *tel,
	}
}

// loadConfig resolves the configuration from the -config file, the
// strata.yaml inside the database directory, or the defaults. It returns nil
// when no database was named.
func loadConfig(opts Options) (*config.Config, error) {
	var cfg *config.Config
	var err error

	switch {
	case opts.ConfigPath != "":
		cfg, err = config.LoadFile(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		if opts.DBPath != "" {
			cfg.Update(func(c *config.Config) { c.Dir = opts.DBPath })
		}
	case opts.DBPath != "":
		cfg, err = config.LoadFile(filepath.Join(opts.DBPath, config.DefaultConfigFileName))
		if errors.Is(err, config.ErrConfigNotFound) {
			cfg, err = config.NewDefaultConfig(opts.DBPath), nil
		}
		if err != nil {
			return nil, err
		}
		cfg.Update(func(c *config.Config) { c.Dir = opts.DBPath })
	default:
		return nil, nil
	}

	cfg.Update(func(c *config.Config) {
		if opts.ListenAddr != "" {
			c.HTTPAddr = opts.ListenAddr
		}
		if opts.LogLevel != "" {
			c.LogLevel = opts.LogLevel
		}
		if opts.Telemetry != "" {
			c.Telemetry = opts.Telemetry
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the configuration
func newLogger(cfg *config.Config) (*log.StandardLogger, error) {
	if cfg == nil {
		return log.NewStandardLogger(log.WithLevel(log.LevelWarn), log.WithOutput(os.Stderr)), nil
	}

	snap := cfg.Snapshot()
	level, err := log.ParseLevel(snap.LogLevel)
	if err != nil {
		return nil, err
	}
	return log.NewStandardLogger(
		log.WithLevel(level),
		log.WithJSON(snap.LogJSON),
		log.WithOutput(os.Stderr),
	), nil
}

// newTelemetry builds the telemetry pipeline selected in the configuration
func newTelemetry(cfg *config.Config) (telemetry.Telemetry, error) {
	if cfg == nil || !strings.EqualFold(cfg.Snapshot().Telemetry, config.TelemetryStdout) {
		return telemetry.NewNoop(), nil
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.LoadFromEnv()
	tcfg.Output = os.Stderr

	tel, err := telemetry.New(tcfg)
	if err != nil {
		return nil, err
	}
	if p, ok := tel.(*telemetry.TelemetryProvider); ok {
		p.InstallGlobal()
	}
	return tel, nil
}
