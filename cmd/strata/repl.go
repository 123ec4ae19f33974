package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/chzyer/readline"

	"github.com/KevoDB/strata/pkg/config"
	"github.com/KevoDB/strata/pkg/engine"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".flush"),
	readline.PcItem(".compact"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("SCAN",
		readline.PcItem("RANGE"),
		readline.PcItem("FROM"),
	),
)

const helpText = `
Strata (strata) - An embedded LSM key-value store.

Usage:
  strata [options] [database_path]  - Start with an optional database path

Options:
  -server                 - Run in server mode, exposing an HTTP API
  -address string         - Address to listen on in server mode
  -config string          - Path to a YAML configuration file
  -log-level string       - Log level (debug, info, warn, error)
  -telemetry string       - Telemetry exporter (none, stdout)

Commands (interactive mode only):
  .help                   - Show this help message
  .open PATH              - Open a database at PATH
  .close                  - Close the current database
  .exit                   - Exit the program
  .stats                  - Show database statistics
  .flush                  - Force the memtable to disk
  .compact                - Merge every table into one

  PUT key value           - Store a key-value pair
  GET key                 - Retrieve a value by key
  DELETE key              - Delete a key-value pair

  SCAN                    - Scan all key-value pairs
  SCAN prefix             - Scan key-value pairs with given prefix
  SCAN FROM key           - Scan key-value pairs starting at key
  SCAN RANGE start end    - Scan key-value pairs in range [start, end)
`

// shell executes interactive commands against an optional open database
type shell struct {
	db     *engine.DB
	dbPath string
	out    io.Writer
	open   func(path string) (*engine.DB, error)
}

func newShell(db *engine.DB, cfg *config.Config, opts []engine.Option, out io.Writer) *shell {
	s := &shell{db: db, out: out}
	if cfg != nil {
		s.dbPath = cfg.Snapshot().Dir
	}
	s.open = func(path string) (*engine.DB, error) {
		next, err := loadConfig(Options{DBPath: path})
		if err != nil {
			return nil, err
		}
		return engine.OpenDB(next, opts...)
	}
	return s
}

func (s *shell) prompt() string {
	if s.dbPath != "" {
		return fmt.Sprintf("strata:%s> ", s.dbPath)
	}
	return "strata> "
}

// runInteractive starts the interactive CLI mode
func runInteractive(s *shell) {
	fmt.Fprintf(s.out, "Strata (strata) version %s\n", version)
	fmt.Fprintln(s.out, "Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".strata_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		rl.SetPrompt(s.prompt())

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Fprintln(s.out, "Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if s.execute(line) {
			return
		}
	}

	s.closeDB()
}

// execute runs one command line and reports whether the shell should exit
func (s *shell) execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToUpper(parts[0])

	if strings.HasPrefix(cmd, ".") {
		return s.executeDot(strings.ToLower(cmd), parts)
	}

	if s.db == nil {
		fmt.Fprintln(s.out, "Error: No database open")
		return false
	}

	switch cmd {
	case "PUT":
		if len(parts) < 3 {
			fmt.Fprintln(s.out, "Error: PUT requires key and value arguments")
			return false
		}
		if err := s.db.Put([]byte(parts[1]), []byte(strings.Join(parts[2:], " "))); err != nil {
			fmt.Fprintf(s.out, "Error putting value: %s\n", err)
			return false
		}
		fmt.Fprintln(s.out, "Value stored")

	case "GET":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "Error: GET requires a key argument")
			return false
		}
		val, err := s.db.Get([]byte(parts[1]))
		switch {
		case errors.Is(err, engine.ErrKeyNotFound):
			fmt.Fprintln(s.out, "Key not found")
		case err != nil:
			fmt.Fprintf(s.out, "Error getting value: %s\n", err)
		default:
			fmt.Fprintf(s.out, "%s\n", val)
		}

	case "DELETE":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "Error: DELETE requires a key argument")
			return false
		}
		if err := s.db.Delete([]byte(parts[1])); err != nil {
			fmt.Fprintf(s.out, "Error deleting key: %s\n", err)
			return false
		}
		fmt.Fprintln(s.out, "Key deleted")

	case "SCAN":
		s.scan(parts)

	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
	}
	return false
}

func (s *shell) executeDot(cmd string, parts []string) bool {
	switch cmd {
	case ".help":
		fmt.Fprint(s.out, helpText)

	case ".open":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "Error: Missing path argument")
			return false
		}
		s.closeDB()

		db, err := s.open(parts[1])
		if err != nil {
			fmt.Fprintf(s.out, "Error opening database: %s\n", err)
			return false
		}
		s.db, s.dbPath = db, parts[1]
		fmt.Fprintf(s.out, "Database opened at %s\n", s.dbPath)

	case ".close":
		if s.db == nil {
			fmt.Fprintln(s.out, "No database open")
			return false
		}
		path := s.dbPath
		if err := s.closeDB(); err != nil {
			fmt.Fprintf(s.out, "Error closing database: %s\n", err)
			return false
		}
		fmt.Fprintf(s.out, "Database %s closed\n", path)

	case ".exit":
		s.closeDB()
		fmt.Fprintln(s.out, "Goodbye!")
		return true

	case ".stats":
		if s.db == nil {
			fmt.Fprintln(s.out, "No database open")
			return false
		}
		s.printStats(s.db.Stats())

	case ".flush":
		if s.db == nil {
			fmt.Fprintln(s.out, "No database open")
			return false
		}
		if err := s.db.Flush(); err != nil {
			fmt.Fprintf(s.out, "Error flushing memtable: %s\n", err)
			return false
		}
		fmt.Fprintln(s.out, "Memtable flushed to disk")

	case ".compact":
		if s.db == nil {
			fmt.Fprintln(s.out, "No database open")
			return false
		}
		start := time.Now()
		if err := s.db.Compact(); err != nil {
			fmt.Fprintf(s.out, "Error compacting tables: %s\n", err)
			return false
		}
		fmt.Fprintf(s.out, "Tables compacted (%.2f ms)\n", float64(time.Since(start).Microseconds())/1000.0)

	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
	}
	return false
}

func (s *shell) closeDB() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db, s.dbPath = nil, ""
	return err
}

func (s *shell) scan(parts []string) {
	var it *engine.DBIterator
	switch {
	case len(parts) == 1:
		it = s.db.Scan(nil)
	case len(parts) == 2:
		it = s.db.ScanPrefix([]byte(parts[1]))
	case len(parts) == 3 && strings.ToUpper(parts[1]) == "FROM":
		it = s.db.Scan([]byte(parts[2]))
	case len(parts) == 3 && strings.ToUpper(parts[1]) == "RANGE":
		fmt.Fprintln(s.out, "Error: SCAN RANGE requires start and end keys")
		return
	case len(parts) == 4 && strings.ToUpper(parts[1]) == "RANGE":
		it = s.db.ScanRange([]byte(parts[2]), []byte(parts[3]))
	default:
		fmt.Fprintln(s.out, "Error: Invalid SCAN syntax. See .help for usage")
		return
	}
	defer it.Close()

	count := 0
	for ; it.Valid(); it.Next() {
		fmt.Fprintf(s.out, "%s: %s\n", it.Key(), it.Value())
		count++
	}
	if err := it.Error(); err != nil {
		fmt.Fprintf(s.out, "Error scanning: %s\n", err)
		return
	}
	fmt.Fprintf(s.out, "%d entries found\n", count)
}

func (s *shell) printStats(stats map[string]interface{}) {
	getUint64 := func(m map[string]interface{}, key string) uint64 {
		switch v := m[key].(type) {
		case uint64:
			return v
		case int64:
			return uint64(v)
		case int:
			return uint64(v)
		}
		return 0
	}

	fmt.Fprintln(s.out, "Operations:")
	fmt.Fprintf(s.out, "  Puts: %d\n", getUint64(stats, "put_ops"))
	fmt.Fprintf(s.out, "  Gets: %d\n", getUint64(stats, "get_ops"))
	fmt.Fprintf(s.out, "  Deletes: %d\n", getUint64(stats, "delete_ops"))
	fmt.Fprintf(s.out, "  Scans: %d\n", getUint64(stats, "scan_ops")+getUint64(stats, "scan_range_ops"))

	if latency, ok := stats["put_latency"].(map[string]interface{}); ok {
		fmt.Fprintln(s.out, "\nLatency (avg):")
		if avgNs, ok := latency["avg_ns"].(uint64); ok {
			fmt.Fprintf(s.out, "  Put: %.2f ms\n", float64(avgNs)/1000000.0)
		}
		if getLatency, ok := stats["get_latency"].(map[string]interface{}); ok {
			if avgNs, ok := getLatency["avg_ns"].(uint64); ok {
				fmt.Fprintf(s.out, "  Get: %.2f ms\n", float64(avgNs)/1000000.0)
			}
		}
	}

	fmt.Fprintln(s.out, "\nStorage:")
	fmt.Fprintf(s.out, "  Bytes Read: %d\n", getUint64(stats, "total_bytes_read"))
	fmt.Fprintf(s.out, "  Bytes Written: %d\n", getUint64(stats, "total_bytes_written"))
	fmt.Fprintf(s.out, "  Flush Count: %d\n", getUint64(stats, "flush_count"))
	fmt.Fprintf(s.out, "  Compaction Count: %d\n", getUint64(stats, "compaction_count"))

	fmt.Fprintln(s.out, "\nTables:")
	fmt.Fprintf(s.out, "  Table Count: %d\n", getUint64(stats, "engine_table_count"))
	fmt.Fprintf(s.out, "  Table Bytes: %d\n", getUint64(stats, "engine_table_bytes"))
	fmt.Fprintf(s.out, "  Current MemTable Size: %d bytes\n", getUint64(stats, "engine_memtable_size"))
	fmt.Fprintf(s.out, "  Next Generation: %d\n", getUint64(stats, "engine_next_generation"))

	if errs, ok := stats["errors"].(map[string]uint64); ok && len(errs) > 0 {
		fmt.Fprintln(s.out, "\nErrors:")
		names := make([]string, 0, len(errs))
		for name := range errs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(s.out, "  %s: %d\n", toTitle(strings.ReplaceAll(name, "_", " ")), errs[name])
		}
	}
}

// toTitle converts the first character of each word to title case
func toTitle(s string) string {
	prev := ' '
	return strings.Map(
		func(r rune) rune {
			if unicode.IsSpace(prev) || unicode.IsPunct(prev) {
				prev = r
				return unicode.ToTitle(r)
			}
			prev = r
			return r
		},
		s)
}
