package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/KevoDB/strata/pkg/common/log"
	"github.com/KevoDB/strata/pkg/config"
	"github.com/KevoDB/strata/pkg/engine"
)

const (
	defaultValueSize = 100
	defaultKeyCount  = 100000
)

var (
	// Command line flags
	benchmarkType  = flag.String("type", "all", "Type of benchmark to run (write, read, scan, range-scan, mixed, compaction, or all)")
	duration       = flag.Duration("duration", 10*time.Second, "Duration to run each benchmark")
	numKeys        = flag.Int("keys", defaultKeyCount, "Number of keys to prepare for read and scan benchmarks")
	valueSize      = flag.Int("value-size", defaultValueSize, "Size of values in bytes")
	dataDir        = flag.String("data-dir", "./benchmark-data", "Directory to store benchmark data")
	sequential     = flag.Bool("sequential", false, "Use sequential keys instead of random")
	scanSize       = flag.Int("scan-size", 100, "Number of entries to read per range scan")
	flushThreshold = flag.Int64("flush-threshold", 4*1024*1024, "Memtable size in bytes that triggers a flush")
	syncWrites     = flag.Bool("sync", false, "Fsync table files as they are written")
	cpuProfile     = flag.String("cpu-profile", "", "Write CPU profile to file")
	memProfile     = flag.String("mem-profile", "", "Write memory profile to file")
	resultsFile    = flag.String("results", "", "CSV file to append results to (in addition to stdout)")
)

func main() {
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if _, err := os.Stat(*dataDir); err == nil {
		fmt.Println("Cleaning previous benchmark data...")
		if err := os.RemoveAll(*dataDir); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clean benchmark directory: %v\n", err)
		}
	}

	cfg := config.NewDefaultConfig(*dataDir)
	cfg.FlushThresholdBytes = *flushThreshold
	cfg.SyncWrites = *syncWrites

	logger := log.NewStandardLogger(log.WithLevel(log.LevelWarn), log.WithOutput(os.Stderr))
	db, err := engine.OpenDB(cfg, engine.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	b := newBench(db, Options{
		NumKeys:    *numKeys,
		ValueSize:  *valueSize,
		ScanSize:   *scanSize,
		Duration:   *duration,
		Sequential: *sequential,
	})

	fmt.Printf("Benchmark Report (%s)\n", time.Now().Format(time.RFC3339))
	fmt.Printf("Keys: %d, Value Size: %d bytes, Duration: %s, Mode: %s\n",
		*numKeys, *valueSize, *duration, b.keyMode())

	var results []BenchmarkResult
	for _, typ := range strings.Split(*benchmarkType, ",") {
		typ = strings.ToLower(strings.TrimSpace(typ))
		if typ == "all" {
			for _, name := range benchmarkOrder {
				results = append(results, runNamed(b, name))
			}
			continue
		}
		if _, ok := benchmarks[typ]; !ok {
			fmt.Fprintf(os.Stderr, "Unknown benchmark type: %s\n", typ)
			os.Exit(1)
		}
		results = append(results, runNamed(b, typ))
	}

	PrintResultTable(results)

	if *resultsFile != "" {
		if err := AppendResultCSV(results, *resultsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write results to file: %v\n", err)
		}
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
		} else {
			defer f.Close()
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
			}
		}
	}
}

func runNamed(b *bench, name string) BenchmarkResult {
	fmt.Printf("Running %s benchmark...\n", name)
	result, err := benchmarks[name](b)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s benchmark failed: %v\n", name, err)
		result.Status = "FAILED: " + err.Error()
	}
	fmt.Println(result.String())
	return result
}
