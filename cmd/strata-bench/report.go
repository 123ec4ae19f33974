package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BenchmarkResult stores the results of a benchmark
type BenchmarkResult struct {
	BenchmarkType string
	NumKeys       int
	ValueSize     int
	Mode          string
	Status        string
	Operations    int
	Duration      float64 // seconds
	Throughput    float64 // ops/sec
	Latency       float64 // µs/op
	HitRate       float64 // For read benchmarks
	EntriesPerSec float64 // For scan benchmarks
	BytesPerSec   float64 // For write and compaction benchmarks
	Tables        int     // For compaction benchmarks
	ReadRatio     float64 // For mixed benchmarks
	WriteRatio    float64 // For mixed benchmarks
	Timestamp     time.Time
}

func (r *BenchmarkResult) finish(ops int, elapsed time.Duration) {
	r.Operations = ops
	r.Duration = elapsed.Seconds()
	if r.Duration > 0 {
		r.Throughput = float64(ops) / r.Duration
	}
	if ops > 0 {
		r.Latency = float64(elapsed.Microseconds()) / float64(ops)
	}
}

// String renders the result as an indented report block
func (r BenchmarkResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s Benchmark Results:", r.BenchmarkType)
	fmt.Fprintf(&sb, "\n  Status: %s", r.Status)
	fmt.Fprintf(&sb, "\n  Key Mode: %s", r.Mode)
	fmt.Fprintf(&sb, "\n  Operations: %d", r.Operations)
	fmt.Fprintf(&sb, "\n  Time: %.2f seconds", r.Duration)
	fmt.Fprintf(&sb, "\n  Throughput: %.2f ops/sec", r.Throughput)
	fmt.Fprintf(&sb, "\n  Latency: %.3f µs/op", r.Latency)
	if r.BytesPerSec > 0 {
		fmt.Fprintf(&sb, "\n  Data Throughput: %.2f MB/sec", r.BytesPerSec/(1024*1024))
	}
	if r.EntriesPerSec > 0 {
		fmt.Fprintf(&sb, "\n  Entries/sec: %.2f", r.EntriesPerSec)
	}
	if r.BenchmarkType == "Read" || r.BenchmarkType == "Mixed" {
		fmt.Fprintf(&sb, "\n  Hit Rate: %.2f%%", r.HitRate)
	}
	if r.Tables > 0 {
		fmt.Fprintf(&sb, "\n  Tables Merged: %d", r.Tables)
	}
	return sb.String()
}

var csvHeader = []string{
	"Timestamp", "BenchmarkType", "NumKeys", "ValueSize", "Mode", "Status",
	"Operations", "Duration", "Throughput", "Latency", "HitRate",
	"EntriesPerSec", "BytesPerSec", "Tables", "ReadRatio", "WriteRatio",
}

// AppendResultCSV appends results to a CSV file, writing the header when the
// file is new
func AppendResultCSV(results []BenchmarkResult, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	_, statErr := os.Stat(filename)
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if os.IsNotExist(statErr) {
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
	}

	for _, r := range results {
		record := []string{
			r.Timestamp.Format(time.RFC3339),
			r.BenchmarkType,
			strconv.Itoa(r.NumKeys),
			strconv.Itoa(r.ValueSize),
			r.Mode,
			r.Status,
			strconv.Itoa(r.Operations),
			fmt.Sprintf("%.2f", r.Duration),
			fmt.Sprintf("%.2f", r.Throughput),
			fmt.Sprintf("%.3f", r.Latency),
			fmt.Sprintf("%.2f", r.HitRate),
			fmt.Sprintf("%.2f", r.EntriesPerSec),
			fmt.Sprintf("%.2f", r.BytesPerSec),
			strconv.Itoa(r.Tables),
			fmt.Sprintf("%.1f", r.ReadRatio),
			fmt.Sprintf("%.1f", r.WriteRatio),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// LoadResultCSV loads benchmark results from a CSV file
func LoadResultCSV(filename string) ([]BenchmarkResult, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) <= 1 {
		return []BenchmarkResult{}, nil
	}

	results := make([]BenchmarkResult, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) < len(csvHeader) {
			continue
		}

		timestamp, _ := time.Parse(time.RFC3339, record[0])
		numKeys, _ := strconv.Atoi(record[2])
		valueSize, _ := strconv.Atoi(record[3])
		operations, _ := strconv.Atoi(record[6])
		duration, _ := strconv.ParseFloat(record[7], 64)
		throughput, _ := strconv.ParseFloat(record[8], 64)
		latency, _ := strconv.ParseFloat(record[9], 64)
		hitRate, _ := strconv.ParseFloat(record[10], 64)
		entriesPerSec, _ := strconv.ParseFloat(record[11], 64)
		bytesPerSec, _ := strconv.ParseFloat(record[12], 64)
		tables, _ := strconv.Atoi(record[13])
		readRatio, _ := strconv.ParseFloat(record[14], 64)
		writeRatio, _ := strconv.ParseFloat(record[15], 64)

		results = append(results, BenchmarkResult{
			Timestamp:     timestamp,
			BenchmarkType: record[1],
			NumKeys:       numKeys,
			ValueSize:     valueSize,
			Mode:          record[4],
			Status:        record[5],
			Operations:    operations,
			Duration:      duration,
			Throughput:    throughput,
			Latency:       latency,
			HitRate:       hitRate,
			EntriesPerSec: entriesPerSec,
			BytesPerSec:   bytesPerSec,
			Tables:        tables,
			ReadRatio:     readRatio,
			WriteRatio:    writeRatio,
		})
	}

	return results, nil
}

// PrintResultTable prints a formatted table of benchmark results
func PrintResultTable(results []BenchmarkResult) {
	if len(results) == 0 {
		fmt.Println("No results to display")
		return
	}

	fmt.Println("+-----------------+--------+---------+------------+-----------+-----------+")
	fmt.Println("| Benchmark Type  | Keys   | ValSize | Throughput | Latency   | Hit Rate  |")
	fmt.Println("+-----------------+--------+---------+------------+-----------+-----------+")

	for _, r := range results {
		hitRateStr := "-"
		if r.BenchmarkType == "Read" {
			hitRateStr = fmt.Sprintf("%.2f%%", r.HitRate)
		} else if r.BenchmarkType == "Mixed" {
			hitRateStr = fmt.Sprintf("R:%.0f/W:%.0f", r.ReadRatio, r.WriteRatio)
		}

		latencyUnit := "µs"
		latency := r.Latency
		if latency > 1000 {
			latencyUnit = "ms"
			latency /= 1000
		}

		fmt.Printf("| %-15s | %6d | %7d | %10.2f | %7.2f%s | %9s |\n",
			r.BenchmarkType,
			r.NumKeys,
			r.ValueSize,
			r.Throughput,
			latency, latencyUnit,
			hitRateStr)
	}
	fmt.Println("+-----------------+--------+---------+------------+-----------+-----------+")
}
