package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var (
	tableFilePattern = regexp.MustCompile(`^(\d+)sst\.dat$`)
	tempFilePattern  = regexp.MustCompile(`^(\d+)sst\.tmp$`)
)

// tableFile is a generation file found in the data directory
type tableFile struct {
	gen  uint64
	path string
}

func tableFileName(gen uint64) string {
	return fmt.Sprintf("%dsst.dat", gen)
}

func tempFileName(gen uint64) string {
	return fmt.Sprintf("%dsst.tmp", gen)
}

func parseGeneration(pattern *regexp.Regexp, name string) (uint64, bool) {
	m := pattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	gen, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

// scanDir lists the table files of dir in ascending generation order and
// collects the paths of leftover temporary files.
func scanDir(dir string) ([]tableFile, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var tables []tableFile
	var temps []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if gen, ok := parseGeneration(tableFilePattern, name); ok {
			tables = append(tables, tableFile{gen: gen, path: filepath.Join(dir, name)})
			continue
		}
		if _, ok := parseGeneration(tempFilePattern, name); ok {
			temps = append(temps, filepath.Join(dir, name))
		}
	}

	sort.SliceStable(tables, func(i, j int) bool {
		return tables[i].gen < tables[j].gen
	})
	return tables, temps, nil
}

// syncDir flushes directory metadata so that renames survive a crash
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open directory for sync: %w", err)
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return d.Close()
}
