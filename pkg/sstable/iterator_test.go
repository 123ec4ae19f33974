package sstable

import (
	"fmt"
	"testing"
)

func TestIteratorFullScan(t *testing.T) {
	reader, err := OpenReader(writeTestTable(t, 250))
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer reader.Close()

	i := 0
	for it := reader.NewIterator(nil); it.Valid(); it.Next() {
		expectedKey := fmt.Sprintf("key%05d", i*2)
		if string(it.Key()) != expectedKey {
			t.Fatalf("Position %d: expected key %s, got %s", i, expectedKey, it.Key())
		}
		if string(it.Value()) != fmt.Sprintf("value%05d", i*2) {
			t.Errorf("Position %d: unexpected value %s", i, it.Value())
		}
		if it.Version() != uint64(i+1) || it.IsTombstone() {
			t.Errorf("Position %d: unexpected version %d", i, it.Version())
		}
		i++
	}
	if i != 250 {
		t.Errorf("Expected 250 entries, got %d", i)
	}
}

func TestIteratorFrom(t *testing.T) {
	reader, err := OpenReader(writeTestTable(t, 10))
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer reader.Close()

	testCases := []struct {
		from     string
		first    string
		expected int
	}{
		{"", "key00000", 10},
		{"key00007", "key00008", 6},
		{"key00008", "key00008", 6},
		{"key00018", "key00018", 1},
		{"key00019", "", 0},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("from %q", tc.from), func(t *testing.T) {
			it := reader.NewIterator([]byte(tc.from))
			if tc.expected == 0 {
				if it.Valid() {
					t.Fatalf("Expected exhausted iterator, got %s", it.Key())
				}
				return
			}
			if string(it.Key()) != tc.first {
				t.Errorf("Expected first key %s, got %s", tc.first, it.Key())
			}
			count := 0
			for ; it.Valid(); it.Next() {
				count++
			}
			if count != tc.expected {
				t.Errorf("Expected %d entries, got %d", tc.expected, count)
			}
		})
	}
}

func TestIteratorExhausted(t *testing.T) {
	reader, err := OpenReader(writeTestTable(t, 1))
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer reader.Close()

	it := reader.NewIterator(nil)
	if it.Next() {
		t.Fatalf("Expected single entry table")
	}
	if it.Next() || it.Key() != nil || it.Value() != nil || it.Version() != 0 || it.Error() != nil {
		t.Errorf("Expected exhausted iterator to stay empty")
	}
}
