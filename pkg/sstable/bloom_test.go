package sstable

import (
	"fmt"
	"testing"
)

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	bf := newBloomFilter(1000, 10)
	for i := 0; i < 1000; i++ {
		bf.Add([]byte(fmt.Sprintf("key-%d", i)))
	}
	for i := 0; i < 1000; i++ {
		if !bf.MayContain([]byte(fmt.Sprintf("key-%d", i))) {
			t.Fatalf("Bloom filter lost key-%d", i)
		}
	}
}

func TestBloomFilterFalsePositiveRate(t *testing.T) {
	bf := newBloomFilter(1000, 10)
	for i := 0; i < 1000; i++ {
		bf.Add([]byte(fmt.Sprintf("key-%d", i)))
	}

	falsePositives := 0
	for i := 0; i < 10000; i++ {
		if bf.MayContain([]byte(fmt.Sprintf("other-%d", i))) {
			falsePositives++
		}
	}

	// 10 bits per key gives roughly 1%; allow generous slack
	if rate := float64(falsePositives) / 10000; rate > 0.05 {
		t.Errorf("False positive rate too high: %.4f", rate)
	}
}

func TestReaderBloomFilter(t *testing.T) {
	path := writeTestTable(t, 100)

	withBloom, err := OpenReader(path)
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer withBloom.Close()
	if withBloom.bloom == nil {
		t.Fatalf("Expected bloom filter with default options")
	}
	if !withBloom.MayContain([]byte("key00000")) {
		t.Errorf("Bloom filter must admit stored keys")
	}

	noBloom, err := OpenReaderWithOptions(path, ReaderOptions{BloomBitsPerKey: 0})
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer noBloom.Close()
	if noBloom.bloom != nil {
		t.Errorf("Expected no bloom filter when disabled")
	}
	if _, found, err := noBloom.Get([]byte("key00004")); err != nil || !found {
		t.Errorf("Expected lookup without bloom filter to work, found=%v err=%v", found, err)
	}
}
