package dedup_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/dedup"
)

func TestResolveFirstIsUnique(t *testing.T) {
	d := dedup.New()
	idx, dup := d.Resolve(100, 5, 0xABCD)
	if dup {
		t.Fatal("first registration reported as duplicate")
	}
	if idx != 5 {
		t.Errorf("uniqueIndex = %d, want 5", idx)
	}
}

func TestResolveSecondSameHashIsDuplicate(t *testing.T) {
	d := dedup.New()
	d.Resolve(100, 5, 0xABCD)
	idx, dup := d.Resolve(100, 9, 0xABCD)
	if !dup {
		t.Fatal("second registration with same hash not reported as duplicate")
	}
	if idx != 5 {
		t.Errorf("uniqueIndex = %d, want 5 (original)", idx)
	}
}

func TestResolveDifferentHashNotDuplicate(t *testing.T) {
	d := dedup.New()
	d.Resolve(100, 5, 0xABCD)
	idx, dup := d.Resolve(100, 9, 0x1234)
	if dup {
		t.Fatal("different hash incorrectly reported as duplicate")
	}
	if idx != 9 {
		t.Errorf("uniqueIndex = %d, want 9", idx)
	}
}

func TestHashFileStableForSameContent(t *testing.T) {
	h1, err := dedup.HashFile(strings.NewReader("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := dedup.HashFile(strings.NewReader("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("HashFile not stable: %x != %x", h1, h2)
	}
}

func TestResolveConcurrentSameBucketSerializes(t *testing.T) {
	d := dedup.New()
	var wg sync.WaitGroup
	results := make([]bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, dup := d.Resolve(64, i, 0x42)
			results[i] = dup
		}(i)
	}
	wg.Wait()

	dupCount := 0
	for _, d := range results {
		if d {
			dupCount++
		}
	}
	if dupCount != 49 {
		t.Errorf("expected exactly 49 duplicates out of 50, got %d", dupCount)
	}
}
