package progress_test

import (
	"sync"
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/progress"
)

func TestCountersConcurrentAdds(t *testing.T) {
	var c progress.Counters
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddFilesScanned(1)
			c.AddBytesScanned(1024)
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.FilesScanned != 100 {
		t.Errorf("FilesScanned = %d, want 100", snap.FilesScanned)
	}
	if snap.BytesScanned != 100*1024 {
		t.Errorf("BytesScanned = %d, want %d", snap.BytesScanned, 100*1024)
	}
}
