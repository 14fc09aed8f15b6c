package blockcache_test

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dwarfs-go/dwarfs/internal/blockcache"
	"github.com/dwarfs-go/dwarfs/internal/codec"
)

// fakeSource hands out fixed blocks compressed with the stored ("none")
// codec, optionally failing a chosen block's first ReadBlock call so the
// read error reaches the caller.
type fakeSource struct {
	blocks    [][]byte
	failBlock int64
	failed    bool
	mu        sync.Mutex
}

func (s *fakeSource) ReadBlock(i int64) (codec.Tag, []byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i == s.failBlock && !s.failed {
		s.failed = true
		return 0, nil, 0, errors.New("fake i/o failure")
	}
	b := s.blocks[i]
	c, _ := codec.Lookup(codec.None)
	compressed, err := c.Compress(b, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	return codec.None, compressed, int64(len(b)), nil
}

func randomBlocks(t *testing.T, n, size int) [][]byte {
	t.Helper()
	blocks := make([][]byte, n)
	for i := range blocks {
		b := make([]byte, size)
		_, err := rand.Read(b)
		require.NoError(t, err)
		blocks[i] = b
	}
	return blocks
}

func TestReadReturnsExactBytes(t *testing.T) {
	blocks := randomBlocks(t, 4, 4096)
	src := &fakeSource{failBlock: -1}
	src.blocks = blocks
	c := blockcache.New(src, blockcache.Options{MaxBytes: 2 * 4096, BlockSize: 4096, Workers: 2})

	got, err := c.Read(context.Background(), 1, 100, 200)
	require.NoError(t, err)
	require.Equal(t, blocks[1][100:200], got)
}

func TestConcurrentOverlappingReadsCoalesce(t *testing.T) {
	blocks := randomBlocks(t, 2, 1<<16)
	src := &fakeSource{failBlock: -1, blocks: blocks}
	c := blockcache.New(src, blockcache.Options{MaxBytes: 1 << 16, BlockSize: 1 << 16, Workers: 4})

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			begin := (i * 97) % (1 << 15)
			end := begin + 1000
			got, err := c.Read(context.Background(), 0, int64(begin), int64(end))
			if err != nil {
				errs <- err
				return
			}
			want := blocks[0][begin:end]
			for j := range want {
				if got[j] != want[j] {
					errs <- errors.New("mismatched byte")
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent read failed: %v", err)
	}
}

func TestBlockReadFailureIsReturnedThenRetrySucceeds(t *testing.T) {
	blocks := randomBlocks(t, 1, 4096)
	src := &fakeSource{failBlock: 0, blocks: blocks}
	c := blockcache.New(src, blockcache.Options{MaxBytes: 4096, BlockSize: 4096, Workers: 1})

	_, err := c.Read(context.Background(), 0, 0, 10)
	require.Error(t, err)

	// Retry succeeds since fakeSource only fails the block once.
	got, err := c.Read(context.Background(), 0, 0, 10)
	require.NoError(t, err)
	require.Equal(t, blocks[0][0:10], got)
}
