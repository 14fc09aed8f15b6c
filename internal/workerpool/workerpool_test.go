package workerpool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/workerpool"
)

func TestPoolRunsAllJobs(t *testing.T) {
	p := workerpool.New(4)
	var n int64
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := p.Submit(ctx, func(ctx context.Context) error {
			atomic.AddInt64(&n, 1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 100 {
		t.Errorf("n = %d, want 100", n)
	}
	if p.Stats().JobCount != 100 {
		t.Errorf("JobCount = %d, want 100", p.Stats().JobCount)
	}
}

func TestPoolCapturesFirstError(t *testing.T) {
	p := workerpool.New(2)
	ctx := context.Background()
	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		p.Submit(ctx, func(ctx context.Context) error { return boom })
	}
	if err := p.Wait(); !errors.Is(err, boom) {
		t.Errorf("Wait() = %v, want %v", err, boom)
	}
}
