package semaphore

import (
	"context"
	"testing"
	"time"
)

func TestAcquireReleaseTracksInUse(t *testing.T) {
	s := New(2)
	if s.Available() != 2 || s.InUse() != 0 {
		t.Fatalf("fresh semaphore = available %d, inUse %d, want 2, 0", s.Available(), s.InUse())
	}

	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s.InUse() != 1 || s.Available() != 1 {
		t.Fatalf("after one Acquire = available %d, inUse %d, want 1, 1", s.Available(), s.InUse())
	}

	s.Release()
	if s.InUse() != 0 || s.Available() != 2 {
		t.Fatalf("after Release = available %d, inUse %d, want 2, 0", s.Available(), s.InUse())
	}
}

func TestAcquireBlocksWhenFull(t *testing.T) {
	s := New(1)
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx); err == nil {
		t.Fatal("Acquire on a full semaphore should block until ctx is done")
	}
}

func TestAcquireUnblocksAfterRelease(t *testing.T) {
	s := New(1)
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Acquire(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	s.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second Acquire: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second Acquire never unblocked after Release")
	}
}

func TestReleaseWithoutAcquireIsNoop(t *testing.T) {
	s := New(1)
	s.Release()
	if s.InUse() != 0 {
		t.Fatalf("InUse = %d, want 0 after releasing an empty semaphore", s.InUse())
	}
}
