package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestSubmitReturnsJobError(t *testing.T) {
	q := NewRequestQueueManager(4, 2)
	defer q.Shutdown()

	want := errors.New("failed")
	if err := q.Submit(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected job error, got %v", err)
	}
	if err := q.Submit(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestShutdownDrainsQueuedJobs(t *testing.T) {
	q := NewRequestQueueManager(16, 3)

	var ran int32
	for i := 0; i < 10; i++ {
		q.EnqueueJob(Job{Fn: func() error {
			atomic.AddInt32(&ran, 1)
			return nil
		}})
	}
	q.Shutdown()

	if got := atomic.LoadInt32(&ran); got != 10 {
		t.Fatalf("expected 10 jobs to run, got %d", got)
	}
}

func TestTryEnqueueHonoursCancelledContext(t *testing.T) {
	block := make(chan struct{})
	q := NewRequestQueueManager(0, 1)
	defer func() {
		close(block)
		q.Shutdown()
	}()

	started := make(chan struct{})
	q.EnqueueJob(Job{Fn: func() error {
		close(started)
		<-block
		return nil
	}})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.TryEnqueue(ctx, Job{Fn: func() error { return nil }}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
