package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDispatcher_SameKeyRunsInOrderOneAtATime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(4, zerolog.Nop())
	d.Start(ctx)

	var (
		mu       sync.Mutex
		order    []int
		inFlight int32
		overlap  int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		d.Submit("session-a", func(context.Context) {
			defer wg.Done()
			if atomic.AddInt32(&inFlight, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(100 * time.Microsecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			atomic.AddInt32(&inFlight, -1)
		})
	}
	wg.Wait()

	if overlap != 0 {
		t.Fatal("tasks with the same key overlapped")
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, tasks ran out of submission order", i, v)
		}
	}
}

func TestDispatcher_ShardIndexIsDeterministic(t *testing.T) {
	d := NewDispatcher(8, zerolog.Nop())
	for _, key := range []string{"a", "session-1", "3f0c1f0e-4c55-4c1e-9b6e-2a7f0c0d9e11"} {
		first := d.shardIndex(key)
		if first < 0 || first >= 8 {
			t.Fatalf("shard index %d out of range", first)
		}
		for i := 0; i < 10; i++ {
			if got := d.shardIndex(key); got != first {
				t.Fatalf("key %q mapped to %d then %d", key, first, got)
			}
		}
	}
}

func TestDispatcher_DefaultWorkers(t *testing.T) {
	d := NewDispatcher(0, zerolog.Nop())
	if len(d.workers) != defaultWorkers {
		t.Fatalf("expected %d workers, got %d", defaultWorkers, len(d.workers))
	}
}

func TestDispatcher_PanicDoesNotStopWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(1, zerolog.Nop())
	d.Start(ctx)

	d.Submit("k", func(context.Context) { panic("boom") })

	done := make(chan struct{})
	d.Submit("k", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after a panicking task")
	}
}
