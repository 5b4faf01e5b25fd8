package vault

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyQueue_SerializesPerKey(t *testing.T) {
	q := NewKeyQueue()

	var running, maxRunning int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = q.Do(context.Background(), "key", func() error {
				n := atomic.AddInt32(&running, 1)
				for {
					m := atomic.LoadInt32(&maxRunning)
					if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&running, -1)
				if i%2 == 0 {
					return errors.New("failed")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Errorf("max concurrent operations on one key = %d, want 1", maxRunning)
	}
	if q.Pending() != 0 {
		t.Errorf("Pending() = %d after all operations, want 0", q.Pending())
	}
}

func TestKeyQueue_WaitsForPredecessor(t *testing.T) {
	q := NewKeyQueue()
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	started := make(chan struct{})
	release := make(chan struct{})
	go q.Do(context.Background(), "k", func() error {
		close(started)
		<-release
		record("first")
		return errors.New("first failed")
	})
	<-started

	done := make(chan struct{})
	go func() {
		q.Do(context.Background(), "k", func() error {
			record("second")
			return nil
		})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	close(release)
	<-done

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v, want [first second]", order)
	}
}

func TestKeyQueue_IndependentKeys(t *testing.T) {
	q := NewKeyQueue()
	block := make(chan struct{})
	started := make(chan struct{})
	go q.Do(context.Background(), "a", func() error {
		close(started)
		<-block
		return nil
	})
	<-started

	ran := false
	if err := q.Do(context.Background(), "b", func() error { ran = true; return nil }); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if !ran {
		t.Error("operation on another key should not wait")
	}
	close(block)
}

func TestKeyQueue_ContextCancelledWhileWaiting(t *testing.T) {
	q := NewKeyQueue()
	block := make(chan struct{})
	started := make(chan struct{})
	go q.Do(context.Background(), "k", func() error {
		close(started)
		<-block
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := q.Do(ctx, "k", func() error { ran = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("cancelled operation must not run")
	}

	close(block)
	if err := q.Do(context.Background(), "k", func() error { return nil }); err != nil {
		t.Errorf("queue should recover after cancellation: %v", err)
	}
}

func TestKeyQueue_DoAll(t *testing.T) {
	q := NewKeyQueue()
	var wg sync.WaitGroup
	var inside int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		keys := []string{"c", "a", "b"}
		if i%2 == 1 {
			keys = []string{"b", "c", "a", "a"}
		}
		go func() {
			defer wg.Done()
			err := q.DoAll(context.Background(), keys, func() error {
				if atomic.AddInt32(&inside, 1) != 1 {
					t.Error("two DoAll calls over the same keys ran together")
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("DoAll() error: %v", err)
			}
		}()
	}
	wg.Wait()
}
