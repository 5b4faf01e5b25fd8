package vault

import (
	"context"
	"sort"
	"sync"
)

// KeyQueue runs operations one at a time per key. An operation starts only
// after the previous one on the same key has finished, whatever its result.
type KeyQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// NewKeyQueue creates an empty queue.
func NewKeyQueue() *KeyQueue {
	return &KeyQueue{tails: make(map[string]chan struct{})}
}

// enqueue appends a slot for key and returns the previous tail (nil when the
// key is idle) and a release func for the new slot.
func (q *KeyQueue) enqueue(key string) (<-chan struct{}, func()) {
	done := make(chan struct{})
	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = done
	q.mu.Unlock()

	release := func() {
		q.mu.Lock()
		if q.tails[key] == done {
			delete(q.tails, key)
		}
		q.mu.Unlock()
		close(done)
	}
	return prev, release
}

// Do waits for the previous operation on key and runs fn. If ctx ends while
// waiting, fn is skipped and the slot is handed on once the predecessor
// finishes.
func (q *KeyQueue) Do(ctx context.Context, key string, fn func() error) error {
	prev, release := q.enqueue(key)
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				release()
			}()
			return ctx.Err()
		}
	}
	defer release()
	return fn()
}

// DoAll runs fn once it holds the slot of every key. Keys are taken in
// sorted order so two DoAll calls never wait on each other in a cycle.
func (q *KeyQueue) DoAll(ctx context.Context, keys []string, fn func() error) error {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)
	return q.doFrom(ctx, sorted, fn)
}

func (q *KeyQueue) doFrom(ctx context.Context, keys []string, fn func() error) error {
	if len(keys) == 0 {
		return fn()
	}
	return q.Do(ctx, keys[0], func() error {
		return q.doFrom(ctx, keys[1:], fn)
	})
}

// Pending returns the number of keys with a running or queued operation.
func (q *KeyQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
