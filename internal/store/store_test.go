package store

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStore_SingleFlightLoad(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	s := New(func(ctx context.Context, key string) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}, WithName[string, int]("test"))

	var wg sync.WaitGroup
	results := make([]int, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Load(context.Background(), "a")
		}(i)
	}

	// Let both callers join the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
	for i := range results {
		if errs[i] != nil || results[i] != 42 {
			t.Errorf("caller %d got %d, %v", i, results[i], errs[i])
		}
	}
	if v, ok := s.Get("a"); !ok || v != 42 {
		t.Errorf("state = %d, %v; want 42", v, ok)
	}
}

func TestStore_LoadFailureKeepsState(t *testing.T) {
	fail := errors.New("network down")
	var shouldFail atomic.Bool
	var calls int32
	s := New(func(ctx context.Context, key string) (int, error) {
		atomic.AddInt32(&calls, 1)
		if shouldFail.Load() {
			return 0, fail
		}
		return 7, nil
	})

	if _, err := s.Load(context.Background(), "k"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	shouldFail.Store(true)
	if _, err := s.Load(context.Background(), "k"); !errors.Is(err, fail) {
		t.Fatalf("Load() error = %v, want %v", err, fail)
	}
	if v, _ := s.Get("k"); v != 7 {
		t.Errorf("state after failure = %d, want last good 7", v)
	}

	shouldFail.Store(false)
	if _, err := s.Load(context.Background(), "k"); err != nil {
		t.Errorf("retry after failure should run a new load: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("loader calls = %d, want 3", n)
	}
}

func TestStore_SharedFailure(t *testing.T) {
	fail := errors.New("boom")
	release := make(chan struct{})
	var calls int32
	s := New(func(ctx context.Context, key int) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "", fail
	})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Load(context.Background(), 1)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, fail) {
			t.Errorf("caller %d error = %v, want shared failure", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader calls = %d, want 1", calls)
	}
	if s.Len() != 0 {
		t.Error("failed load must not create state")
	}
}

func TestStore_LoadCallerCancelled(t *testing.T) {
	release := make(chan struct{})
	s := New(func(ctx context.Context, key string) (int, error) {
		<-release
		return 1, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Load(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Load() error = %v, want deadline exceeded", err)
	}

	// The shared load keeps running and still commits.
	close(release)
	v, err := s.Load(context.Background(), "k")
	if err != nil || v != 1 {
		t.Errorf("Load() = %d, %v", v, err)
	}
}

func TestStore_ObserversSeeCommittedState(t *testing.T) {
	s := New[string, int](nil)
	owner := NewOwner()
	defer owner.Release()

	var mu sync.Mutex
	var seen []Event[string, int]
	s.AddObserver(owner, func(ev Event[string, int]) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})

	s.Set("a", 1)
	s.Set("b", 2)
	if _, err := s.Update("a", func(old int, ok bool) (int, error) { return old + 10, nil }); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if err := s.Delete("b", nil); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if len(seen) != 4 {
		t.Fatalf("observer calls = %d, want 4", len(seen))
	}
	last := seen[3]
	if !last.Deleted || last.Key != "b" {
		t.Errorf("last event = %+v, want deletion of b", last)
	}
	if len(last.State) != 1 || last.State["a"] != 11 {
		t.Errorf("snapshot = %v, want map[a:11]", last.State)
	}
	if seen[2].State["a"] != 11 || seen[2].Value != 11 {
		t.Errorf("update event = %+v", seen[2])
	}
}

func TestStore_UpdateErrorNoTransition(t *testing.T) {
	s := New[string, int](nil)
	calls := 0
	owner := NewOwner()
	defer owner.Release()
	s.AddObserver(owner, func(Event[string, int]) { calls++ })

	veto := errors.New("veto")
	if _, err := s.Update("a", func(int, bool) (int, error) { return 1, veto }); !errors.Is(err, veto) {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Delete("missing", nil); err != nil {
		t.Fatalf("Delete() of missing key error: %v", err)
	}
	if calls != 0 || s.Len() != 0 {
		t.Errorf("rejected transitions must not notify or change state (calls=%d)", calls)
	}
}

func TestStore_ObserversPrunedWhenOwnerReleased(t *testing.T) {
	s := New[string, int](nil)
	live, dead := NewOwner(), NewOwner()
	defer live.Release()

	var liveCalls, deadCalls int
	s.AddObserver(live, func(Event[string, int]) { liveCalls++ })
	s.AddObserver(dead, func(Event[string, int]) { deadCalls++ })
	tok := s.AddObserver(live, func(Event[string, int]) { t.Error("cancelled observer fired") })

	dead.Release()
	tok.Cancel()
	tok.Cancel()

	if s.ObserverCount() != 3 {
		t.Errorf("observers before notification = %d, want 3 (pruning is lazy)", s.ObserverCount())
	}
	s.Set("x", 1)

	if deadCalls != 0 {
		t.Error("released owner's observer fired")
	}
	if liveCalls != 1 {
		t.Errorf("live observer calls = %d, want 1", liveCalls)
	}
	if s.ObserverCount() != 1 {
		t.Errorf("observers after notification = %d, want 1", s.ObserverCount())
	}
}

func TestStore_ConcurrentWritesOrdered(t *testing.T) {
	s := New[string, int](nil)
	var mu sync.Mutex
	var values []int
	owner := NewOwner()
	defer owner.Release()
	s.AddObserver(owner, func(ev Event[string, int]) {
		mu.Lock()
		values = append(values, ev.State["n"])
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update("n", func(old int, _ bool) (int, error) { return old + 1, nil })
		}()
	}
	wg.Wait()

	if len(values) != 50 {
		t.Fatalf("notifications = %d, want 50", len(values))
	}
	for i, v := range values {
		if v != i+1 {
			t.Fatalf("notification %d saw %d, want %d", i, v, i+1)
		}
	}
}

func TestStore_NoLoader(t *testing.T) {
	s := New[string, int](nil)
	if _, err := s.Load(context.Background(), "k"); err == nil {
		t.Error("Load() without loader should fail")
	}
}

func TestStore_ObserversPrunedWhenOwnerCollected(t *testing.T) {
	s := New[string, int](nil)
	var fired atomic.Int32
	func() {
		owner := NewOwner()
		s.AddObserver(owner, func(Event[string, int]) { fired.Add(1) })
	}()

	kept := NewOwner()
	defer kept.Release()
	s.AddObserver(kept, func(Event[string, int]) {})

	runtime.GC()
	runtime.GC()
	s.Set("a", 1)

	if n := fired.Load(); n != 0 {
		t.Errorf("observer of a collected owner fired %d times", n)
	}
	if n := s.ObserverCount(); n != 1 {
		t.Errorf("observers after notification = %d, want 1", n)
	}
}
