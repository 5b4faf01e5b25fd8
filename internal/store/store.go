// Package store provides the observed, concurrency-safe state containers
// shared by the wallet: wallet list, balances, rates, known accounts,
// popular apps and fiat methods.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
)

// errNoChange makes commit skip a transition without reporting an error.
var errNoChange = errors.New("no change")

// Loader fetches the value of key, usually from the network.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Event describes one committed state transition.
type Event[K comparable, V any] struct {
	Key     K
	Value   V
	Deleted bool
	// State is the full committed snapshot after the transition.
	State map[K]V
}

// Owner ties observer registrations to the lifetime of their consumer.
// Once released, or garbage collected, its registrations stop firing and
// are pruned on the next notification pass.
type Owner struct {
	released atomic.Bool
	// Keeps Owner out of the tiny allocator, where a weak pointer can stay
	// set long after the owner is unreachable.
	_ [16]byte
}

// NewOwner creates a live owner.
func NewOwner() *Owner {
	return &Owner{}
}

// Release marks the owner dead.
func (o *Owner) Release() {
	o.released.Store(true)
}

// Alive reports whether the owner has not been released.
func (o *Owner) Alive() bool {
	return o != nil && !o.released.Load()
}

type registration[K comparable, V any] struct {
	owner     weak.Pointer[Owner]
	fn        func(Event[K, V])
	cancelled atomic.Bool
}

func (r *registration[K, V]) live() bool {
	return !r.cancelled.Load() && r.owner.Value().Alive()
}

// Token cancels one observer registration.
type Token struct {
	cancel func()
}

// Cancel stops the observer. Safe to call more than once.
func (t Token) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Option configures a Store.
type Option[K comparable, V any] func(*Store[K, V])

// WithName sets the name used in logs.
func WithName[K comparable, V any](name string) Option[K, V] {
	return func(s *Store[K, V]) { s.name = name }
}

// WithKeyFunc sets how keys are turned into single-flight slots.
// The default is fmt.Sprint.
func WithKeyFunc[K comparable, V any](fn func(K) string) Option[K, V] {
	return func(s *Store[K, V]) { s.keyFn = fn }
}

// Store is a keyed state container. Reads return snapshots; every write
// goes through one serialized section that commits the new state and
// notifies observers before the next write can start.
type Store[K comparable, V any] struct {
	name   string
	loader Loader[K, V]
	keyFn  func(K) string
	group  singleflight.Group
	logger zerolog.Logger

	// commitMu serializes commit + notify.
	commitMu sync.Mutex

	mu    sync.RWMutex
	state map[K]V

	obsMu     sync.Mutex
	observers []*registration[K, V]
}

// New creates a store. loader may be nil for stores that are only written
// locally.
func New[K comparable, V any](loader Loader[K, V], opts ...Option[K, V]) *Store[K, V] {
	s := &Store[K, V]{
		name:   "store",
		loader: loader,
		keyFn:  func(k K) string { return fmt.Sprint(k) },
		state:  make(map[K]V),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = log.Store.With().Str("store", s.name).Logger()
	return s
}

// State returns a snapshot of every key.
func (s *Store[K, V]) State() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store[K, V]) snapshotLocked() map[K]V {
	out := make(map[K]V, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// Get returns the last known value of key, possibly stale.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[key]
	return v, ok
}

// Len returns the number of keys.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state)
}

// Load refreshes key through the loader. Concurrent calls for the same key
// share one loader call and its result. A failed load leaves the last
// committed value in place and frees the slot for a retry.
//
// The shared load is not cancelled when one caller's ctx ends; that caller
// simply stops waiting.
func (s *Store[K, V]) Load(ctx context.Context, key K) (V, error) {
	var zero V
	if s.loader == nil {
		return zero, fmt.Errorf("%s: no loader", s.name)
	}

	slot := s.keyFn(key)
	ch := s.group.DoChan(slot, func() (interface{}, error) {
		v, err := s.loader(context.WithoutCancel(ctx), key)
		if err != nil {
			s.logger.Debug().Str("key", slot).Err(err).Msg("Load failed")
			return nil, err
		}
		s.commit(key, func(map[K]V) (V, bool, error) { return v, false, nil })
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Set stores value under key.
func (s *Store[K, V]) Set(key K, value V) {
	s.commit(key, func(map[K]V) (V, bool, error) { return value, false, nil })
}

// Update replaces the value of key with fn(old, ok). fn runs inside the
// serialized section, so it sees the latest committed value. When fn returns
// an error nothing changes.
func (s *Store[K, V]) Update(key K, fn func(old V, ok bool) (V, error)) (V, error) {
	var out V
	err := s.commit(key, func(state map[K]V) (V, bool, error) {
		old, ok := state[key]
		v, err := fn(old, ok)
		out = v
		return v, false, err
	})
	return out, err
}

// Delete removes key. check, when non-nil, runs first inside the serialized
// section and can veto the removal.
func (s *Store[K, V]) Delete(key K, check func(old V, ok bool) error) error {
	return s.commit(key, func(state map[K]V) (V, bool, error) {
		old, ok := state[key]
		if check != nil {
			if err := check(old, ok); err != nil {
				return old, false, err
			}
		}
		if !ok {
			return old, false, errNoChange
		}
		return old, true, nil
	})
}

// commit applies one transition and notifies observers with the committed
// state. Observers must not write to the same store synchronously.
func (s *Store[K, V]) commit(key K, fn func(state map[K]V) (V, bool, error)) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.RLock()
	current := s.state
	s.mu.RUnlock()

	v, del, err := fn(current)
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	if del {
		delete(s.state, key)
	} else {
		s.state[key] = v
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(Event[K, V]{Key: key, Value: v, Deleted: del, State: snap})
	return nil
}

func (s *Store[K, V]) notify(ev Event[K, V]) {
	s.obsMu.Lock()
	live := s.observers[:0]
	for _, r := range s.observers {
		if r.live() {
			live = append(live, r)
		}
	}
	for i := len(live); i < len(s.observers); i++ {
		s.observers[i] = nil
	}
	pruned := len(s.observers) - len(live)
	s.observers = live
	targets := make([]*registration[K, V], len(live))
	copy(targets, live)
	s.obsMu.Unlock()

	if pruned > 0 {
		s.logger.Trace().Int("pruned", pruned).Msg("Dropped dead observers")
	}
	for _, r := range targets {
		// Re-check: the owner may have been released by an earlier observer.
		if r.live() {
			r.fn(ev)
		}
	}
}

// AddObserver registers fn for every committed transition while owner is
// alive. The store holds owner weakly: the caller keeps it reachable for as
// long as it wants events, and fn must not capture it.
func (s *Store[K, V]) AddObserver(owner *Owner, fn func(Event[K, V])) Token {
	r := &registration[K, V]{owner: weak.Make(owner), fn: fn}
	s.obsMu.Lock()
	s.observers = append(s.observers, r)
	s.obsMu.Unlock()
	return Token{cancel: func() { r.cancelled.Store(true) }}
}

// ObserverCount returns the number of registrations not yet pruned.
func (s *Store[K, V]) ObserverCount() int {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	return len(s.observers)
}
