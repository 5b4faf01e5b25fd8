// Package resolver turns free-form recipient input into an address: a raw
// address, a user-friendly address, or a domain resolved through DNS.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xssnick/tonutils-go/address"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
)

// DefaultDebounce is how long input must stay unchanged before lookups run.
const DefaultDebounce = 750 * time.Millisecond

// ErrInvalidInput is the error of a Failed state.
var ErrInvalidInput = errors.New("input is not an address or known domain")

// DNS resolves domains to wallet addresses.
type DNS interface {
	ResolveDNS(ctx context.Context, domain string) (*address.Address, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(r *Resolver) { r.debounce = d }
}

// Resolver resolves one input field. Each call to Resolve supersedes the
// previous one; observers never see a result for a superseded input.
type Resolver struct {
	dns      DNS
	debounce time.Duration

	mu        sync.Mutex
	state     State
	gen       uint64
	cancel    context.CancelFunc
	closed    bool
	observers map[int]func(State)
	nextObs   int
	wg        sync.WaitGroup
}

// New creates a resolver. dns may be nil, in which case domains fail.
func New(dns DNS, opts ...Option) *Resolver {
	r := &Resolver{
		dns:       dns,
		debounce:  DefaultDebounce,
		state:     None{},
		observers: make(map[int]func(State)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Observe registers fn for every state change and returns a func that
// removes it. fn runs with the resolver locked and must not call Resolve.
func (r *Resolver) Observe(fn func(State)) (cancel func()) {
	r.mu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}

// apply runs one transition. Caller holds r.mu.
func (r *Resolver) apply(ev event) {
	next := transition(r.state, ev)
	if next == r.state {
		return
	}
	r.state = next
	for _, fn := range r.observers {
		fn(next)
	}
}

// Resolve starts resolving input, cancelling any pending resolution. Empty
// input settles on None at once.
func (r *Resolver) Resolve(input string) {
	input = strings.TrimSpace(input)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.gen++
	r.apply(inputChanged{})
	if input == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	gen := r.gen
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.run(ctx, gen, input)
	}()
}

func (r *Resolver) run(ctx context.Context, gen uint64, input string) {
	timer := time.NewTimer(r.debounce)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	if !r.advance(gen, debounceElapsed{input: input}) {
		return
	}

	addr, src, err := r.Lookup(ctx, input)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Resolver.Debug().Err(err).Msg("Input did not resolve")
	}
	r.advance(gen, lookupDone{input: input, addr: addr, source: src, err: err})
}

// advance applies ev if gen is still the latest request.
func (r *Resolver) advance(gen uint64, ev event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.closed {
		return false
	}
	r.apply(ev)
	return true
}

// Lookup resolves input without debounce: raw address first, then
// user-friendly address, then domain. The first success wins.
func (r *Resolver) Lookup(ctx context.Context, input string) (*address.Address, Source, error) {
	input = strings.TrimSpace(input)
	if addr, err := address.ParseRawAddr(input); err == nil {
		return addr, SourceRaw, nil
	}
	if addr, err := address.ParseAddr(input); err == nil {
		return addr, SourceFriendly, nil
	}
	if r.dns != nil && looksLikeDomain(input) {
		addr, err := r.dns.ResolveDNS(ctx, strings.ToLower(input))
		if err == nil {
			return addr, SourceDomain, nil
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil, 0, ErrInvalidInput
}

func looksLikeDomain(s string) bool {
	if len(s) < 3 || !strings.Contains(s, ".") || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return false
	}
	for _, c := range strings.ToLower(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.', c == '_':
		default:
			return false
		}
	}
	return true
}

// Close cancels pending work and waits for it to stop. Later calls to
// Resolve are ignored.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.closed = true
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
	r.wg.Wait()
}
