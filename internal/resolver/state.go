package resolver

import (
	"github.com/xssnick/tonutils-go/address"
)

// State is the resolution state. It is one of None, Resolving, Resolved or
// Failed.
type State interface {
	isState()
}

// None means there is nothing to resolve yet, or input is still settling.
type None struct{}

// Resolving means the debounce elapsed and lookups are running.
type Resolving struct {
	Input string
}

// Source tells how an input was resolved.
type Source int

const (
	SourceRaw Source = iota
	SourceFriendly
	SourceDomain
)

func (s Source) String() string {
	switch s {
	case SourceRaw:
		return "raw"
	case SourceFriendly:
		return "friendly"
	case SourceDomain:
		return "domain"
	default:
		return "unknown"
	}
}

// Resolved carries the address the input points at.
type Resolved struct {
	Input   string
	Address *address.Address
	Source  Source
}

// Failed means no lookup accepted the input.
type Failed struct {
	Input string
	Err   error
}

func (None) isState()      {}
func (Resolving) isState() {}
func (Resolved) isState()  {}
func (Failed) isState()    {}

// event drives transition.
type event interface {
	isEvent()
}

type inputChanged struct{}

type debounceElapsed struct{ input string }

type lookupDone struct {
	input  string
	addr   *address.Address
	source Source
	err    error
}

func (inputChanged) isEvent()    {}
func (debounceElapsed) isEvent() {}
func (lookupDone) isEvent()      {}

// transition returns the state that follows old on ev. Input changes restart
// the machine from any state; results are only accepted while resolving.
func transition(old State, ev event) State {
	switch e := ev.(type) {
	case inputChanged:
		return None{}
	case debounceElapsed:
		if _, ok := old.(None); ok {
			return Resolving{Input: e.input}
		}
	case lookupDone:
		if r, ok := old.(Resolving); ok && r.Input == e.input {
			if e.err != nil {
				return Failed{Input: e.input, Err: e.err}
			}
			return Resolved{Input: e.input, Address: e.addr, Source: e.source}
		}
	}
	return old
}

// Terminal reports whether s is Resolved or Failed.
func Terminal(s State) bool {
	switch s.(type) {
	case Resolved, Failed:
		return true
	}
	return false
}
