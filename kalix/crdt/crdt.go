// Package crdt provides the replicated data types hosted by replicated
// entities: Counter, Register, Set, ORMap, CounterMap, RegisterMap, MultiMap
// and Vote.
//
// Every type tracks its own mutations and exposes two operations to the host:
//
//   - GetAndResetDelta(initial): describe changes since the last flush and
//     clear the bookkeeping. With initial=true the delta reproduces the full
//     current state on a fresh instance.
//   - ApplyDelta(delta): fold an inbound delta into current state. Redundant
//     removes of keys or elements not present locally are ignored; the map
//     types log them at debug level.
//
// Conflict resolution across replicas is the proxy's job; these types only
// guarantee that their merge laws converge.
package crdt

import (
	"errors"
	"fmt"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// Errors reported by this package.
var (
	// ErrUnknownDeltaKind indicates a delta envelope with no recognized tag.
	ErrUnknownDeltaKind = errors.New("unknown replicated data type delta")
	// ErrIncompatibleDelta indicates a delta of a different kind than the
	// instance it was applied to.
	ErrIncompatibleDelta = errors.New("incompatible delta")
)

// Logger is the interface for structured logging in this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// State is a replicated data type instance.
type State interface {
	// GetAndResetDelta returns the changes accumulated since the last flush,
	// or nil when nothing changed and initial is false, and clears the
	// internal bookkeeping.
	GetAndResetDelta(initial bool) *protocol.ReplicatedEntityDelta

	// ApplyDelta folds an inbound delta into current state.
	ApplyDelta(delta *protocol.ReplicatedEntityDelta) error
}

// NewStateFromDelta constructs an empty instance of the kind identified by the
// delta envelope's tag. The caller applies the delta afterwards.
func NewStateFromDelta(delta *protocol.ReplicatedEntityDelta, as *anysupport.AnySupport) (State, error) {
	switch {
	case delta == nil:
		return nil, fmt.Errorf("%w: nil delta", ErrUnknownDeltaKind)
	case delta.Counter != nil:
		return NewCounter(), nil
	case delta.Register != nil:
		return &Register{}, nil
	case delta.Set != nil:
		return NewSet(as), nil
	case delta.Ormap != nil:
		return NewORMap(as), nil
	case delta.CounterMap != nil:
		return NewCounterMap(as), nil
	case delta.RegisterMap != nil:
		return NewRegisterMap(as), nil
	case delta.MultiMap != nil:
		return NewMultiMap(as), nil
	case delta.Vote != nil:
		return NewVote(), nil
	}
	return nil, ErrUnknownDeltaKind
}
