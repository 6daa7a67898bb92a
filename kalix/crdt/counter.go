package crdt

import (
	"fmt"

	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// Counter is a replicated signed 64-bit counter. Increments and decrements
// accumulate into a net change flushed as the delta.
type Counter struct {
	value int64
	delta int64
}

// NewCounter creates a counter at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return c.value
}

// Increment adds n to the counter.
func (c *Counter) Increment(n int64) {
	c.value += n
	c.delta += n
}

// Decrement subtracts n from the counter.
func (c *Counter) Decrement(n int64) {
	c.value -= n
	c.delta -= n
}

// GetAndResetDelta implements State.
func (c *Counter) GetAndResetDelta(initial bool) *protocol.ReplicatedEntityDelta {
	if c.delta == 0 && !initial {
		return nil
	}
	change := c.delta
	if initial {
		change = c.value
	}
	c.delta = 0
	return &protocol.ReplicatedEntityDelta{
		Counter: &protocol.CounterDelta{Change: change},
	}
}

// ApplyDelta implements State.
func (c *Counter) ApplyDelta(delta *protocol.ReplicatedEntityDelta) error {
	if delta == nil || delta.Counter == nil {
		return fmt.Errorf("%w: counter cannot apply %s", ErrIncompatibleDelta, deltaKind(delta))
	}
	c.value += delta.Counter.Change
	return nil
}

// deltaKind names the tag of a delta envelope for error messages.
func deltaKind(delta *protocol.ReplicatedEntityDelta) string {
	switch {
	case delta == nil:
		return "nil"
	case delta.Counter != nil:
		return "counter"
	case delta.Register != nil:
		return "register"
	case delta.Set != nil:
		return "set"
	case delta.Ormap != nil:
		return "ormap"
	case delta.CounterMap != nil:
		return "counter map"
	case delta.RegisterMap != nil:
		return "register map"
	case delta.MultiMap != nil:
		return "multimap"
	case delta.Vote != nil:
		return "vote"
	}
	return "empty"
}
