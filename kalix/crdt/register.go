package crdt

import (
	"fmt"

	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// Clock selects how concurrent register writes are ordered.
type Clock int32

const (
	// ClockDefault orders writes by the proxy's wall clock.
	ClockDefault Clock = Clock(protocol.ClockDefault)
	// ClockReverse inverts the default ordering, making the first write win.
	ClockReverse Clock = Clock(protocol.ClockReverse)
	// ClockCustom orders writes by a caller-supplied clock value.
	ClockCustom Clock = Clock(protocol.ClockCustom)
	// ClockCustomAutoIncrement is ClockCustom, with the proxy bumping the
	// value past the last observed one when the caller's value is behind.
	ClockCustomAutoIncrement Clock = Clock(protocol.ClockCustomAutoIncrement)
)

func (c Clock) valid() bool {
	switch c {
	case ClockDefault, ClockReverse, ClockCustom, ClockCustomAutoIncrement:
		return true
	}
	return false
}

// Register is a replicated last-writer-wins value. Resolution between replicas
// is by (clock, custom clock value); the proxy applies the winning write.
type Register struct {
	value            *protocol.Any
	clock            Clock
	customClockValue int64
	changed          bool
}

// NewRegister creates a register holding the given value with the default
// clock. The value is part of the first flushed delta.
func NewRegister(value *protocol.Any) *Register {
	return &Register{value: value, clock: ClockDefault, changed: true}
}

// Value returns the current value, nil when never set.
func (r *Register) Value() *protocol.Any {
	return r.value
}

// Clock returns the clock of the last local assignment.
func (r *Register) Clock() Clock {
	return r.clock
}

// CustomClockValue returns the custom clock value of the last local assignment.
func (r *Register) CustomClockValue() int64 {
	return r.customClockValue
}

// SetValue assigns a new value with the default clock.
func (r *Register) SetValue(value *protocol.Any) error {
	return r.SetValueWithClock(value, ClockDefault, 0)
}

// SetValueWithClock assigns a new value under an explicit clock.
func (r *Register) SetValueWithClock(value *protocol.Any, clock Clock, customClockValue int64) error {
	if !clock.valid() {
		return fmt.Errorf("invalid register clock: %d", clock)
	}
	r.value = value
	r.clock = clock
	r.customClockValue = customClockValue
	r.changed = true
	return nil
}

// GetAndResetDelta implements State.
func (r *Register) GetAndResetDelta(initial bool) *protocol.ReplicatedEntityDelta {
	if !r.changed && !initial {
		return nil
	}
	r.changed = false
	return &protocol.ReplicatedEntityDelta{
		Register: &protocol.RegisterDelta{
			Value:            r.value.Clone(),
			Clock:            int32(r.clock),
			CustomClockValue: r.customClockValue,
		},
	}
}

// ApplyDelta implements State.
func (r *Register) ApplyDelta(delta *protocol.ReplicatedEntityDelta) error {
	if delta == nil || delta.Register == nil {
		return fmt.Errorf("%w: register cannot apply %s", ErrIncompatibleDelta, deltaKind(delta))
	}
	r.value = delta.Register.Value
	r.clock = Clock(delta.Register.Clock)
	r.customClockValue = delta.Register.CustomClockValue
	return nil
}
