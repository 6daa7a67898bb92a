// Frame validation at the proxy boundary.
//
// All structural validation of inbound frames happens here, before any frame
// enters a command loop, so the per-kind handlers contain only dispatch logic.
// A validation failure is a ProtocolError: the stream (and, for malformed
// commands, the entity instance) is not safe to continue.
package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocol reports a malformed inbound frame. It closes the stream it
// arrived on; recovery is the proxy's decision.
var ErrProtocol = errors.New("protocol violation")

// protocolErrorf wraps ErrProtocol with frame context.
func protocolErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// ValidateCommand checks the shared command frame invariants.
func ValidateCommand(cmd *Command) error {
	if cmd == nil {
		return protocolErrorf("nil command frame")
	}
	if cmd.Name == "" {
		return protocolErrorf("command %d has no name", cmd.Id)
	}
	return nil
}

// ValidateValueEntityStreamIn checks one inbound value entity frame. The first
// frame of a stream must be an init; every later frame must not be.
func ValidateValueEntityStreamIn(in *ValueEntityStreamIn, first bool) error {
	if in == nil {
		return protocolErrorf("empty value entity frame")
	}
	if first {
		if in.Init == nil {
			return protocolErrorf("value entity stream must start with init")
		}
		if in.Init.EntityId == "" {
			return protocolErrorf("value entity init has no entity id")
		}
		return nil
	}
	if in.Init != nil {
		return protocolErrorf("value entity stream already initialized")
	}
	if in.Command == nil {
		return protocolErrorf("value entity frame carries neither init nor command")
	}
	return ValidateCommand(in.Command)
}

// ValidateEventSourcedStreamIn checks one inbound event sourced frame.
func ValidateEventSourcedStreamIn(in *EventSourcedStreamIn, first bool) error {
	if in == nil {
		return protocolErrorf("empty event sourced frame")
	}
	if first {
		if in.Init == nil {
			return protocolErrorf("event sourced stream must start with init")
		}
		if in.Init.EntityId == "" {
			return protocolErrorf("event sourced init has no entity id")
		}
		return nil
	}
	if in.Init != nil {
		return protocolErrorf("event sourced stream already initialized")
	}
	switch {
	case in.Event != nil:
		if in.Event.Payload == nil {
			return protocolErrorf("event sourced event %d has no payload", in.Event.Sequence)
		}
		return nil
	case in.Command != nil:
		return ValidateCommand(in.Command)
	}
	return protocolErrorf("event sourced frame carries neither init, event nor command")
}

// ValidateReplicatedEntityStreamIn checks one inbound replicated entity frame.
func ValidateReplicatedEntityStreamIn(in *ReplicatedEntityStreamIn, first bool) error {
	if in == nil {
		return protocolErrorf("empty replicated entity frame")
	}
	if first {
		if in.Init == nil {
			return protocolErrorf("replicated entity stream must start with init")
		}
		if in.Init.EntityId == "" {
			return protocolErrorf("replicated entity init has no entity id")
		}
		return nil
	}
	if in.Init != nil {
		return protocolErrorf("replicated entity stream already initialized")
	}
	switch {
	case in.Delta != nil:
		return nil
	case in.Command != nil:
		return ValidateCommand(in.Command)
	case in.StreamCancelled != nil:
		return nil
	}
	return protocolErrorf("replicated entity frame carries no recognized payload")
}

// ValidateClientAction enforces the at-most-one-of reply invariant before a
// frame reaches the wire.
func ValidateClientAction(action *ClientAction) error {
	if action == nil {
		return nil
	}
	set := 0
	if action.Reply != nil {
		set++
	}
	if action.Forward != nil {
		set++
	}
	if action.Failure != nil {
		set++
	}
	if set > 1 {
		return protocolErrorf("client action carries more than one of reply, forward and failure")
	}
	return nil
}
