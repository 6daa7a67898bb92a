// Package eventsourced hosts event sourced entities: components whose state is
// rebuilt from a journal of events, with optional snapshots.
package eventsourced

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
	"github.com/lightbend/kalix-go-sdk/kalix/reply"
)

// DefaultSnapshotEvery is the snapshot interval when the registration leaves
// it unset.
const DefaultSnapshotEvery = 100

// Logger is the interface for structured logging in this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// CommandHandler handles one command. State mutation happens only through
// ctx.Emit.
type CommandHandler func(ctx *CommandContext, payload any) (*reply.Reply, error)

// EventHandler folds one event into the state, returning the next state.
// Handlers are keyed by the event's unqualified message name.
type EventHandler func(ctx *EventContext, event any, state any) (any, error)

// SnapshotHandler turns a decoded snapshot value into the entity state.
type SnapshotHandler func(snapshot any) (any, error)

// Entity is an event sourced entity registration. Register it with the
// runtime before start.
type Entity struct {
	// Service is the fully-qualified protobuf service name this entity
	// implements.
	Service string
	// Options carries entity type, passivation, forward headers and the
	// snapshot interval.
	Options component.Options
	// InitialState constructs the state of a fresh entity.
	InitialState func(entityID string) any
	// SnapshotHandler decodes snapshots; nil uses the decoded value as state.
	SnapshotHandler SnapshotHandler
	// EventHandlers maps unqualified event message names to handlers.
	EventHandlers map[string]EventHandler
	// CommandHandlers maps command names to handlers.
	CommandHandlers map[string]CommandHandler
	// OnPreStart optionally configures outbound clients during discovery.
	OnPreStart func(info component.PreStartInfo) error
}

// ComponentType implements component.Component.
func (e *Entity) ComponentType() component.Type {
	return component.TypeEventSourcedEntity
}

// ServiceName implements component.Component.
func (e *Entity) ServiceName() string {
	return e.Service
}

// ComponentOptions implements component.Component.
func (e *Entity) ComponentOptions() component.Options {
	return e.Options
}

// PreStart implements component.Component.
func (e *Entity) PreStart(info component.PreStartInfo) error {
	if e.OnPreStart == nil {
		return nil
	}
	return e.OnPreStart(info)
}

func (e *Entity) initialState(entityID string) any {
	if e.InitialState == nil {
		return nil
	}
	return e.InitialState(entityID)
}

// snapshotEvery resolves the snapshot interval: default when unset, disabled
// when negative.
func (e *Entity) snapshotEvery() int32 {
	switch {
	case e.Options.SnapshotEvery < 0:
		return 0
	case e.Options.SnapshotEvery == 0:
		return DefaultSnapshotEvery
	}
	return e.Options.SnapshotEvery
}

// =============================================================================
// CONTEXTS
// =============================================================================

// EventContext is handed to event handlers during replay and emission.
type EventContext struct {
	// EntityID is the opaque id of this entity instance.
	EntityID string
	// SequenceNumber is the sequence of the event being applied.
	SequenceNumber int64
}

// CommandContext is handed to command handlers. The only state mutation
// primitive is Emit. Not safe for use outside the handler invocation.
type CommandContext struct {
	// EntityID is the opaque id of this entity instance.
	EntityID string
	// CommandName is the command being dispatched.
	CommandName string
	// CommandID correlates the reply with the command.
	CommandID int64
	// Metadata carries the command's metadata, including forwarded headers.
	Metadata *reply.Metadata

	srv    *Server
	entity *Entity
	inst   *instance

	emitted []emittedEvent
	forward *effect.Call
	failure *reply.ContextFailure
	sideFx  []*effect.Call
	emitErr error
}

type emittedEvent struct {
	payload *protocol.Any
}

// State returns the current in-memory state, including events emitted by this
// command so far.
func (c *CommandContext) State() any {
	return c.inst.state
}

// SequenceNumber returns the entity's current sequence number.
func (c *CommandContext) SequenceNumber() int64 {
	return c.inst.sequence
}

// Emit appends an event to the reply, feeds it through its event handler to
// update the in-memory state, and increments the sequence number. On failure
// the command fails and uncommitted emits are discarded.
func (c *CommandContext) Emit(event any) error {
	encoded, err := c.srv.as.Encode(event)
	if err != nil {
		c.emitErr = err
		return err
	}
	if err := c.srv.applyEvent(c.entity, c.inst, encoded, c.inst.sequence+1); err != nil {
		c.emitErr = err
		return err
	}
	c.inst.sequence++
	c.emitted = append(c.emitted, emittedEvent{payload: encoded})
	return nil
}

// Effect schedules a side effect on a method of a registered service.
func (c *CommandContext) Effect(method protoreflect.MethodDescriptor, message any, synchronous bool, metadata *reply.Metadata) error {
	call, err := c.srv.effects.SerializeCall(method, message, synchronous, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.sideFx = append(c.sideFx, call)
	return nil
}

// EffectNamed schedules a side effect on a "service/Method" reference.
func (c *CommandContext) EffectNamed(ref string, message any, synchronous bool, metadata *reply.Metadata) error {
	call, err := c.srv.effects.SerializeCallByName(ref, message, synchronous, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.sideFx = append(c.sideFx, call)
	return nil
}

// Forward redirects the command to a method of a registered service.
func (c *CommandContext) Forward(method protoreflect.MethodDescriptor, message any, metadata *reply.Metadata) error {
	call, err := c.srv.effects.SerializeCall(method, message, false, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.forward = call
	return nil
}

// ForwardNamed redirects the command to a "service/Method" reference.
func (c *CommandContext) ForwardNamed(ref string, message any, metadata *reply.Metadata) error {
	call, err := c.srv.effects.SerializeCallByName(ref, message, false, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.forward = call
	return nil
}

// Fail fails the command with a description. Emitted events are discarded.
func (c *CommandContext) Fail(description string) {
	c.failure = reply.NewContextFailure(description)
}

// FailWithStatus fails the command with a gRPC status code in 1..16.
func (c *CommandContext) FailWithStatus(description string, grpcStatusCode int32) error {
	f, err := reply.NewContextFailureWithStatus(description, grpcStatusCode)
	if err != nil {
		return err
	}
	c.failure = f
	return nil
}

// unknownEventError formats the unknown-event failure, which is unrecoverable
// during replay and fails the command during Emit.
func unknownEventError(service, name string) error {
	return fmt.Errorf("no event handler for event type %s on %s", name, service)
}
