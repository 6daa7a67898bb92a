// Package replicated hosts replicated entities: components whose state is a
// mergeable replicated data type from the crdt package. The proxy relays
// deltas between replicas; convergence comes from the data types' merge laws.
package replicated

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/crdt"
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/reply"
)

// Logger is the interface for structured logging in this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// CommandHandler handles one command against the current replicated state.
type CommandHandler func(ctx *CommandContext, payload any) (*reply.Reply, error)

// StateChangeHandler runs on a streamed command whenever the entity state
// changes. A non-nil reply is pushed to the command's stream.
type StateChangeHandler func(ctx *StreamedContext, state crdt.State) (*reply.Reply, error)

// StreamCancelHandler runs when the proxy closes a streamed command's outbound
// stream.
type StreamCancelHandler func(ctx *StreamedContext, state crdt.State)

// Entity is a replicated entity registration. Register it with the runtime
// before start.
type Entity struct {
	// Service is the fully-qualified protobuf service name this entity
	// implements.
	Service string
	// Options carries entity type, passivation, forward headers and write
	// consistency.
	Options component.Options
	// OnStateSet runs whenever a new top-level state is installed, allowing
	// enrichment. It must not re-enter the command loop; state attached by the
	// hook belongs in a caller-owned structure indexed by entity id, not on
	// the data type itself.
	OnStateSet func(state crdt.State, entityID string)
	// CommandHandlers maps command names to handlers.
	CommandHandlers map[string]CommandHandler
	// OnPreStart optionally configures outbound clients during discovery.
	OnPreStart func(info component.PreStartInfo) error
}

// ComponentType implements component.Component.
func (e *Entity) ComponentType() component.Type {
	return component.TypeReplicatedEntity
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

// =============================================================================
// COMMAND CONTEXT
// =============================================================================

// CommandContext is handed to command handlers. Not safe for use outside the
// handler invocation.
type CommandContext struct {
	// EntityID is the opaque id of this entity instance.
	EntityID string
	// CommandName is the command being dispatched.
	CommandName string
	// CommandID correlates the reply with the command.
	CommandID int64
	// Metadata carries the command's metadata, including forwarded headers.
	Metadata *reply.Metadata
	// Streamed reports whether the proxy requested a streamed response.
	Streamed bool

	srv    *Server
	entity *Entity
	inst   *instance

	forward  *effect.Call
	failure  *reply.ContextFailure
	sideFx   []*effect.Call
	deleted  bool
	onChange StateChangeHandler
	onCancel StreamCancelHandler
}

// State returns the current replicated state, nil until set.
func (c *CommandContext) State() crdt.State {
	return c.inst.state
}

// SetState installs the top-level state. Allowed only while no state exists;
// the proxy owns replacement through deltas.
func (c *CommandContext) SetState(state crdt.State) error {
	if c.inst.state != nil {
		return fmt.Errorf("state of %s is already set", c.EntityID)
	}
	c.srv.installState(c.entity, c.inst, state)
	return nil
}

// Delete discards the entity's replicated state on command completion.
func (c *CommandContext) Delete() {
	c.deleted = true
}

// OnStateChange registers the streamed push callback. Only effective on
// streamed commands.
func (c *CommandContext) OnStateChange(handler StateChangeHandler) {
	c.onChange = handler
}

// OnStreamCancel registers the stream cancellation callback. Only effective on
// streamed commands.
func (c *CommandContext) OnStreamCancel(handler StreamCancelHandler) {
	c.onCancel = handler
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

// Fail fails the command with a description.
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

// =============================================================================
// STREAMED CONTEXT
// =============================================================================

// StreamedContext is handed to state change and cancel callbacks of one
// streamed command.
type StreamedContext struct {
	// EntityID is the opaque id of this entity instance.
	EntityID string
	// CommandID identifies the streamed command.
	CommandID int64

	srv    *Server
	sideFx []*effect.Call
	ended  bool
}

// EndStream closes the outbound stream after the current push.
func (c *StreamedContext) EndStream() {
	c.ended = true
}

// EffectNamed schedules a side effect on a "service/Method" reference,
// attached to the current push or cancellation response.
func (c *StreamedContext) EffectNamed(ref string, message any, synchronous bool, metadata *reply.Metadata) error {
	call, err := c.srv.effects.SerializeCallByName(ref, message, synchronous, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.sideFx = append(c.sideFx, call)
	return nil
}
