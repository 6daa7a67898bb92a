// Package valueentity hosts value entities: components whose full state value
// is persisted by the proxy and replaced on every update.
package valueentity

import (
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lightbend/kalix-go-sdk/kalix/component"
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

// CommandHandler handles one command. It receives the decoded payload and the
// command context, and returns a reply or an error. Returning a
// *reply.ContextFailure error (or calling ctx.Fail) produces a recoverable
// failure reply; any other error does too, with its text as the description.
type CommandHandler func(ctx *CommandContext, payload any) (*reply.Reply, error)

// Entity is a value entity registration. Register it with the runtime before
// start.
type Entity struct {
	// Service is the fully-qualified protobuf service name this entity
	// implements.
	Service string
	// Options carries entity type, passivation and forward headers.
	Options component.Options
	// InitialState constructs the state of a fresh entity; nil means the
	// entity starts without state.
	InitialState func(entityID string) any
	// Handlers maps command names to handlers.
	Handlers map[string]CommandHandler
	// OnPreStart optionally configures outbound clients during discovery.
	OnPreStart func(info component.PreStartInfo) error
}

// ComponentType implements component.Component.
func (e *Entity) ComponentType() component.Type {
	return component.TypeValueEntity
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

// initialState returns the configured initial state for an entity id.
func (e *Entity) initialState(entityID string) any {
	if e.InitialState == nil {
		return nil
	}
	return e.InitialState(entityID)
}

// =============================================================================
// COMMAND CONTEXT
// =============================================================================

// CommandContext is handed to command handlers. It collects state mutations,
// side effects, forwards and failures; the host applies them after the handler
// returns. Not safe for use outside the handler invocation.
type CommandContext struct {
	// EntityID is the opaque id of this entity instance.
	EntityID string
	// CommandName is the command being dispatched.
	CommandName string
	// CommandID correlates the reply with the command.
	CommandID int64
	// Metadata carries the command's metadata, including forwarded headers.
	Metadata *reply.Metadata
	// State is the current state value. Before any update and after a delete
	// it is the configured initial state, or nil without InitialState.
	State any

	effects  *effect.Serializer
	updated  bool
	newState any
	deleted  bool
	forward  *effect.Call
	failure  *reply.ContextFailure
	sideFx   []*effect.Call
}

// UpdateState replaces the persisted state with a new value after the command
// completes successfully.
func (c *CommandContext) UpdateState(value any) {
	c.updated = true
	c.deleted = false
	c.newState = value
}

// DeleteState removes the persisted state. The in-memory state resets to the
// configured initial value.
func (c *CommandContext) DeleteState() {
	c.deleted = true
	c.updated = false
	c.newState = nil
}

// Effect schedules a side effect on a method of a registered service.
func (c *CommandContext) Effect(method protoreflect.MethodDescriptor, message any, synchronous bool, metadata *reply.Metadata) error {
	call, err := c.effects.SerializeCall(method, message, synchronous, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.sideFx = append(c.sideFx, call)
	return nil
}

// EffectNamed schedules a side effect on a "service/Method" reference.
func (c *CommandContext) EffectNamed(ref string, message any, synchronous bool, metadata *reply.Metadata) error {
	call, err := c.effects.SerializeCallByName(ref, message, synchronous, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.sideFx = append(c.sideFx, call)
	return nil
}

// Forward redirects the command to a method of a registered service instead of
// replying.
func (c *CommandContext) Forward(method protoreflect.MethodDescriptor, message any, metadata *reply.Metadata) error {
	call, err := c.effects.SerializeCall(method, message, false, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.forward = call
	return nil
}

// ForwardNamed redirects the command to a "service/Method" reference.
func (c *CommandContext) ForwardNamed(ref string, message any, metadata *reply.Metadata) error {
	call, err := c.effects.SerializeCallByName(ref, message, false, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.forward = call
	return nil
}

// Fail fails the command with a description. State changes are discarded.
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
