// Package action hosts actions: stateless components serving unary,
// streamed-in, streamed-out and bidirectional request/response shapes.
package action

import (
	"context"
	"fmt"

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

// UnaryHandler handles one request producing one reply.
type UnaryHandler func(ctx *Context, payload any) (*reply.Reply, error)

// StreamedInHandler consumes a request stream producing one reply. Recv
// returns io.EOF when the caller finishes sending.
type StreamedInHandler func(ctx *Context, recv func() (any, error)) (*reply.Reply, error)

// StreamedOutHandler handles one request producing a reply stream through
// ctx.Write.
type StreamedOutHandler func(ctx *Context, payload any) error

// StreamedHandler consumes a request stream producing a reply stream.
type StreamedHandler func(ctx *Context, recv func() (any, error)) error

// Action is an action registration. Register it with the runtime before
// start. Handlers are keyed by command name; each command uses exactly one of
// the four shapes.
type Action struct {
	// Service is the fully-qualified protobuf service name this action
	// implements.
	Service string
	// Options carries forward headers; actions have no entity settings.
	Options component.Options
	// UnaryHandlers maps command names to unary handlers.
	UnaryHandlers map[string]UnaryHandler
	// StreamedInHandlers maps command names to streamed-in handlers.
	StreamedInHandlers map[string]StreamedInHandler
	// StreamedOutHandlers maps command names to streamed-out handlers.
	StreamedOutHandlers map[string]StreamedOutHandler
	// StreamedHandlers maps command names to bidirectional handlers.
	StreamedHandlers map[string]StreamedHandler
	// OnPreStart optionally configures outbound clients during discovery.
	OnPreStart func(info component.PreStartInfo) error
}

// ComponentType implements component.Component.
func (a *Action) ComponentType() component.Type {
	return component.TypeAction
}

// ServiceName implements component.Component.
func (a *Action) ServiceName() string {
	return a.Service
}

// ComponentOptions implements component.Component.
func (a *Action) ComponentOptions() component.Options {
	return a.Options
}

// PreStart implements component.Component.
func (a *Action) PreStart(info component.PreStartInfo) error {
	if a.OnPreStart == nil {
		return nil
	}
	return a.OnPreStart(info)
}

// =============================================================================
// CONTEXT
// =============================================================================

// Context is handed to action handlers. Write is only valid on streamed-out
// and bidirectional commands. Cancellation is observable through Done.
type Context struct {
	// ServiceName is the action's service.
	ServiceName string
	// CommandName is the command being dispatched.
	CommandName string
	// Metadata carries the request metadata, including forwarded headers.
	Metadata *reply.Metadata

	grpcCtx context.Context
	effects *effect.Serializer
	write   func(*reply.Reply) error

	forward *effect.Call
	failure *reply.ContextFailure
	sideFx  []*effect.Call
}

// Done observes cancellation of the underlying call.
func (c *Context) Done() <-chan struct{} {
	return c.grpcCtx.Done()
}

// Cancelled reports whether the underlying call is cancelled.
func (c *Context) Cancelled() bool {
	return c.grpcCtx.Err() != nil
}

// Write pushes one reply on a streamed-out or bidirectional command.
func (c *Context) Write(r *reply.Reply) error {
	if c.write == nil {
		return fmt.Errorf("write is only valid on streamed commands")
	}
	return c.write(r)
}

// Effect schedules a side effect on a method of a registered service.
func (c *Context) Effect(method protoreflect.MethodDescriptor, message any, synchronous bool, metadata *reply.Metadata) error {
	call, err := c.effects.SerializeCall(method, message, synchronous, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.sideFx = append(c.sideFx, call)
	return nil
}

// EffectNamed schedules a side effect on a "service/Method" reference.
func (c *Context) EffectNamed(ref string, message any, synchronous bool, metadata *reply.Metadata) error {
	call, err := c.effects.SerializeCallByName(ref, message, synchronous, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.sideFx = append(c.sideFx, call)
	return nil
}

// Forward redirects the command to a method of a registered service.
func (c *Context) Forward(method protoreflect.MethodDescriptor, message any, metadata *reply.Metadata) error {
	call, err := c.effects.SerializeCall(method, message, false, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.forward = call
	return nil
}

// ForwardNamed redirects the command to a "service/Method" reference.
func (c *Context) ForwardNamed(ref string, message any, metadata *reply.Metadata) error {
	call, err := c.effects.SerializeCallByName(ref, message, false, metadata.ToProtocol())
	if err != nil {
		return err
	}
	c.forward = call
	return nil
}

// Fail fails the command with a description.
func (c *Context) Fail(description string) {
	c.failure = reply.NewContextFailure(description)
}

// FailWithStatus fails the command with a gRPC status code in 1..16.
func (c *Context) FailWithStatus(description string, grpcStatusCode int32) error {
	f, err := reply.NewContextFailureWithStatus(description, grpcStatusCode)
	if err != nil {
		return err
	}
	c.failure = f
	return nil
}

// unknownCommandError formats the missing-handler failure.
func unknownCommandError(service, name, shape string) *reply.ContextFailure {
	return reply.NewContextFailure(
		fmt.Sprintf("no %s handler for command %s on %s", shape, name, service))
}
