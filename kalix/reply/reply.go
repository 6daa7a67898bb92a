// Package reply provides the value types a command handler returns: the Reply
// builder with its message, forward and failure variants, side effect lists,
// metadata, and the user-raisable context failure.
package reply

import (
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
)

// Kind discriminates the reply variants.
type Kind int

const (
	// KindNoReply produces an empty client action.
	KindNoReply Kind = iota
	// KindMessage replies with a payload.
	KindMessage
	// KindForward redirects the command to another method.
	KindForward
	// KindFailure fails the command.
	KindFailure
)

// Reply is the outcome of a command: exactly one variant, plus an ordered list
// of side effects. Builders return the reply for chaining; a reply is not safe
// for concurrent mutation.
type Reply struct {
	kind     Kind
	payload  any
	metadata *Metadata
	forward  *effect.Call
	failure  *ContextFailure
	effects  []*effect.Call
}

// Message replies with a payload value. The hosting entity encodes the value
// at emission.
func Message(payload any) *Reply {
	return &Reply{kind: KindMessage, payload: payload}
}

// MessageWithMetadata replies with a payload value and reply metadata.
func MessageWithMetadata(payload any, metadata *Metadata) *Reply {
	return &Reply{kind: KindMessage, payload: payload, metadata: metadata}
}

// Forward redirects the command to a validated call.
func Forward(call *effect.Call) *Reply {
	return &Reply{kind: KindForward, forward: call}
}

// Failure fails the command with a description.
func Failure(description string) *Reply {
	return &Reply{kind: KindFailure, failure: NewContextFailure(description)}
}

// FailureWithStatus fails the command with a description and a gRPC status
// code in 1..16.
func FailureWithStatus(description string, grpcStatusCode int32) (*Reply, error) {
	f, err := NewContextFailureWithStatus(description, grpcStatusCode)
	if err != nil {
		return nil, err
	}
	return &Reply{kind: KindFailure, failure: f}, nil
}

// FailureOf fails the command with an existing context failure.
func FailureOf(f *ContextFailure) *Reply {
	return &Reply{kind: KindFailure, failure: f}
}

// NoReply produces an empty client action.
func NoReply() *Reply {
	return &Reply{kind: KindNoReply}
}

// AddEffects appends side effects, preserving order.
func (r *Reply) AddEffects(effects ...*effect.Call) *Reply {
	r.effects = append(r.effects, effects...)
	return r
}

// Kind returns the reply variant.
func (r *Reply) Kind() Kind {
	return r.kind
}

// Payload returns the message payload of a message reply.
func (r *Reply) Payload() any {
	return r.payload
}

// Metadata returns the reply metadata, nil when unset.
func (r *Reply) Metadata() *Metadata {
	return r.metadata
}

// ForwardCall returns the forward target of a forward reply.
func (r *Reply) ForwardCall() *effect.Call {
	return r.forward
}

// FailureValue returns the failure of a failure reply.
func (r *Reply) FailureValue() *ContextFailure {
	return r.failure
}

// Effects returns the side effects in append order.
func (r *Reply) Effects() []*effect.Call {
	return r.effects
}
