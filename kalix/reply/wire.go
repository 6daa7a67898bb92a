package reply

import (
	"fmt"

	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// BuildClientAction converts a successful command outcome to its wire form.
// ctxForward is a forward recorded on the command context; it combines with
// the returned reply, and a message alongside a forward is rejected here, at
// wire emission. Failures are the caller's path, never built here.
//
// A nil action means an empty client action: no reply payload, no forward.
func BuildClientAction(encode func(any) (*protocol.Any, error), ctxForward *effect.Call, r *Reply) (*protocol.ClientAction, error) {
	var msg *protocol.Reply
	var fwd *protocol.Forward

	if ctxForward != nil {
		fwd = ctxForward.Forward()
	}
	if r != nil {
		switch r.Kind() {
		case KindMessage:
			payload, err := encode(r.Payload())
			if err != nil {
				return nil, err
			}
			msg = &protocol.Reply{Payload: payload, Metadata: r.Metadata().ToProtocol()}
		case KindForward:
			fwd = r.ForwardCall().Forward()
		case KindNoReply, KindFailure:
		}
	}

	if msg != nil && fwd != nil {
		return nil, fmt.Errorf("reply cannot carry both a message and a forward")
	}
	if msg == nil && fwd == nil {
		return nil, nil
	}
	return &protocol.ClientAction{Reply: msg, Forward: fwd}, nil
}

// FailureAction builds the wire form of a command failure.
func FailureAction(commandID int64, f *ContextFailure) *protocol.ClientAction {
	return &protocol.ClientAction{
		Failure: &protocol.Failure{
			CommandId:      commandID,
			Description:    f.Description(),
			GrpcStatusCode: f.GrpcStatusCode(),
		},
	}
}

// CombineEffects merges context effects with reply effects, preserving order.
func CombineEffects(ctxEffects []*effect.Call, r *Reply) []*effect.Call {
	if r == nil {
		return ctxEffects
	}
	return append(ctxEffects, r.Effects()...)
}
