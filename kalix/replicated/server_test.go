package replicated_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/crdt"
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/eventbus"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
	"github.com/lightbend/kalix-go-sdk/kalix/replicated"
	"github.com/lightbend/kalix-go-sdk/kalix/reply"
	"github.com/lightbend/kalix-go-sdk/kalix/testutil"
)

const serviceName = "com.example.ExampleService"

// counterEntity is a replicated entity holding a replicated counter.
func counterEntity() *replicated.Entity {
	return &replicated.Entity{
		Service: serviceName,
		Options: component.Options{
			EntityType:       "rc",
			WriteConsistency: component.WriteConsistencyMajority,
		},
		CommandHandlers: map[string]replicated.CommandHandler{
			"Inc": func(ctx *replicated.CommandContext, payload any) (*reply.Reply, error) {
				if ctx.State() == nil {
					if err := ctx.SetState(crdt.NewCounter()); err != nil {
						return nil, err
					}
				}
				ctx.State().(*crdt.Counter).Increment(payload.(int64))
				return reply.Message(ctx.State().(*crdt.Counter).Value()), nil
			},
			"Get": func(ctx *replicated.CommandContext, payload any) (*reply.Reply, error) {
				var value int64
				if counter, ok := ctx.State().(*crdt.Counter); ok {
					value = counter.Value()
				}
				return reply.Message(value), nil
			},
			"Watch": func(ctx *replicated.CommandContext, payload any) (*reply.Reply, error) {
				ctx.OnStateChange(func(sctx *replicated.StreamedContext, state crdt.State) (*reply.Reply, error) {
					return reply.Message(state.(*crdt.Counter).Value()), nil
				})
				ctx.OnStreamCancel(func(sctx *replicated.StreamedContext, state crdt.State) {})
				return reply.NoReply(), nil
			},
			"Drop": func(ctx *replicated.CommandContext, payload any) (*reply.Reply, error) {
				ctx.Delete()
				return reply.NoReply(), nil
			},
		},
	}
}

func newServer(t *testing.T) (*replicated.Server, *anysupport.AnySupport) {
	t.Helper()
	as := testutil.NewTestAnySupport()
	registry := component.NewRegistry(nil)
	require.NoError(t, registry.Register(counterEntity()))

	effects := effect.NewSerializer(as)
	desc, err := as.Files().FindDescriptorByName(protoreflect.FullName(serviceName))
	require.NoError(t, err)
	effects.RegisterService(desc.(protoreflect.ServiceDescriptor))

	srv := replicated.NewServer(&testutil.TestLogger{}, registry, as, effects, eventbus.NewBus(nil))
	return srv, as
}

func initFrame(delta *protocol.ReplicatedEntityDelta) *protocol.ReplicatedEntityStreamIn {
	return &protocol.ReplicatedEntityStreamIn{
		Init: &protocol.ReplicatedEntityInit{ServiceName: serviceName, EntityId: "e-1", Delta: delta},
	}
}

func commandFrame(t *testing.T, as *anysupport.AnySupport, id int64, name string, payload any, streamed bool) *protocol.ReplicatedEntityStreamIn {
	t.Helper()
	cmd := &protocol.Command{EntityId: "e-1", Id: id, Name: name, Streamed: streamed}
	if payload != nil {
		encoded, err := as.Encode(payload)
		require.NoError(t, err)
		cmd.Payload = encoded
	}
	return &protocol.ReplicatedEntityStreamIn{Command: cmd}
}

func counterDelta(change int64) *protocol.ReplicatedEntityDelta {
	return &protocol.ReplicatedEntityDelta{Counter: &protocol.CounterDelta{Change: change}}
}

func TestHandle_CommandProducesOutboundDelta(t *testing.T) {
	srv, as := newServer(t)
	stream := testutil.NewReplicatedEntityStream()

	stream.In <- initFrame(nil)
	stream.In <- commandFrame(t, as, 1, "Inc", int64(5), false)
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Reply)
	require.NotNil(t, out[0].Reply.StateAction)
	require.NotNil(t, out[0].Reply.StateAction.Update)
	require.NotNil(t, out[0].Reply.StateAction.Update.Counter)
	assert.Equal(t, int64(5), out[0].Reply.StateAction.Update.Counter.Change)
}

func TestHandle_InitDeltaConstructsState(t *testing.T) {
	srv, as := newServer(t)
	stream := testutil.NewReplicatedEntityStream()

	stream.In <- initFrame(counterDelta(7))
	stream.In <- commandFrame(t, as, 1, "Get", "x", false)
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 1)
	decoded, err := as.Decode(out[0].Reply.ClientAction.Reply.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(7), decoded)

	// Reading the state produces no outbound delta.
	assert.Nil(t, out[0].Reply.StateAction)
}

func TestHandle_InboundDeltaMergesIntoState(t *testing.T) {
	srv, as := newServer(t)
	stream := testutil.NewReplicatedEntityStream()

	stream.In <- initFrame(counterDelta(7))
	stream.In <- &protocol.ReplicatedEntityStreamIn{Delta: counterDelta(3)}
	stream.In <- commandFrame(t, as, 1, "Get", "x", false)
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 1)
	decoded, err := as.Decode(out[0].Reply.ClientAction.Reply.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(10), decoded)
}

func TestHandle_OnStateSetHookRuns(t *testing.T) {
	as := testutil.NewTestAnySupport()
	registry := component.NewRegistry(nil)

	var hookEntity string
	var hookState crdt.State
	entity := counterEntity()
	entity.OnStateSet = func(state crdt.State, entityID string) {
		hookEntity = entityID
		hookState = state
	}
	require.NoError(t, registry.Register(entity))
	srv := replicated.NewServer(&testutil.TestLogger{}, registry, as, effect.NewSerializer(as), eventbus.NewBus(nil))

	stream := testutil.NewReplicatedEntityStream()
	stream.In <- initFrame(counterDelta(1))
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	assert.Equal(t, "e-1", hookEntity)
	require.NotNil(t, hookState)
	assert.IsType(t, &crdt.Counter{}, hookState)
}

func TestHandle_StreamedCommandPushesOnInboundDelta(t *testing.T) {
	srv, as := newServer(t)
	stream := testutil.NewReplicatedEntityStream()

	stream.In <- initFrame(counterDelta(1))
	stream.In <- commandFrame(t, as, 10, "Watch", "x", true)
	stream.In <- &protocol.ReplicatedEntityStreamIn{Delta: counterDelta(4)}
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 2)

	require.NotNil(t, out[0].Reply)
	assert.Equal(t, int64(10), out[0].Reply.CommandId)

	push := out[1].StreamedMessage
	require.NotNil(t, push)
	assert.Equal(t, int64(10), push.CommandId)
	decoded, err := as.Decode(push.ClientAction.Reply.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(5), decoded)
	assert.False(t, push.EndStream)
}

func TestHandle_StreamedCommandPushesOnLocalChange(t *testing.T) {
	srv, as := newServer(t)
	stream := testutil.NewReplicatedEntityStream()

	stream.In <- initFrame(counterDelta(1))
	stream.In <- commandFrame(t, as, 10, "Watch", "x", true)
	stream.In <- commandFrame(t, as, 11, "Inc", int64(2), false)
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 3)

	require.NotNil(t, out[1].Reply)
	assert.Equal(t, int64(11), out[1].Reply.CommandId)

	push := out[2].StreamedMessage
	require.NotNil(t, push)
	assert.Equal(t, int64(10), push.CommandId)
	decoded, err := as.Decode(push.ClientAction.Reply.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(3), decoded)
}

func TestHandle_StreamCancelledInvokesCallback(t *testing.T) {
	srv, as := newServer(t)
	stream := testutil.NewReplicatedEntityStream()

	stream.In <- initFrame(counterDelta(1))
	stream.In <- commandFrame(t, as, 10, "Watch", "x", true)
	stream.In <- &protocol.ReplicatedEntityStreamIn{
		StreamCancelled: &protocol.StreamCancelled{EntityId: "e-1", Id: 10},
	}
	// After cancellation no pushes reach the closed stream.
	stream.In <- &protocol.ReplicatedEntityStreamIn{Delta: counterDelta(4)}
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 2)
	require.NotNil(t, out[1].StreamCancelledResponse)
	assert.Equal(t, int64(10), out[1].StreamCancelledResponse.CommandId)
}

func TestHandle_DeleteEmitsDeleteAction(t *testing.T) {
	srv, as := newServer(t)
	stream := testutil.NewReplicatedEntityStream()

	stream.In <- initFrame(counterDelta(1))
	stream.In <- commandFrame(t, as, 1, "Drop", "x", false)
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Reply.StateAction)
	assert.NotNil(t, out[0].Reply.StateAction.Delete)
}

func TestHandle_SetStateTwiceFailsCommand(t *testing.T) {
	as := testutil.NewTestAnySupport()
	registry := component.NewRegistry(nil)
	entity := counterEntity()
	entity.CommandHandlers["Reset"] = func(ctx *replicated.CommandContext, payload any) (*reply.Reply, error) {
		if err := ctx.SetState(crdt.NewCounter()); err != nil {
			return nil, err
		}
		return reply.NoReply(), nil
	}
	require.NoError(t, registry.Register(entity))
	srv := replicated.NewServer(&testutil.TestLogger{}, registry, as, effect.NewSerializer(as), eventbus.NewBus(nil))

	stream := testutil.NewReplicatedEntityStream()
	stream.In <- initFrame(counterDelta(1))
	stream.In <- commandFrame(t, as, 1, "Reset", "x", false)
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Reply.ClientAction.Failure)
}

func TestHandle_IncompatibleInboundDeltaIsUnrecoverable(t *testing.T) {
	srv, _ := newServer(t)
	stream := testutil.NewReplicatedEntityStream()

	stream.In <- initFrame(counterDelta(1))
	stream.In <- &protocol.ReplicatedEntityStreamIn{
		Delta: &protocol.ReplicatedEntityDelta{Vote: &protocol.VoteDelta{SelfVote: true}},
	}
	close(stream.In)

	assert.Error(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 1)
	assert.NotNil(t, out[0].Failure)
}
