package eventsourced_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/eventbus"
	"github.com/lightbend/kalix-go-sdk/kalix/eventsourced"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
	"github.com/lightbend/kalix-go-sdk/kalix/reply"
	"github.com/lightbend/kalix-go-sdk/kalix/testutil"
)

const serviceName = "com.example.ExampleService"

// stateValue reads the value field from a dynamic com.example.State message.
func stateValue(state any) int64 {
	return testutil.MessageField(state.(proto.Message), "value").(int64)
}

// valueEntity is an event sourced entity whose state is com.example.State and
// whose only event is com.example.ValueSet.
func valueEntity(as *anysupport.AnySupport, snapshotEvery int32) *eventsourced.Entity {
	newState := func(value int64) proto.Message {
		return testutil.NewTestMessage(as, "com.example.State", map[string]any{"value": value})
	}
	return &eventsourced.Entity{
		Service: serviceName,
		Options: component.Options{EntityType: "es", SnapshotEvery: snapshotEvery},
		InitialState: func(entityID string) any {
			return newState(0)
		},
		EventHandlers: map[string]eventsourced.EventHandler{
			"ValueSet": func(ctx *eventsourced.EventContext, event any, state any) (any, error) {
				value := testutil.MessageField(event.(proto.Message), "value").(int64)
				return newState(value), nil
			},
		},
		CommandHandlers: map[string]eventsourced.CommandHandler{
			"GetValue": func(ctx *eventsourced.CommandContext, payload any) (*reply.Reply, error) {
				return reply.Message(int64(stateValue(ctx.State()))), nil
			},
			"SetValue": func(ctx *eventsourced.CommandContext, payload any) (*reply.Reply, error) {
				event := testutil.NewTestMessage(as, "com.example.ValueSet", map[string]any{"value": payload.(int64)})
				if err := ctx.Emit(event); err != nil {
					return nil, err
				}
				return reply.Message(payload), nil
			},
			"FailAfterEmit": func(ctx *eventsourced.CommandContext, payload any) (*reply.Reply, error) {
				event := testutil.NewTestMessage(as, "com.example.ValueSet", map[string]any{"value": int64(99)})
				if err := ctx.Emit(event); err != nil {
					return nil, err
				}
				ctx.Fail("rejected after emit")
				return nil, nil
			},
		},
	}
}

func newServer(t *testing.T, snapshotEvery int32) (*eventsourced.Server, *anysupport.AnySupport) {
	t.Helper()
	as := testutil.NewTestAnySupport()
	registry := component.NewRegistry(nil)
	require.NoError(t, registry.Register(valueEntity(as, snapshotEvery)))

	effects := effect.NewSerializer(as)
	desc, err := as.Files().FindDescriptorByName(protoreflect.FullName(serviceName))
	require.NoError(t, err)
	effects.RegisterService(desc.(protoreflect.ServiceDescriptor))

	srv := eventsourced.NewServer(&testutil.TestLogger{}, registry, as, effects, eventbus.NewBus(nil))
	return srv, as
}

func initFrame(entityID string) *protocol.EventSourcedStreamIn {
	return &protocol.EventSourcedStreamIn{
		Init: &protocol.EventSourcedInit{ServiceName: serviceName, EntityId: entityID},
	}
}

func commandFrame(t *testing.T, as *anysupport.AnySupport, id int64, name string, payload any) *protocol.EventSourcedStreamIn {
	t.Helper()
	cmd := &protocol.Command{EntityId: "e-1", Id: id, Name: name}
	if payload != nil {
		encoded, err := as.Encode(payload)
		require.NoError(t, err)
		cmd.Payload = encoded
	}
	return &protocol.EventSourcedStreamIn{Command: cmd}
}

func decodeReply(t *testing.T, as *anysupport.AnySupport, out *protocol.EventSourcedStreamOut) any {
	t.Helper()
	require.NotNil(t, out.Reply)
	require.NotNil(t, out.Reply.ClientAction)
	require.NotNil(t, out.Reply.ClientAction.Reply)
	decoded, err := as.Decode(out.Reply.ClientAction.Reply.Payload)
	require.NoError(t, err)
	return decoded
}

func TestHandle_EmitUpdatesStateAndReplyCarriesEvent(t *testing.T) {
	srv, as := newServer(t, -1)
	stream := testutil.NewEventSourcedStream()

	stream.In <- initFrame("e-1")
	stream.In <- commandFrame(t, as, 1, "GetValue", "x")
	stream.In <- commandFrame(t, as, 2, "SetValue", int64(42))
	stream.In <- commandFrame(t, as, 3, "GetValue", "x")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 3)

	assert.Equal(t, int64(0), decodeReply(t, as, out[0]))
	assert.Equal(t, int64(42), decodeReply(t, as, out[2]))

	require.Len(t, out[1].Reply.Events, 1)
	event, err := as.Decode(out[1].Reply.Events[0])
	require.NoError(t, err)
	assert.Equal(t, int64(42), testutil.MessageField(event.(proto.Message), "value"))
	assert.Nil(t, out[1].Reply.Snapshot)
}

func TestHandle_ReplayFromSnapshotAndEvents(t *testing.T) {
	srv, as := newServer(t, -1)
	stream := testutil.NewEventSourcedStream()

	snapshot, err := as.Encode(testutil.NewTestMessage(as, "com.example.State", map[string]any{"value": int64(10)}))
	require.NoError(t, err)
	event, err := as.Encode(testutil.NewTestMessage(as, "com.example.ValueSet", map[string]any{"value": int64(42)}))
	require.NoError(t, err)

	stream.In <- &protocol.EventSourcedStreamIn{
		Init: &protocol.EventSourcedInit{
			ServiceName: serviceName,
			EntityId:    "e-1",
			Snapshot:    &protocol.EventSourcedSnapshot{SnapshotSequence: 5, Snapshot: snapshot},
		},
	}
	stream.In <- &protocol.EventSourcedStreamIn{
		Event: &protocol.EventSourcedEvent{Sequence: 6, Payload: event},
	}
	stream.In <- commandFrame(t, as, 1, "GetValue", "x")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 1)
	assert.Equal(t, int64(42), decodeReply(t, as, out[0]))
}

// Replayed state matches the state reached by executing the same commands
// live.
func TestHandle_ReplayMatchesLiveExecution(t *testing.T) {
	srv, as := newServer(t, -1)

	// Live: set 42 and record the emitted event.
	live := testutil.NewEventSourcedStream()
	live.In <- initFrame("e-live")
	live.In <- commandFrame(t, as, 1, "SetValue", int64(42))
	close(live.In)
	require.NoError(t, srv.Handle(live))
	liveOut := live.Out()
	require.Len(t, liveOut, 1)
	require.Len(t, liveOut[0].Reply.Events, 1)
	emitted := liveOut[0].Reply.Events[0]

	// Restart: replay the recorded event on a fresh instance.
	replay := testutil.NewEventSourcedStream()
	replay.In <- initFrame("e-live")
	replay.In <- &protocol.EventSourcedStreamIn{
		Event: &protocol.EventSourcedEvent{Sequence: 1, Payload: emitted},
	}
	replay.In <- commandFrame(t, as, 2, "GetValue", "x")
	close(replay.In)
	require.NoError(t, srv.Handle(replay))
	replayOut := replay.Out()
	require.Len(t, replayOut, 1)
	assert.Equal(t, int64(42), decodeReply(t, as, replayOut[0]))
}

func TestHandle_SnapshotEveryThreshold(t *testing.T) {
	srv, as := newServer(t, 2)
	stream := testutil.NewEventSourcedStream()

	stream.In <- initFrame("e-1")
	stream.In <- commandFrame(t, as, 1, "SetValue", int64(1))
	stream.In <- commandFrame(t, as, 2, "SetValue", int64(2))
	stream.In <- commandFrame(t, as, 3, "SetValue", int64(3))
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 3)

	assert.Nil(t, out[0].Reply.Snapshot)
	require.NotNil(t, out[1].Reply.Snapshot)
	snapshot, err := as.Decode(out[1].Reply.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, int64(2), testutil.MessageField(snapshot.(proto.Message), "value"))

	// The counter reset after the snapshot.
	assert.Nil(t, out[2].Reply.Snapshot)
}

func TestHandle_FailureDiscardsEmits(t *testing.T) {
	srv, as := newServer(t, -1)
	stream := testutil.NewEventSourcedStream()

	stream.In <- initFrame("e-1")
	stream.In <- commandFrame(t, as, 1, "SetValue", int64(5))
	stream.In <- commandFrame(t, as, 2, "FailAfterEmit", "x")
	stream.In <- commandFrame(t, as, 3, "GetValue", "x")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 3)

	failure := out[1].Reply.ClientAction.Failure
	require.NotNil(t, failure)
	assert.Equal(t, "rejected after emit", failure.Description)
	assert.Empty(t, out[1].Reply.Events)

	// The uncommitted emit did not change the state.
	assert.Equal(t, int64(5), decodeReply(t, as, out[2]))
}

func TestHandle_UnknownEventTypeDuringReplayIsUnrecoverable(t *testing.T) {
	srv, as := newServer(t, -1)
	stream := testutil.NewEventSourcedStream()

	unknown, err := as.Encode(testutil.NewTestMessage(as, "com.example.Out", map[string]any{"message": "?"}))
	require.NoError(t, err)

	stream.In <- initFrame("e-1")
	stream.In <- &protocol.EventSourcedStreamIn{
		Event: &protocol.EventSourcedEvent{Sequence: 1, Payload: unknown},
	}
	close(stream.In)

	assert.Error(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Failure)
	assert.Contains(t, out[0].Failure.Description, "no event handler")
}
