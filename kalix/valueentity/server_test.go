package valueentity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/eventbus"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
	"github.com/lightbend/kalix-go-sdk/kalix/reply"
	"github.com/lightbend/kalix-go-sdk/kalix/testutil"
	"github.com/lightbend/kalix-go-sdk/kalix/valueentity"
)

const serviceName = "com.example.ExampleService"

// counterEntity is a value entity holding an int64 state.
func counterEntity() *valueentity.Entity {
	return &valueentity.Entity{
		Service: serviceName,
		Options: component.Options{EntityType: "counter"},
		InitialState: func(entityID string) any {
			return int64(0)
		},
		Handlers: map[string]valueentity.CommandHandler{
			"Get": func(ctx *valueentity.CommandContext, payload any) (*reply.Reply, error) {
				return reply.Message(ctx.State), nil
			},
			"Set": func(ctx *valueentity.CommandContext, payload any) (*reply.Reply, error) {
				ctx.UpdateState(payload)
				return reply.Message(payload), nil
			},
			"Delete": func(ctx *valueentity.CommandContext, payload any) (*reply.Reply, error) {
				ctx.DeleteState()
				return reply.NoReply(), nil
			},
			"Fail": func(ctx *valueentity.CommandContext, payload any) (*reply.Reply, error) {
				ctx.Fail("rejected")
				return nil, nil
			},
			"Boom": func(ctx *valueentity.CommandContext, payload any) (*reply.Reply, error) {
				panic("handler exploded")
			},
		},
	}
}

func newServer(t *testing.T, entity *valueentity.Entity) (*valueentity.Server, *anysupport.AnySupport) {
	t.Helper()
	as := testutil.NewTestAnySupport()
	registry := component.NewRegistry(nil)
	require.NoError(t, registry.Register(entity))

	// Mirror runtime start: registered component services are valid effect
	// targets.
	effects := effect.NewSerializer(as)
	desc, err := as.Files().FindDescriptorByName(protoreflect.FullName(entity.Service))
	require.NoError(t, err)
	effects.RegisterService(desc.(protoreflect.ServiceDescriptor))

	srv := valueentity.NewServer(&testutil.TestLogger{}, registry, as, effects, eventbus.NewBus(nil))
	return srv, as
}

func initFrame(entityID string) *protocol.ValueEntityStreamIn {
	return &protocol.ValueEntityStreamIn{
		Init: &protocol.ValueEntityInit{ServiceName: serviceName, EntityId: entityID},
	}
}

func commandFrame(t *testing.T, as *anysupport.AnySupport, id int64, name string, payload any) *protocol.ValueEntityStreamIn {
	t.Helper()
	cmd := &protocol.Command{EntityId: "e-1", Id: id, Name: name}
	if payload != nil {
		encoded, err := as.Encode(payload)
		require.NoError(t, err)
		cmd.Payload = encoded
	}
	return &protocol.ValueEntityStreamIn{Command: cmd}
}

func TestHandle_GetReturnsInitialState(t *testing.T) {
	srv, as := newServer(t, counterEntity())
	stream := testutil.NewValueEntityStream()

	stream.In <- initFrame("e-1")
	stream.In <- commandFrame(t, as, 1, "Get", "ignored")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Reply)
	assert.Equal(t, int64(1), out[0].Reply.CommandId)

	payload := out[0].Reply.ClientAction.Reply.Payload
	decoded, err := as.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(0), decoded)
}

func TestHandle_UpdateStatePersistsAndCarriesStateAction(t *testing.T) {
	srv, as := newServer(t, counterEntity())
	stream := testutil.NewValueEntityStream()

	stream.In <- initFrame("e-1")
	stream.In <- commandFrame(t, as, 1, "Set", int64(42))
	stream.In <- commandFrame(t, as, 2, "Get", "x")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 2)

	// The set reply carries the update state action.
	action := out[0].Reply.StateAction
	require.NotNil(t, action)
	require.NotNil(t, action.Update)
	updated, err := as.Decode(action.Update.Value)
	require.NoError(t, err)
	assert.Equal(t, int64(42), updated)

	// The next command sees the updated state, in FIFO order.
	got, err := as.Decode(out[1].Reply.ClientAction.Reply.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestHandle_InitWithPersistedState(t *testing.T) {
	srv, as := newServer(t, counterEntity())
	stream := testutil.NewValueEntityStream()

	persisted, err := as.Encode(int64(7))
	require.NoError(t, err)
	stream.In <- &protocol.ValueEntityStreamIn{
		Init: &protocol.ValueEntityInit{
			ServiceName: serviceName,
			EntityId:    "e-1",
			State:       &protocol.ValueEntityInitState{Value: persisted},
		},
	}
	stream.In <- commandFrame(t, as, 1, "Get", "x")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 1)
	got, err := as.Decode(out[0].Reply.ClientAction.Reply.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}

func TestHandle_DeleteStateResetsToInitial(t *testing.T) {
	srv, as := newServer(t, counterEntity())
	stream := testutil.NewValueEntityStream()

	stream.In <- initFrame("e-1")
	stream.In <- commandFrame(t, as, 1, "Set", int64(9))
	stream.In <- commandFrame(t, as, 2, "Delete", "x")
	stream.In <- commandFrame(t, as, 3, "Get", "x")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 3)

	require.NotNil(t, out[1].Reply.StateAction)
	assert.NotNil(t, out[1].Reply.StateAction.Delete)
	assert.Nil(t, out[1].Reply.StateAction.Update)

	got, err := as.Decode(out[2].Reply.ClientAction.Reply.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestHandle_FailDiscardsStateChangesAndContinues(t *testing.T) {
	entity := counterEntity()
	entity.Handlers["FailAfterUpdate"] = func(ctx *valueentity.CommandContext, payload any) (*reply.Reply, error) {
		ctx.UpdateState(int64(99))
		ctx.Fail("rejected")
		return nil, nil
	}
	srv, as := newServer(t, entity)
	stream := testutil.NewValueEntityStream()

	stream.In <- initFrame("e-1")
	stream.In <- commandFrame(t, as, 1, "FailAfterUpdate", "x")
	stream.In <- commandFrame(t, as, 2, "Get", "x")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 2)

	failure := out[0].Reply.ClientAction.Failure
	require.NotNil(t, failure)
	assert.Equal(t, "rejected", failure.Description)
	assert.Nil(t, out[0].Reply.StateAction)

	// The instance survives and state was not touched.
	got, err := as.Decode(out[1].Reply.ClientAction.Reply.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestHandle_PanicBecomesFailureReply(t *testing.T) {
	srv, as := newServer(t, counterEntity())
	stream := testutil.NewValueEntityStream()

	stream.In <- initFrame("e-1")
	stream.In <- commandFrame(t, as, 1, "Boom", "x")
	stream.In <- commandFrame(t, as, 2, "Get", "x")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Reply.ClientAction.Failure)
	assert.Contains(t, out[0].Reply.ClientAction.Failure.Description, "panic")
	require.NotNil(t, out[1].Reply.ClientAction.Reply)
}

func TestHandle_UnknownCommandFailsCommandOnly(t *testing.T) {
	srv, as := newServer(t, counterEntity())
	stream := testutil.NewValueEntityStream()

	stream.In <- initFrame("e-1")
	stream.In <- commandFrame(t, as, 1, "Nope", "x")
	stream.In <- commandFrame(t, as, 2, "Get", "x")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Reply.ClientAction.Failure)
	assert.Contains(t, out[0].Reply.ClientAction.Failure.Description, "unknown command")
}

func TestHandle_UnknownServiceClosesStream(t *testing.T) {
	srv, _ := newServer(t, counterEntity())
	stream := testutil.NewValueEntityStream()

	stream.In <- &protocol.ValueEntityStreamIn{
		Init: &protocol.ValueEntityInit{ServiceName: "com.example.Nope", EntityId: "e-1"},
	}
	close(stream.In)

	assert.Error(t, srv.Handle(stream))
}

func TestHandle_CommandBeforeInitIsProtocolError(t *testing.T) {
	srv, as := newServer(t, counterEntity())
	stream := testutil.NewValueEntityStream()

	stream.In <- commandFrame(t, as, 1, "Get", "x")
	close(stream.In)

	assert.Error(t, srv.Handle(stream))
}

func TestHandle_FifoOrderPreserved(t *testing.T) {
	srv, as := newServer(t, counterEntity())
	stream := testutil.NewValueEntityStream()

	stream.In <- initFrame("e-1")
	for i := int64(1); i <= 20; i++ {
		stream.In <- commandFrame(t, as, i, "Set", i)
	}
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 20)
	for i, frame := range out {
		assert.Equal(t, int64(i+1), frame.Reply.CommandId)
	}
}

func TestHandle_EffectsAccompanyReply(t *testing.T) {
	entity := counterEntity()
	entity.Handlers["WithEffect"] = func(ctx *valueentity.CommandContext, payload any) (*reply.Reply, error) {
		if err := ctx.EffectNamed("com.example.ExampleService/DoSomething", "fire", true, nil); err != nil {
			return nil, err
		}
		return reply.Message("done"), nil
	}
	entity.Handlers["BadEffect"] = func(ctx *valueentity.CommandContext, payload any) (*reply.Reply, error) {
		if err := ctx.EffectNamed("com.example.ExampleServiceTwo/DoSomethingTwo", "fire", false, nil); err != nil {
			return nil, err
		}
		return reply.Message("done"), nil
	}
	srv, as := newServer(t, entity)

	stream := testutil.NewValueEntityStream()
	stream.In <- initFrame("e-1")
	stream.In <- commandFrame(t, as, 1, "WithEffect", "x")
	stream.In <- commandFrame(t, as, 2, "BadEffect", "x")
	close(stream.In)

	require.NoError(t, srv.Handle(stream))
	out := stream.Out()
	require.Len(t, out, 2)

	require.Len(t, out[0].Reply.SideEffects, 1)
	assert.Equal(t, "com.example.ExampleService", out[0].Reply.SideEffects[0].ServiceName)
	assert.True(t, out[0].Reply.SideEffects[0].Synchronous)

	// An effect on an unregistered service fails the command.
	require.NotNil(t, out[1].Reply.ClientAction.Failure)
}
