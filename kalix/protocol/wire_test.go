package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, in, out Message) {
	t.Helper()
	require.NoError(t, Unmarshal(Marshal(in), out))
}

func TestAny_RoundTrip(t *testing.T) {
	in := &Any{TypeUrl: "type.googleapis.com/com.example.In", Value: []byte{1, 2, 3}}
	out := new(Any)
	roundTrip(t, in, out)
	assert.Equal(t, in.TypeUrl, out.TypeUrl)
	assert.Equal(t, in.Value, out.Value)
}

func TestCommand_RoundTrip(t *testing.T) {
	in := &Command{
		EntityId: "entity-1",
		Id:       42,
		Name:     "DoSomething",
		Payload:  &Any{TypeUrl: "p.kalix.io/string", Value: []byte{0x0a, 0x01, 'x'}},
		Streamed: true,
		Metadata: &Metadata{Entries: []*MetadataEntry{
			{Key: "Header", StringValue: "value"},
			{Key: "Raw", BytesValue: []byte{9}},
		}},
	}
	out := new(Command)
	roundTrip(t, in, out)
	assert.Equal(t, "entity-1", out.EntityId)
	assert.Equal(t, int64(42), out.Id)
	assert.Equal(t, "DoSomething", out.Name)
	assert.True(t, out.Streamed)
	require.NotNil(t, out.Payload)
	assert.Equal(t, in.Payload.Value, out.Payload.Value)
	require.NotNil(t, out.Metadata)
	require.Len(t, out.Metadata.Entries, 2)
	assert.Equal(t, "value", out.Metadata.Entries[0].StringValue)
	assert.Equal(t, []byte{9}, out.Metadata.Entries[1].BytesValue)
}

func TestValueEntityStreamOut_RoundTrip(t *testing.T) {
	in := &ValueEntityStreamOut{
		Reply: &ValueEntityReply{
			CommandId: 7,
			ClientAction: &ClientAction{
				Reply: &Reply{Payload: &Any{TypeUrl: "p.kalix.io/int64", Value: []byte{0x08, 0x2a}}},
			},
			SideEffects: []*SideEffect{
				{ServiceName: "com.example.ExampleService", CommandName: "DoSomething", Synchronous: true},
			},
			StateAction: &ValueEntityStateAction{
				Update: &ValueEntityUpdate{Value: &Any{TypeUrl: "u", Value: []byte{1}}},
			},
		},
	}
	out := new(ValueEntityStreamOut)
	roundTrip(t, in, out)
	require.NotNil(t, out.Reply)
	assert.Equal(t, int64(7), out.Reply.CommandId)
	require.NotNil(t, out.Reply.ClientAction.Reply)
	require.Len(t, out.Reply.SideEffects, 1)
	assert.True(t, out.Reply.SideEffects[0].Synchronous)
	require.NotNil(t, out.Reply.StateAction.Update)
}

func TestValueEntityStateAction_DeletePresenceSurvives(t *testing.T) {
	in := &ValueEntityStateAction{Delete: &ValueEntityDelete{}}
	out := new(ValueEntityStateAction)
	roundTrip(t, in, out)
	assert.NotNil(t, out.Delete)
	assert.Nil(t, out.Update)
}

func TestEventSourcedStreamIn_RoundTrip(t *testing.T) {
	in := &EventSourcedStreamIn{
		Init: &EventSourcedInit{
			ServiceName: "com.example.ExampleService",
			EntityId:    "e-1",
			Snapshot: &EventSourcedSnapshot{
				SnapshotSequence: 100,
				Snapshot:         &Any{TypeUrl: "s", Value: []byte{1}},
			},
		},
	}
	out := new(EventSourcedStreamIn)
	roundTrip(t, in, out)
	require.NotNil(t, out.Init)
	assert.Equal(t, int64(100), out.Init.Snapshot.SnapshotSequence)
}

func TestReplicatedEntityDelta_NestedRoundTrip(t *testing.T) {
	in := &ReplicatedEntityDelta{
		Ormap: &ORMapDelta{
			Cleared: true,
			Removed: []*Any{{TypeUrl: "k", Value: []byte{1}}},
			Added: []*ORMapEntryDelta{
				{
					Key:   &Any{TypeUrl: "k2", Value: []byte{2}},
					Delta: &ReplicatedEntityDelta{Counter: &CounterDelta{Change: -5}},
				},
			},
			Updated: []*ORMapEntryDelta{
				{
					Key:   &Any{TypeUrl: "k3", Value: []byte{3}},
					Delta: &ReplicatedEntityDelta{Set: &SetDelta{Added: []*Any{{TypeUrl: "e"}}}},
				},
			},
		},
	}
	out := new(ReplicatedEntityDelta)
	roundTrip(t, in, out)
	require.NotNil(t, out.Ormap)
	assert.True(t, out.Ormap.Cleared)
	require.Len(t, out.Ormap.Added, 1)
	require.NotNil(t, out.Ormap.Added[0].Delta.Counter)
	assert.Equal(t, int64(-5), out.Ormap.Added[0].Delta.Counter.Change)
	require.Len(t, out.Ormap.Updated, 1)
	require.NotNil(t, out.Ormap.Updated[0].Delta.Set)
}

func TestNegativeVarints_RoundTrip(t *testing.T) {
	in := &CounterDelta{Change: -9223372036854775808}
	out := new(CounterDelta)
	roundTrip(t, in, out)
	assert.Equal(t, int64(-9223372036854775808), out.Change)

	f := &Failure{CommandId: -1, GrpcStatusCode: -2}
	fOut := new(Failure)
	roundTrip(t, f, fOut)
	assert.Equal(t, int64(-1), fOut.CommandId)
	assert.Equal(t, int32(-2), fOut.GrpcStatusCode)
}

func TestSpec_RoundTrip(t *testing.T) {
	in := &Spec{
		Proto: []byte{1, 2, 3},
		Components: []*Component{
			{
				ComponentType: "value-entity",
				ServiceName:   "my-service",
				Entity: &EntitySettings{
					EntityType: "my-entity-type",
					PassivationStrategy: &PassivationStrategy{
						Timeout: &TimeoutPassivationStrategy{Timeout: 10},
					},
					ForwardHeaders:             []string{"x-user"},
					ReplicatedWriteConsistency: ReplicatedWriteConsistencyMajority,
				},
			},
			{ComponentType: "action", ServiceName: "my-action"},
		},
		ServiceInfo: &ServiceInfo{ServiceName: "svc", ServiceVersion: "1.2.3"},
	}
	out := new(Spec)
	roundTrip(t, in, out)
	assert.Equal(t, []byte{1, 2, 3}, out.Proto)
	require.Len(t, out.Components, 2)
	require.NotNil(t, out.Components[0].Entity)
	assert.Equal(t, int64(10), out.Components[0].Entity.PassivationStrategy.Timeout.Timeout)
	assert.Equal(t, []string{"x-user"}, out.Components[0].Entity.ForwardHeaders)
	assert.Nil(t, out.Components[1].Entity)
}

func TestFrameCodec(t *testing.T) {
	codec := FrameCodec{}
	assert.Equal(t, "proto", codec.Name())

	data, err := codec.Marshal(&Command{EntityId: "e"})
	require.NoError(t, err)
	out := new(Command)
	require.NoError(t, codec.Unmarshal(data, out))
	assert.Equal(t, "e", out.EntityId)

	_, err = codec.Marshal("not a frame")
	assert.Error(t, err)
	assert.Error(t, codec.Unmarshal(data, "not a frame"))
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	// A frame from a newer protocol revision with an extra field decodes
	// cleanly.
	data := Marshal(&Command{EntityId: "e", Name: "n"})
	extra := append(append([]byte{}, data...), 0xf8, 0x7f, 0x01) // field 2047, varint 1
	out := new(Command)
	require.NoError(t, Unmarshal(extra, out))
	assert.Equal(t, "e", out.EntityId)
}
