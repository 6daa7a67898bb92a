package effect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/testutil"
)

func serviceDescriptor(t *testing.T, as *anysupport.AnySupport, name string) protoreflect.ServiceDescriptor {
	t.Helper()
	desc, err := as.Files().FindDescriptorByName(protoreflect.FullName(name))
	require.NoError(t, err)
	return desc.(protoreflect.ServiceDescriptor)
}

func newSerializer(t *testing.T) (*anysupport.AnySupport, *effect.Serializer) {
	t.Helper()
	as := testutil.NewTestAnySupport()
	s := effect.NewSerializer(as)
	// Only ExampleService is registered; ExampleServiceTwo is known to the
	// descriptor pool but not to the runtime.
	s.RegisterService(serviceDescriptor(t, as, "com.example.ExampleService"))
	return as, s
}

func TestSerializeCall_ValidMethod(t *testing.T) {
	as, s := newSerializer(t)
	method := serviceDescriptor(t, as, "com.example.ExampleService").Methods().ByName("DoSomething")

	msg := testutil.NewTestMessage(as, "com.example.In", map[string]any{"field": "value"})
	call, err := s.SerializeCall(method, msg, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "com.example.ExampleService", call.ServiceName)
	assert.Equal(t, "DoSomething", call.CommandName)
	assert.True(t, call.Synchronous)
	assert.Equal(t, "type.googleapis.com/com.example.In", call.Payload.TypeUrl)
}

func TestSerializeCall_UnregisteredService(t *testing.T) {
	as, s := newSerializer(t)
	method := serviceDescriptor(t, as, "com.example.ExampleServiceTwo").Methods().ByName("DoSomethingTwo")

	msg := testutil.NewTestMessage(as, "com.example.In", map[string]any{"field": "value"})
	_, err := s.SerializeCall(method, msg, false, nil)
	assert.ErrorIs(t, err, effect.ErrUnknownService)
}

func TestSerializeCallByName(t *testing.T) {
	_, s := newSerializer(t)

	call, err := s.SerializeCallByName("com.example.ExampleService/DoSomething", "payload", false, nil)
	require.NoError(t, err)
	assert.Equal(t, "DoSomething", call.CommandName)

	_, err = s.SerializeCallByName("com.example.ExampleServiceTwo/DoSomethingTwo", "payload", false, nil)
	assert.ErrorIs(t, err, effect.ErrUnknownService)

	_, err = s.SerializeCallByName("com.example.ExampleService/Nope", "payload", false, nil)
	assert.ErrorIs(t, err, effect.ErrMethodNotInService)

	_, err = s.SerializeCallByName("malformed", "payload", false, nil)
	assert.Error(t, err)
}

func TestCallWireForms(t *testing.T) {
	_, s := newSerializer(t)
	call, err := s.SerializeCallByName("com.example.ExampleService/DoSomething", "payload", true, nil)
	require.NoError(t, err)

	se := call.SideEffect()
	assert.Equal(t, call.ServiceName, se.ServiceName)
	assert.True(t, se.Synchronous)

	fwd := call.Forward()
	assert.Equal(t, call.CommandName, fwd.CommandName)
	assert.Equal(t, call.Payload, fwd.Payload)
}

func TestSideEffects_PreservesOrder(t *testing.T) {
	calls := []*effect.Call{
		{CommandName: "one"},
		{CommandName: "two"},
	}
	wire := effect.SideEffects(calls)
	require.Len(t, wire, 2)
	assert.Equal(t, "one", wire[0].CommandName)
	assert.Equal(t, "two", wire[1].CommandName)
	assert.Nil(t, effect.SideEffects(nil))
}
