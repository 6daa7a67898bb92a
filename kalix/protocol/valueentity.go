package protocol

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// =============================================================================
// VALUE ENTITY FRAMES
// =============================================================================

// ValueEntityInitState carries the persisted state, when any exists.
type ValueEntityInitState struct {
	Value *Any
}

func (m *ValueEntityInitState) marshalAppend(b []byte) []byte {
	if m.Value != nil {
		b = appendMessage(b, 1, m.Value)
	}
	return b
}

func (m *ValueEntityInitState) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			m.Value = new(Any)
			return consumeMessage(b, m.Value)
		}
		return 0, nil
	})
}

// ValueEntityInit is the first frame of a value entity stream.
type ValueEntityInit struct {
	ServiceName string
	EntityId    string
	State       *ValueEntityInitState
}

func (m *ValueEntityInit) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.ServiceName)
	b = appendString(b, 2, m.EntityId)
	if m.State != nil {
		b = appendMessage(b, 3, m.State)
	}
	return b
}

func (m *ValueEntityInit) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.ServiceName)
		case 2:
			return consumeString(b, &m.EntityId)
		case 3:
			m.State = new(ValueEntityInitState)
			return consumeMessage(b, m.State)
		}
		return 0, nil
	})
}

// ValueEntityStreamIn is an inbound value entity frame: init or command.
type ValueEntityStreamIn struct {
	Init    *ValueEntityInit
	Command *Command
}

func (m *ValueEntityStreamIn) marshalAppend(b []byte) []byte {
	if m.Init != nil {
		b = appendMessage(b, 1, m.Init)
	}
	if m.Command != nil {
		b = appendMessage(b, 2, m.Command)
	}
	return b
}

func (m *ValueEntityStreamIn) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Init = new(ValueEntityInit)
			return consumeMessage(b, m.Init)
		case 2:
			m.Command = new(Command)
			return consumeMessage(b, m.Command)
		}
		return 0, nil
	})
}

// ValueEntityUpdate persists a new state value.
type ValueEntityUpdate struct {
	Value *Any
}

func (m *ValueEntityUpdate) marshalAppend(b []byte) []byte {
	if m.Value != nil {
		b = appendMessage(b, 1, m.Value)
	}
	return b
}

func (m *ValueEntityUpdate) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			m.Value = new(Any)
			return consumeMessage(b, m.Value)
		}
		return 0, nil
	})
}

// ValueEntityDelete removes the persisted state value.
type ValueEntityDelete struct{}

func (m *ValueEntityDelete) marshalAppend(b []byte) []byte { return b }
func (m *ValueEntityDelete) unmarshal(b []byte) error      { return nil }

// ValueEntityStateAction is the state mutation attached to a reply.
type ValueEntityStateAction struct {
	Update *ValueEntityUpdate
	Delete *ValueEntityDelete
}

func (m *ValueEntityStateAction) marshalAppend(b []byte) []byte {
	if m.Update != nil {
		b = appendMessage(b, 1, m.Update)
	}
	if m.Delete != nil {
		b = appendMessage(b, 2, m.Delete)
	}
	return b
}

func (m *ValueEntityStateAction) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Update = new(ValueEntityUpdate)
			return consumeMessage(b, m.Update)
		case 2:
			m.Delete = new(ValueEntityDelete)
			return consumeMessage(b, m.Delete)
		}
		return 0, nil
	})
}

// ValueEntityReply is the outcome of one command.
type ValueEntityReply struct {
	CommandId    int64
	ClientAction *ClientAction
	SideEffects  []*SideEffect
	StateAction  *ValueEntityStateAction
}

func (m *ValueEntityReply) marshalAppend(b []byte) []byte {
	b = appendInt64(b, 1, m.CommandId)
	if m.ClientAction != nil {
		b = appendMessage(b, 2, m.ClientAction)
	}
	for _, e := range m.SideEffects {
		b = appendMessage(b, 3, e)
	}
	if m.StateAction != nil {
		b = appendMessage(b, 4, m.StateAction)
	}
	return b
}

func (m *ValueEntityReply) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt64(b, &m.CommandId)
		case 2:
			m.ClientAction = new(ClientAction)
			return consumeMessage(b, m.ClientAction)
		case 3:
			e := new(SideEffect)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.SideEffects = append(m.SideEffects, e)
			return n, nil
		case 4:
			m.StateAction = new(ValueEntityStateAction)
			return consumeMessage(b, m.StateAction)
		}
		return 0, nil
	})
}

// ValueEntityStreamOut is an outbound value entity frame: reply or failure.
type ValueEntityStreamOut struct {
	Reply   *ValueEntityReply
	Failure *Failure
}

func (m *ValueEntityStreamOut) marshalAppend(b []byte) []byte {
	if m.Reply != nil {
		b = appendMessage(b, 1, m.Reply)
	}
	if m.Failure != nil {
		b = appendMessage(b, 2, m.Failure)
	}
	return b
}

func (m *ValueEntityStreamOut) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Reply = new(ValueEntityReply)
			return consumeMessage(b, m.Reply)
		case 2:
			m.Failure = new(Failure)
			return consumeMessage(b, m.Failure)
		}
		return 0, nil
	})
}

// =============================================================================
// VALUE ENTITY SERVICE
// =============================================================================

// ValueEntitiesServiceName is the fully-qualified value entity service name.
const ValueEntitiesServiceName = "kalix.component.valueentity.ValueEntities"

// ValueEntitiesServer is implemented by the SDK's value entity handler.
type ValueEntitiesServer interface {
	Handle(ValueEntities_HandleServer) error
}

// ValueEntities_HandleServer is the server view of one entity stream.
type ValueEntities_HandleServer interface {
	Send(*ValueEntityStreamOut) error
	Recv() (*ValueEntityStreamIn, error)
	grpc.ServerStream
}

type valueEntitiesHandleServer struct {
	grpc.ServerStream
}

func (x *valueEntitiesHandleServer) Send(m *ValueEntityStreamOut) error {
	return x.ServerStream.SendMsg(m)
}

func (x *valueEntitiesHandleServer) Recv() (*ValueEntityStreamIn, error) {
	m := new(ValueEntityStreamIn)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _ValueEntities_Handle_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ValueEntitiesServer).Handle(&valueEntitiesHandleServer{stream})
}

// ValueEntitiesServiceDesc registers the value entity service on a gRPC server.
var ValueEntitiesServiceDesc = grpc.ServiceDesc{
	ServiceName: ValueEntitiesServiceName,
	HandlerType: (*ValueEntitiesServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Handle",
			Handler:       _ValueEntities_Handle_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "kalix/protocol/value_entity.proto",
}
