package protocol

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// =============================================================================
// EVENT SOURCED FRAMES
// =============================================================================

// EventSourcedSnapshot is a state checkpoint taken at a known sequence number.
type EventSourcedSnapshot struct {
	SnapshotSequence int64
	Snapshot         *Any
}

func (m *EventSourcedSnapshot) marshalAppend(b []byte) []byte {
	b = appendInt64(b, 1, m.SnapshotSequence)
	if m.Snapshot != nil {
		b = appendMessage(b, 2, m.Snapshot)
	}
	return b
}

func (m *EventSourcedSnapshot) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt64(b, &m.SnapshotSequence)
		case 2:
			m.Snapshot = new(Any)
			return consumeMessage(b, m.Snapshot)
		}
		return 0, nil
	})
}

// EventSourcedInit is the first frame of an event sourced entity stream.
type EventSourcedInit struct {
	ServiceName string
	EntityId    string
	Snapshot    *EventSourcedSnapshot
}

func (m *EventSourcedInit) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.ServiceName)
	b = appendString(b, 2, m.EntityId)
	if m.Snapshot != nil {
		b = appendMessage(b, 3, m.Snapshot)
	}
	return b
}

func (m *EventSourcedInit) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.ServiceName)
		case 2:
			return consumeString(b, &m.EntityId)
		case 3:
			m.Snapshot = new(EventSourcedSnapshot)
			return consumeMessage(b, m.Snapshot)
		}
		return 0, nil
	})
}

// EventSourcedEvent replays one journal event into the entity.
type EventSourcedEvent struct {
	Sequence int64
	Payload  *Any
}

func (m *EventSourcedEvent) marshalAppend(b []byte) []byte {
	b = appendInt64(b, 1, m.Sequence)
	if m.Payload != nil {
		b = appendMessage(b, 2, m.Payload)
	}
	return b
}

func (m *EventSourcedEvent) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt64(b, &m.Sequence)
		case 2:
			m.Payload = new(Any)
			return consumeMessage(b, m.Payload)
		}
		return 0, nil
	})
}

// EventSourcedStreamIn is an inbound frame: init, event or command.
type EventSourcedStreamIn struct {
	Init    *EventSourcedInit
	Event   *EventSourcedEvent
	Command *Command
}

func (m *EventSourcedStreamIn) marshalAppend(b []byte) []byte {
	if m.Init != nil {
		b = appendMessage(b, 1, m.Init)
	}
	if m.Event != nil {
		b = appendMessage(b, 2, m.Event)
	}
	if m.Command != nil {
		b = appendMessage(b, 3, m.Command)
	}
	return b
}

func (m *EventSourcedStreamIn) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Init = new(EventSourcedInit)
			return consumeMessage(b, m.Init)
		case 2:
			m.Event = new(EventSourcedEvent)
			return consumeMessage(b, m.Event)
		case 3:
			m.Command = new(Command)
			return consumeMessage(b, m.Command)
		}
		return 0, nil
	})
}

// EventSourcedReply is the outcome of one command: the client action plus any
// emitted events and an optional snapshot.
type EventSourcedReply struct {
	CommandId    int64
	ClientAction *ClientAction
	SideEffects  []*SideEffect
	Events       []*Any
	Snapshot     *Any
}

func (m *EventSourcedReply) marshalAppend(b []byte) []byte {
	b = appendInt64(b, 1, m.CommandId)
	if m.ClientAction != nil {
		b = appendMessage(b, 2, m.ClientAction)
	}
	for _, e := range m.SideEffects {
		b = appendMessage(b, 3, e)
	}
	for _, ev := range m.Events {
		b = appendMessage(b, 4, ev)
	}
	if m.Snapshot != nil {
		b = appendMessage(b, 5, m.Snapshot)
	}
	return b
}

func (m *EventSourcedReply) unmarshal(b []byte) error {
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
			ev := new(Any)
			n, err := consumeMessage(b, ev)
			if err != nil {
				return 0, err
			}
			m.Events = append(m.Events, ev)
			return n, nil
		case 5:
			m.Snapshot = new(Any)
			return consumeMessage(b, m.Snapshot)
		}
		return 0, nil
	})
}

// EventSourcedStreamOut is an outbound frame: reply or failure.
type EventSourcedStreamOut struct {
	Reply   *EventSourcedReply
	Failure *Failure
}

func (m *EventSourcedStreamOut) marshalAppend(b []byte) []byte {
	if m.Reply != nil {
		b = appendMessage(b, 1, m.Reply)
	}
	if m.Failure != nil {
		b = appendMessage(b, 2, m.Failure)
	}
	return b
}

func (m *EventSourcedStreamOut) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Reply = new(EventSourcedReply)
			return consumeMessage(b, m.Reply)
		case 2:
			m.Failure = new(Failure)
			return consumeMessage(b, m.Failure)
		}
		return 0, nil
	})
}

// =============================================================================
// EVENT SOURCED SERVICE
// =============================================================================

// EventSourcedServiceName is the fully-qualified event sourced service name.
const EventSourcedServiceName = "kalix.component.eventsourcedentity.EventSourcedEntities"

// EventSourcedServer is implemented by the SDK's event sourced handler.
type EventSourcedServer interface {
	Handle(EventSourced_HandleServer) error
}

// EventSourced_HandleServer is the server view of one entity stream.
type EventSourced_HandleServer interface {
	Send(*EventSourcedStreamOut) error
	Recv() (*EventSourcedStreamIn, error)
	grpc.ServerStream
}

type eventSourcedHandleServer struct {
	grpc.ServerStream
}

func (x *eventSourcedHandleServer) Send(m *EventSourcedStreamOut) error {
	return x.ServerStream.SendMsg(m)
}

func (x *eventSourcedHandleServer) Recv() (*EventSourcedStreamIn, error) {
	m := new(EventSourcedStreamIn)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _EventSourced_Handle_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(EventSourcedServer).Handle(&eventSourcedHandleServer{stream})
}

// EventSourcedServiceDesc registers the event sourced service on a gRPC server.
var EventSourcedServiceDesc = grpc.ServiceDesc{
	ServiceName: EventSourcedServiceName,
	HandlerType: (*EventSourcedServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Handle",
			Handler:       _EventSourced_Handle_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "kalix/protocol/event_sourced_entity.proto",
}
