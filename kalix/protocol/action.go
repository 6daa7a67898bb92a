package protocol

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// =============================================================================
// ACTION FRAMES
// =============================================================================

// ActionCommand is one inbound action request.
type ActionCommand struct {
	ServiceName string
	Name        string
	Payload     *Any
	Metadata    *Metadata
}

func (m *ActionCommand) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.ServiceName)
	b = appendString(b, 2, m.Name)
	if m.Payload != nil {
		b = appendMessage(b, 3, m.Payload)
	}
	if m.Metadata != nil {
		b = appendMessage(b, 4, m.Metadata)
	}
	return b
}

func (m *ActionCommand) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.ServiceName)
		case 2:
			return consumeString(b, &m.Name)
		case 3:
			m.Payload = new(Any)
			return consumeMessage(b, m.Payload)
		case 4:
			m.Metadata = new(Metadata)
			return consumeMessage(b, m.Metadata)
		}
		return 0, nil
	})
}

// ActionResponse is one outbound action response.
type ActionResponse struct {
	Failure     *Failure
	Reply       *Reply
	Forward     *Forward
	SideEffects []*SideEffect
}

func (m *ActionResponse) marshalAppend(b []byte) []byte {
	if m.Failure != nil {
		b = appendMessage(b, 1, m.Failure)
	}
	if m.Reply != nil {
		b = appendMessage(b, 2, m.Reply)
	}
	if m.Forward != nil {
		b = appendMessage(b, 3, m.Forward)
	}
	for _, e := range m.SideEffects {
		b = appendMessage(b, 4, e)
	}
	return b
}

func (m *ActionResponse) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Failure = new(Failure)
			return consumeMessage(b, m.Failure)
		case 2:
			m.Reply = new(Reply)
			return consumeMessage(b, m.Reply)
		case 3:
			m.Forward = new(Forward)
			return consumeMessage(b, m.Forward)
		case 4:
			e := new(SideEffect)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.SideEffects = append(m.SideEffects, e)
			return n, nil
		}
		return 0, nil
	})
}

// =============================================================================
// ACTION SERVICE
// =============================================================================

// ActionsServiceName is the fully-qualified action service name.
const ActionsServiceName = "kalix.component.action.Actions"

// ActionsServer is implemented by the SDK's action handler. Actions are
// stateless; the four methods cover every gRPC call shape.
type ActionsServer interface {
	HandleUnary(ctx context.Context, in *ActionCommand) (*ActionResponse, error)
	HandleStreamedIn(Actions_HandleStreamedInServer) error
	HandleStreamedOut(in *ActionCommand, stream Actions_HandleStreamedOutServer) error
	HandleStreamed(Actions_HandleStreamedServer) error
}

// Actions_HandleStreamedInServer is the server view of a streamed-in call.
type Actions_HandleStreamedInServer interface {
	SendAndClose(*ActionResponse) error
	Recv() (*ActionCommand, error)
	grpc.ServerStream
}

type actionsHandleStreamedInServer struct {
	grpc.ServerStream
}

func (x *actionsHandleStreamedInServer) SendAndClose(m *ActionResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *actionsHandleStreamedInServer) Recv() (*ActionCommand, error) {
	m := new(ActionCommand)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Actions_HandleStreamedOutServer is the server view of a streamed-out call.
type Actions_HandleStreamedOutServer interface {
	Send(*ActionResponse) error
	grpc.ServerStream
}

type actionsHandleStreamedOutServer struct {
	grpc.ServerStream
}

func (x *actionsHandleStreamedOutServer) Send(m *ActionResponse) error {
	return x.ServerStream.SendMsg(m)
}

// Actions_HandleStreamedServer is the server view of a bidirectional call.
type Actions_HandleStreamedServer interface {
	Send(*ActionResponse) error
	Recv() (*ActionCommand, error)
	grpc.ServerStream
}

type actionsHandleStreamedServer struct {
	grpc.ServerStream
}

func (x *actionsHandleStreamedServer) Send(m *ActionResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *actionsHandleStreamedServer) Recv() (*ActionCommand, error) {
	m := new(ActionCommand)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Actions_HandleUnary_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ActionCommand)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ActionsServer).HandleUnary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ActionsServiceName + "/HandleUnary",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ActionsServer).HandleUnary(ctx, req.(*ActionCommand))
	}
	return interceptor(ctx, in, info, handler)
}

func _Actions_HandleStreamedIn_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ActionsServer).HandleStreamedIn(&actionsHandleStreamedInServer{stream})
}

func _Actions_HandleStreamedOut_Handler(srv interface{}, stream grpc.ServerStream) error {
	in := new(ActionCommand)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ActionsServer).HandleStreamedOut(in, &actionsHandleStreamedOutServer{stream})
}

func _Actions_HandleStreamed_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ActionsServer).HandleStreamed(&actionsHandleStreamedServer{stream})
}

// ActionsServiceDesc registers the action service on a gRPC server.
var ActionsServiceDesc = grpc.ServiceDesc{
	ServiceName: ActionsServiceName,
	HandlerType: (*ActionsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HandleUnary", Handler: _Actions_HandleUnary_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "HandleStreamedIn",
			Handler:       _Actions_HandleStreamedIn_Handler,
			ClientStreams: true,
		},
		{
			StreamName:    "HandleStreamedOut",
			Handler:       _Actions_HandleStreamedOut_Handler,
			ServerStreams: true,
		},
		{
			StreamName:    "HandleStreamed",
			Handler:       _Actions_HandleStreamed_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "kalix/protocol/action.proto",
}
