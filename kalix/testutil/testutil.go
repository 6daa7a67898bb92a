// Package testutil provides shared test utilities and mocks: a recording
// logger, in-memory entity streams, and a small descriptor-set fixture.
//
// All mocks in this package are designed for testing the SDK components in
// isolation without a running proxy.
package testutil

import (
	"context"
	"io"
	"sync"

	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// =============================================================================
// TEST LOGGER
// =============================================================================

// TestLogger records log events for assertion.
type TestLogger struct {
	Events []string
	mu     sync.Mutex
}

func (l *TestLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Events = append(l.Events, level+": "+msg)
}

// Debug implements the shared Logger method set.
func (l *TestLogger) Debug(msg string, keysAndValues ...any) { l.record("DEBUG", msg) }

// Info implements the shared Logger method set.
func (l *TestLogger) Info(msg string, keysAndValues ...any) { l.record("INFO", msg) }

// Warn implements the shared Logger method set.
func (l *TestLogger) Warn(msg string, keysAndValues ...any) { l.record("WARN", msg) }

// Error implements the shared Logger method set.
func (l *TestLogger) Error(msg string, keysAndValues ...any) { l.record("ERROR", msg) }

// Has reports whether an event with the given message was recorded.
func (l *TestLogger) Has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.Events {
		if e == level+": "+msg {
			return true
		}
	}
	return false
}

// =============================================================================
// DESCRIPTOR FIXTURE
// =============================================================================

// TestFileDescriptorSet builds a small com.example schema: messages In, Out,
// State, ValueSet and Key, plus ExampleService and ExampleServiceTwo.
func TestFileDescriptorSet() *descriptorpb.FileDescriptorSet {
	stringField := func(name string, number int32) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			Number:   proto.Int32(number),
			Type:     descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			JsonName: proto.String(name),
		}
	}
	int64Field := func(name string, number int32) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			Number:   proto.Int32(number),
			Type:     descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum(),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			JsonName: proto.String(name),
		}
	}

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("com/example/example.proto"),
		Package: proto.String("com.example"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{Name: proto.String("In"), Field: []*descriptorpb.FieldDescriptorProto{stringField("field", 1)}},
			{Name: proto.String("Out"), Field: []*descriptorpb.FieldDescriptorProto{stringField("message", 1)}},
			{Name: proto.String("State"), Field: []*descriptorpb.FieldDescriptorProto{int64Field("value", 1)}},
			{Name: proto.String("ValueSet"), Field: []*descriptorpb.FieldDescriptorProto{int64Field("value", 1)}},
			{Name: proto.String("Key"), Field: []*descriptorpb.FieldDescriptorProto{stringField("name", 1)}},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("ExampleService"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       proto.String("DoSomething"),
						InputType:  proto.String(".com.example.In"),
						OutputType: proto.String(".com.example.Out"),
					},
				},
			},
			{
				Name: proto.String("ExampleServiceTwo"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       proto.String("DoSomethingTwo"),
						InputType:  proto.String(".com.example.In"),
						OutputType: proto.String(".com.example.Out"),
					},
				},
			},
		},
	}
	return &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{file}}
}

// NewTestAnySupport builds an AnySupport over the com.example fixture.
func NewTestAnySupport() *anysupport.AnySupport {
	as, err := anysupport.New(TestFileDescriptorSet())
	if err != nil {
		panic(err)
	}
	return as
}

// NewTestMessage builds a dynamic message of a fixture type with the given
// field values (string or int64).
func NewTestMessage(as *anysupport.AnySupport, fullName string, fields map[string]any) proto.Message {
	desc, err := as.Files().FindDescriptorByName(protoreflect.FullName(fullName))
	if err != nil {
		panic(err)
	}
	msg := dynamicpb.NewMessage(desc.(protoreflect.MessageDescriptor))
	for name, value := range fields {
		fd := msg.Descriptor().Fields().ByName(protoreflect.Name(name))
		if fd == nil {
			panic("no field " + name + " on " + fullName)
		}
		msg.Set(fd, protoreflect.ValueOf(value))
	}
	return msg
}

// EncodeTestMessage builds and encodes a dynamic fixture message.
func EncodeTestMessage(as *anysupport.AnySupport, fullName string, fields map[string]any) *protocol.Any {
	encoded, err := as.Encode(NewTestMessage(as, fullName, fields))
	if err != nil {
		panic(err)
	}
	return encoded
}

// MessageField reads a field from a decoded dynamic message.
func MessageField(msg proto.Message, name string) any {
	m := msg.ProtoReflect()
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		return nil
	}
	return m.Get(fd).Interface()
}

// =============================================================================
// MOCK STREAMS
// =============================================================================

// baseStream satisfies the grpc.ServerStream surface the handlers never use.
type baseStream struct {
	ctx context.Context
}

func (s *baseStream) SetHeader(metadata.MD) error  { return nil }
func (s *baseStream) SendHeader(metadata.MD) error { return nil }
func (s *baseStream) SetTrailer(metadata.MD)       {}
func (s *baseStream) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}
func (s *baseStream) SendMsg(m interface{}) error { return io.ErrClosedPipe }
func (s *baseStream) RecvMsg(m interface{}) error { return io.ErrClosedPipe }

// ValueEntityStream is an in-memory protocol.ValueEntities_HandleServer. Push
// frames into In, close it, and inspect Out after Handle returns.
type ValueEntityStream struct {
	baseStream
	In  chan *protocol.ValueEntityStreamIn
	out []*protocol.ValueEntityStreamOut
	mu  sync.Mutex
}

// NewValueEntityStream creates a mock stream with a buffered inbound channel.
func NewValueEntityStream() *ValueEntityStream {
	return &ValueEntityStream{In: make(chan *protocol.ValueEntityStreamIn, 32)}
}

// Send implements the stream interface.
func (s *ValueEntityStream) Send(m *protocol.ValueEntityStreamOut) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, m)
	return nil
}

// Recv implements the stream interface.
func (s *ValueEntityStream) Recv() (*protocol.ValueEntityStreamIn, error) {
	m, ok := <-s.In
	if !ok {
		return nil, io.EOF
	}
	return m, nil
}

// Out returns the frames sent so far.
func (s *ValueEntityStream) Out() []*protocol.ValueEntityStreamOut {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.ValueEntityStreamOut(nil), s.out...)
}

// EventSourcedStream is an in-memory protocol.EventSourced_HandleServer.
type EventSourcedStream struct {
	baseStream
	In  chan *protocol.EventSourcedStreamIn
	out []*protocol.EventSourcedStreamOut
	mu  sync.Mutex
}

// NewEventSourcedStream creates a mock stream with a buffered inbound channel.
func NewEventSourcedStream() *EventSourcedStream {
	return &EventSourcedStream{In: make(chan *protocol.EventSourcedStreamIn, 32)}
}

// Send implements the stream interface.
func (s *EventSourcedStream) Send(m *protocol.EventSourcedStreamOut) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, m)
	return nil
}

// Recv implements the stream interface.
func (s *EventSourcedStream) Recv() (*protocol.EventSourcedStreamIn, error) {
	m, ok := <-s.In
	if !ok {
		return nil, io.EOF
	}
	return m, nil
}

// Out returns the frames sent so far.
func (s *EventSourcedStream) Out() []*protocol.EventSourcedStreamOut {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.EventSourcedStreamOut(nil), s.out...)
}

// ReplicatedEntityStream is an in-memory
// protocol.ReplicatedEntities_HandleServer.
type ReplicatedEntityStream struct {
	baseStream
	In  chan *protocol.ReplicatedEntityStreamIn
	out []*protocol.ReplicatedEntityStreamOut
	mu  sync.Mutex
}

// NewReplicatedEntityStream creates a mock stream with a buffered inbound
// channel.
func NewReplicatedEntityStream() *ReplicatedEntityStream {
	return &ReplicatedEntityStream{In: make(chan *protocol.ReplicatedEntityStreamIn, 32)}
}

// Send implements the stream interface.
func (s *ReplicatedEntityStream) Send(m *protocol.ReplicatedEntityStreamOut) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, m)
	return nil
}

// Recv implements the stream interface.
func (s *ReplicatedEntityStream) Recv() (*protocol.ReplicatedEntityStreamIn, error) {
	m, ok := <-s.In
	if !ok {
		return nil, io.EOF
	}
	return m, nil
}

// Out returns the frames sent so far.
func (s *ReplicatedEntityStream) Out() []*protocol.ReplicatedEntityStreamOut {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.ReplicatedEntityStreamOut(nil), s.out...)
}
