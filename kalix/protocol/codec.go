package protocol

import (
	"fmt"
)

// FrameCodec is the gRPC codec for protocol frames. It is installed on the
// host's server with grpc.ForceServerCodec; every service the SDK registers
// speaks protocol.Message values, so no other codec is consulted.
//
// The codec name is "proto" because the frames are wire-compatible protobuf
// and the proxy negotiates the default proto content subtype.
type FrameCodec struct{}

// Name returns the codec name used for content subtype negotiation.
func (FrameCodec) Name() string { return "proto" }

// Marshal encodes a protocol frame.
func (FrameCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("frame codec: cannot marshal %T, not a protocol message", v)
	}
	return m.marshalAppend(nil), nil
}

// Unmarshal decodes a protocol frame.
func (FrameCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("frame codec: cannot unmarshal into %T, not a protocol message", v)
	}
	return m.unmarshal(data)
}
