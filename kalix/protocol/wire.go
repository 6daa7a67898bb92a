// Package protocol defines the wire frames exchanged with the Kalix proxy.
//
// The proxy speaks a fixed set of gRPC services (discovery, one service per
// entity kind, and the action service). The frame shapes are fixed by the framework's
// descriptor set; this package carries them as plain Go structs with
// hand-written protowire codecs so the SDK has no code-generation step.
//
// Frames:
//   - Command / ClientAction / SideEffect: shared by every entity kind
//   - ValueEntity*, EventSourced*, ReplicatedEntity*: per-kind stream frames
//   - ProxyInfo / Spec / UserFunctionError: discovery handshake
package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every protocol frame. The methods are unexported
// on purpose: the frame set is closed, fixed by the proxy protocol.
type Message interface {
	marshalAppend(b []byte) []byte
	unmarshal(b []byte) error
}

// Marshal encodes a protocol frame to its wire form.
func Marshal(m Message) []byte {
	return m.marshalAppend(nil)
}

// Unmarshal decodes wire bytes into a protocol frame.
func Unmarshal(b []byte, m Message) error {
	return m.unmarshal(b)
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

// appendMessage emits a length-delimited sub-message. A nil sub-message is
// absent on the wire; a non-nil empty one is emitted as zero-length bytes so
// presence survives the round trip.
func appendMessage(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.marshalAppend(nil))
}

// =============================================================================
// DECODING HELPERS
// =============================================================================

type fieldHandler func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walkFields drives the standard protowire field loop, delegating each field to
// the message-specific handler. The handler returns the number of value bytes it
// consumed, or (0, nil) to have the field skipped.
func walkFields(b []byte, fn fieldHandler) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		consumed, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if consumed == 0 {
			consumed = protowire.ConsumeFieldValue(num, typ, b)
			if consumed < 0 {
				return protowire.ParseError(consumed)
			}
		}
		b = b[consumed:]
	}
	return nil
}

func consumeString(b []byte, v *string) (int, error) {
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*v = s
	return n, nil
}

func consumeBytes(b []byte, v *[]byte) (int, error) {
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*v = append([]byte(nil), raw...)
	return n, nil
}

func consumeInt64(b []byte, v *int64) (int, error) {
	raw, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*v = int64(raw)
	return n, nil
}

func consumeInt32(b []byte, v *int32) (int, error) {
	raw, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*v = int32(raw)
	return n, nil
}

func consumeBool(b []byte, v *bool) (int, error) {
	raw, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*v = raw != 0
	return n, nil
}

func consumeMessage(b []byte, m Message) (int, error) {
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if err := m.unmarshal(raw); err != nil {
		return 0, err
	}
	return n, nil
}

func unexpectedType(num protowire.Number, typ protowire.Type) error {
	return fmt.Errorf("%w: field %d has unexpected wire type %d", ErrProtocol, num, typ)
}

// =============================================================================
// Any
// =============================================================================

// Any is a type-URL-tagged byte blob, wire-compatible with google.protobuf.Any.
type Any struct {
	TypeUrl string
	Value   []byte
}

func (m *Any) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.TypeUrl)
	b = appendBytes(b, 2, m.Value)
	return b
}

func (m *Any) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.TypeUrl)
		case 2:
			return consumeBytes(b, &m.Value)
		}
		return 0, nil
	})
}

// Clone returns a deep copy.
func (m *Any) Clone() *Any {
	if m == nil {
		return nil
	}
	return &Any{TypeUrl: m.TypeUrl, Value: append([]byte(nil), m.Value...)}
}

// =============================================================================
// Metadata
// =============================================================================

// MetadataEntry is a single metadata key/value pair. At most one of StringValue
// and BytesValue is set.
type MetadataEntry struct {
	Key         string
	StringValue string
	BytesValue  []byte
}

func (m *MetadataEntry) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.Key)
	b = appendString(b, 2, m.StringValue)
	b = appendBytes(b, 3, m.BytesValue)
	return b
}

func (m *MetadataEntry) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.Key)
		case 2:
			return consumeString(b, &m.StringValue)
		case 3:
			return consumeBytes(b, &m.BytesValue)
		}
		return 0, nil
	})
}

// Metadata is the wire form of a case-insensitive multimap of headers.
type Metadata struct {
	Entries []*MetadataEntry
}

func (m *Metadata) marshalAppend(b []byte) []byte {
	for _, e := range m.Entries {
		b = appendMessage(b, 1, e)
	}
	return b
}

func (m *Metadata) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			e := new(MetadataEntry)
			n, err := consumeMessage(b, e)
			if err != nil {
				return 0, err
			}
			m.Entries = append(m.Entries, e)
			return n, nil
		}
		return 0, nil
	})
}

// =============================================================================
// Failure / Reply / Forward / SideEffect / ClientAction
// =============================================================================

// Failure reports a command failure back to the proxy.
type Failure struct {
	CommandId      int64
	Description    string
	GrpcStatusCode int32
}

func (m *Failure) marshalAppend(b []byte) []byte {
	b = appendInt64(b, 1, m.CommandId)
	b = appendString(b, 2, m.Description)
	b = appendInt32(b, 3, m.GrpcStatusCode)
	return b
}

func (m *Failure) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt64(b, &m.CommandId)
		case 2:
			return consumeString(b, &m.Description)
		case 3:
			return consumeInt32(b, &m.GrpcStatusCode)
		}
		return 0, nil
	})
}

// Reply carries a successful command response payload.
type Reply struct {
	Payload  *Any
	Metadata *Metadata
}

func (m *Reply) marshalAppend(b []byte) []byte {
	if m.Payload != nil {
		b = appendMessage(b, 1, m.Payload)
	}
	if m.Metadata != nil {
		b = appendMessage(b, 2, m.Metadata)
	}
	return b
}

func (m *Reply) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Payload = new(Any)
			return consumeMessage(b, m.Payload)
		case 2:
			m.Metadata = new(Metadata)
			return consumeMessage(b, m.Metadata)
		}
		return 0, nil
	})
}

// Forward redirects the current command to another service/command.
type Forward struct {
	ServiceName string
	CommandName string
	Payload     *Any
	Metadata    *Metadata
}

func (m *Forward) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.ServiceName)
	b = appendString(b, 2, m.CommandName)
	if m.Payload != nil {
		b = appendMessage(b, 3, m.Payload)
	}
	if m.Metadata != nil {
		b = appendMessage(b, 4, m.Metadata)
	}
	return b
}

func (m *Forward) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.ServiceName)
		case 2:
			return consumeString(b, &m.CommandName)
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

// SideEffect is a fire-and-forget (or synchronous) call to another service
// issued alongside the current command's reply.
type SideEffect struct {
	ServiceName string
	CommandName string
	Payload     *Any
	Synchronous bool
	Metadata    *Metadata
}

func (m *SideEffect) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.ServiceName)
	b = appendString(b, 2, m.CommandName)
	if m.Payload != nil {
		b = appendMessage(b, 3, m.Payload)
	}
	b = appendBool(b, 4, m.Synchronous)
	if m.Metadata != nil {
		b = appendMessage(b, 5, m.Metadata)
	}
	return b
}

func (m *SideEffect) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.ServiceName)
		case 2:
			return consumeString(b, &m.CommandName)
		case 3:
			m.Payload = new(Any)
			return consumeMessage(b, m.Payload)
		case 4:
			return consumeBool(b, &m.Synchronous)
		case 5:
			m.Metadata = new(Metadata)
			return consumeMessage(b, m.Metadata)
		}
		return 0, nil
	})
}

// ClientAction is the outcome of a command: at most one of Reply, Forward and
// Failure is set. Emission-side validation lives in protocol validation, not
// here.
type ClientAction struct {
	Reply   *Reply
	Forward *Forward
	Failure *Failure
}

func (m *ClientAction) marshalAppend(b []byte) []byte {
	if m.Reply != nil {
		b = appendMessage(b, 1, m.Reply)
	}
	if m.Forward != nil {
		b = appendMessage(b, 2, m.Forward)
	}
	if m.Failure != nil {
		b = appendMessage(b, 3, m.Failure)
	}
	return b
}

func (m *ClientAction) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			m.Reply = new(Reply)
			return consumeMessage(b, m.Reply)
		case 2:
			m.Forward = new(Forward)
			return consumeMessage(b, m.Forward)
		case 3:
			m.Failure = new(Failure)
			return consumeMessage(b, m.Failure)
		}
		return 0, nil
	})
}

// =============================================================================
// Command / StreamCancelled / Empty
// =============================================================================

// Command is an inbound command for an entity instance.
type Command struct {
	EntityId string
	Id       int64
	Name     string
	Payload  *Any
	Streamed bool
	Metadata *Metadata
}

func (m *Command) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.EntityId)
	b = appendInt64(b, 2, m.Id)
	b = appendString(b, 3, m.Name)
	if m.Payload != nil {
		b = appendMessage(b, 4, m.Payload)
	}
	b = appendBool(b, 5, m.Streamed)
	if m.Metadata != nil {
		b = appendMessage(b, 6, m.Metadata)
	}
	return b
}

func (m *Command) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.EntityId)
		case 2:
			return consumeInt64(b, &m.Id)
		case 3:
			return consumeString(b, &m.Name)
		case 4:
			m.Payload = new(Any)
			return consumeMessage(b, m.Payload)
		case 5:
			return consumeBool(b, &m.Streamed)
		case 6:
			m.Metadata = new(Metadata)
			return consumeMessage(b, m.Metadata)
		}
		return 0, nil
	})
}

// StreamCancelled tells a replicated entity that the proxy closed the outbound
// stream of a previously streamed command.
type StreamCancelled struct {
	EntityId string
	Id       int64
}

func (m *StreamCancelled) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.EntityId)
	b = appendInt64(b, 2, m.Id)
	return b
}

func (m *StreamCancelled) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.EntityId)
		case 2:
			return consumeInt64(b, &m.Id)
		}
		return 0, nil
	})
}

// Empty is the zero-field response of ReportError.
type Empty struct{}

func (m *Empty) marshalAppend(b []byte) []byte { return b }
func (m *Empty) unmarshal(b []byte) error      { return nil }
