// Package anysupport encodes and decodes arbitrary values to and from
// type-URL-tagged byte blobs.
//
// Messages are encoded under type.googleapis.com with their fully-qualified
// name and decoded through the descriptor pool loaded at startup. Primitives
// (string, bytes, the integer widths, floats, bool) are encoded as single-field
// wrapper blobs under framework-reserved type URLs so they can cross the wire
// without a user-defined message.
//
// The package also derives comparable keys: canonical deterministic values used
// exclusively as map and set indices, never transmitted.
package anysupport

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// Errors reported by this package.
var (
	// ErrUnknownType indicates a type URL that is not in the descriptor pool.
	ErrUnknownType = errors.New("unknown type")
	// ErrSerialization indicates a value that cannot be encoded.
	ErrSerialization = errors.New("serialization error")
)

// Type URL prefixes.
const (
	// DefaultTypeURLPrefix tags user-defined messages.
	DefaultTypeURLPrefix = "type.googleapis.com"
	// PrimitivePrefix tags framework-reserved primitive wrappers.
	PrimitivePrefix = "p.kalix.io/"
)

// Reserved primitive type URLs.
const (
	StringTypeURL = PrimitivePrefix + "string"
	BytesTypeURL  = PrimitivePrefix + "bytes"
	Int32TypeURL  = PrimitivePrefix + "int32"
	Int64TypeURL  = PrimitivePrefix + "int64"
	FloatTypeURL  = PrimitivePrefix + "float"
	DoubleTypeURL = PrimitivePrefix + "double"
	BoolTypeURL   = PrimitivePrefix + "bool"
)

// AnySupport is the encoder/decoder bound to one descriptor pool. Read-only
// after construction and safe for concurrent use.
type AnySupport struct {
	files *protoregistry.Files
}

// New builds an AnySupport over a compiled descriptor set.
func New(fds *descriptorpb.FileDescriptorSet) (*AnySupport, error) {
	files, err := protodesc.NewFiles(fds)
	if err != nil {
		return nil, fmt.Errorf("failed to build descriptor pool: %w", err)
	}
	return &AnySupport{files: files}, nil
}

// NewFromFiles builds an AnySupport over an existing descriptor pool.
func NewFromFiles(files *protoregistry.Files) *AnySupport {
	return &AnySupport{files: files}
}

// Files returns the underlying descriptor pool.
func (a *AnySupport) Files() *protoregistry.Files {
	return a.files
}

// =============================================================================
// NAME HELPERS
// =============================================================================

// FullNameOf extracts the fully-qualified message name from a type URL.
func FullNameOf(typeURL string) string {
	if i := strings.LastIndexByte(typeURL, '/'); i >= 0 {
		return typeURL[i+1:]
	}
	return typeURL
}

// UnqualifiedNameOf extracts the bare message name from a type URL. Entity
// event handlers are keyed by this name.
func UnqualifiedNameOf(typeURL string) string {
	full := FullNameOf(typeURL)
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		return full[i+1:]
	}
	return full
}

// IsPrimitive reports whether a type URL names a reserved primitive wrapper.
func IsPrimitive(typeURL string) bool {
	return strings.HasPrefix(typeURL, PrimitivePrefix)
}

// =============================================================================
// ENCODING
// =============================================================================

// Encode wraps a value into a type-URL-tagged blob. Accepted values are
// protocol.Any (passed through), proto messages (including dynamic ones), and
// the Go primitives.
func (a *AnySupport) Encode(value any) (*protocol.Any, error) {
	switch v := value.(type) {
	case *protocol.Any:
		return v, nil
	case string:
		return primitiveAny(StringTypeURL, protowire.AppendString(primitiveTag(protowire.BytesType), v)), nil
	case []byte:
		return primitiveAny(BytesTypeURL, protowire.AppendBytes(primitiveTag(protowire.BytesType), v)), nil
	case int32:
		return primitiveAny(Int32TypeURL, protowire.AppendVarint(primitiveTag(protowire.VarintType), uint64(int64(v)))), nil
	case int64:
		return primitiveAny(Int64TypeURL, protowire.AppendVarint(primitiveTag(protowire.VarintType), uint64(v))), nil
	case int:
		return primitiveAny(Int64TypeURL, protowire.AppendVarint(primitiveTag(protowire.VarintType), uint64(int64(v)))), nil
	case float32:
		return primitiveAny(FloatTypeURL, protowire.AppendFixed32(primitiveTag(protowire.Fixed32Type), math.Float32bits(v))), nil
	case float64:
		return primitiveAny(DoubleTypeURL, protowire.AppendFixed64(primitiveTag(protowire.Fixed64Type), math.Float64bits(v))), nil
	case bool:
		var raw uint64
		if v {
			raw = 1
		}
		return primitiveAny(BoolTypeURL, protowire.AppendVarint(primitiveTag(protowire.VarintType), raw)), nil
	case proto.Message:
		data, err := proto.MarshalOptions{Deterministic: true}.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		name := v.ProtoReflect().Descriptor().FullName()
		return &protocol.Any{
			TypeUrl: DefaultTypeURLPrefix + "/" + string(name),
			Value:   data,
		}, nil
	}
	return nil, fmt.Errorf("%w: cannot encode value of type %T", ErrSerialization, value)
}

func primitiveTag(typ protowire.Type) []byte {
	return protowire.AppendTag(nil, 1, typ)
}

func primitiveAny(typeURL string, value []byte) *protocol.Any {
	return &protocol.Any{TypeUrl: typeURL, Value: value}
}

// =============================================================================
// DECODING
// =============================================================================

// Decode unwraps a blob into a Go value: a primitive for reserved type URLs,
// otherwise a dynamic message resolved through the descriptor pool.
func (a *AnySupport) Decode(in *protocol.Any) (any, error) {
	if in == nil {
		return nil, nil
	}
	if IsPrimitive(in.TypeUrl) {
		return decodePrimitive(in)
	}
	msg, err := a.decodeMessage(in)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeMessage unwraps a blob that must contain a message, never a primitive.
func (a *AnySupport) DecodeMessage(in *protocol.Any) (proto.Message, error) {
	if IsPrimitive(in.TypeUrl) {
		return nil, fmt.Errorf("%w: expected a message, got primitive %s", ErrSerialization, in.TypeUrl)
	}
	return a.decodeMessage(in)
}

func (a *AnySupport) decodeMessage(in *protocol.Any) (proto.Message, error) {
	name := protoreflect.FullName(FullNameOf(in.TypeUrl))
	desc, err := a.files.FindDescriptorByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found in descriptor pool", ErrUnknownType, name)
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a message", ErrUnknownType, name)
	}
	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(in.Value, msg); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %v", ErrSerialization, name, err)
	}
	return msg, nil
}

func decodePrimitive(in *protocol.Any) (any, error) {
	b := in.Value
	// An absent field means the default value for the primitive kind.
	var raw []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed primitive wrapper %s", ErrSerialization, in.TypeUrl)
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return nil, fmt.Errorf("%w: malformed primitive wrapper %s", ErrSerialization, in.TypeUrl)
		}
		if num == 1 {
			raw = b[:m]
		}
		b = b[m:]
	}

	switch in.TypeUrl {
	case StringTypeURL:
		if raw == nil {
			return "", nil
		}
		v, n := protowire.ConsumeString(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed string wrapper", ErrSerialization)
		}
		return v, nil
	case BytesTypeURL:
		if raw == nil {
			return []byte(nil), nil
		}
		v, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed bytes wrapper", ErrSerialization)
		}
		return append([]byte(nil), v...), nil
	case Int32TypeURL:
		if raw == nil {
			return int32(0), nil
		}
		v, n := protowire.ConsumeVarint(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed int32 wrapper", ErrSerialization)
		}
		return int32(v), nil
	case Int64TypeURL:
		if raw == nil {
			return int64(0), nil
		}
		v, n := protowire.ConsumeVarint(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed int64 wrapper", ErrSerialization)
		}
		return int64(v), nil
	case FloatTypeURL:
		if raw == nil {
			return float32(0), nil
		}
		v, n := protowire.ConsumeFixed32(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed float wrapper", ErrSerialization)
		}
		return math.Float32frombits(v), nil
	case DoubleTypeURL:
		if raw == nil {
			return float64(0), nil
		}
		v, n := protowire.ConsumeFixed64(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed double wrapper", ErrSerialization)
		}
		return math.Float64frombits(v), nil
	case BoolTypeURL:
		if raw == nil {
			return false, nil
		}
		v, n := protowire.ConsumeVarint(raw)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed bool wrapper", ErrSerialization)
		}
		return v != 0, nil
	}
	return nil, fmt.Errorf("%w: reserved type URL %s", ErrUnknownType, in.TypeUrl)
}

// =============================================================================
// COMPARABLE KEYS
// =============================================================================

// Comparable derives a canonical deterministic key for a blob. Primitives map
// to themselves, except bytes, which map to the type URL joined with the bytes
// as a string so they are usable as a map key; messages map to the type URL
// joined with their canonical deterministic encoding. Equal values produce
// identical keys regardless of the serialization they arrived in.
//
// A message whose type is not in the descriptor pool falls back to its raw
// bytes; the key is still stable for byte-identical encodings.
func (a *AnySupport) Comparable(in *protocol.Any) (any, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil value has no comparable key", ErrSerialization)
	}
	if IsPrimitive(in.TypeUrl) {
		v, err := decodePrimitive(in)
		if err != nil {
			return nil, err
		}
		if b, ok := v.([]byte); ok {
			return in.TypeUrl + "\x00" + string(b), nil
		}
		return v, nil
	}
	msg, err := a.decodeMessage(in)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			return in.TypeUrl + "\x00" + string(in.Value), nil
		}
		return nil, err
	}
	canonical, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return in.TypeUrl + "\x00" + string(canonical), nil
}
