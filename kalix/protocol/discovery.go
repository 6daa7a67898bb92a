package protocol

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// =============================================================================
// DISCOVERY FRAMES
// =============================================================================

// ProxyInfo is the proxy's side of the discovery handshake.
type ProxyInfo struct {
	ProtocolMajorVersion int32
	ProtocolMinorVersion int32
	ProxyName            string
	ProxyVersion         string
	SupportedEntityTypes []string
	ProxyHostname        string
	ProxyPort            int32
}

func (m *ProxyInfo) marshalAppend(b []byte) []byte {
	b = appendInt32(b, 1, m.ProtocolMajorVersion)
	b = appendInt32(b, 2, m.ProtocolMinorVersion)
	b = appendString(b, 3, m.ProxyName)
	b = appendString(b, 4, m.ProxyVersion)
	for _, t := range m.SupportedEntityTypes {
		b = appendString(b, 5, t)
	}
	b = appendString(b, 6, m.ProxyHostname)
	b = appendInt32(b, 7, m.ProxyPort)
	return b
}

func (m *ProxyInfo) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt32(b, &m.ProtocolMajorVersion)
		case 2:
			return consumeInt32(b, &m.ProtocolMinorVersion)
		case 3:
			return consumeString(b, &m.ProxyName)
		case 4:
			return consumeString(b, &m.ProxyVersion)
		case 5:
			var s string
			n, err := consumeString(b, &s)
			if err != nil {
				return 0, err
			}
			m.SupportedEntityTypes = append(m.SupportedEntityTypes, s)
			return n, nil
		case 6:
			return consumeString(b, &m.ProxyHostname)
		case 7:
			return consumeInt32(b, &m.ProxyPort)
		}
		return 0, nil
	})
}

// ServiceInfo identifies the user function to the proxy.
type ServiceInfo struct {
	ServiceName           string
	ServiceVersion        string
	ServiceRuntime        string
	SupportLibraryName    string
	SupportLibraryVersion string
	InstanceId            string
}

func (m *ServiceInfo) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.ServiceName)
	b = appendString(b, 2, m.ServiceVersion)
	b = appendString(b, 3, m.ServiceRuntime)
	b = appendString(b, 4, m.SupportLibraryName)
	b = appendString(b, 5, m.SupportLibraryVersion)
	b = appendString(b, 6, m.InstanceId)
	return b
}

func (m *ServiceInfo) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.ServiceName)
		case 2:
			return consumeString(b, &m.ServiceVersion)
		case 3:
			return consumeString(b, &m.ServiceRuntime)
		case 4:
			return consumeString(b, &m.SupportLibraryName)
		case 5:
			return consumeString(b, &m.SupportLibraryVersion)
		case 6:
			return consumeString(b, &m.InstanceId)
		}
		return 0, nil
	})
}

// TimeoutPassivationStrategy passivates an entity after an idle timeout.
type TimeoutPassivationStrategy struct {
	// Timeout in milliseconds.
	Timeout int64
}

func (m *TimeoutPassivationStrategy) marshalAppend(b []byte) []byte {
	return appendInt64(b, 1, m.Timeout)
}

func (m *TimeoutPassivationStrategy) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeInt64(b, &m.Timeout)
		}
		return 0, nil
	})
}

// PassivationStrategy selects how the proxy passivates idle instances.
type PassivationStrategy struct {
	Timeout *TimeoutPassivationStrategy
}

func (m *PassivationStrategy) marshalAppend(b []byte) []byte {
	if m.Timeout != nil {
		b = appendMessage(b, 1, m.Timeout)
	}
	return b
}

func (m *PassivationStrategy) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			m.Timeout = new(TimeoutPassivationStrategy)
			return consumeMessage(b, m.Timeout)
		}
		return 0, nil
	})
}

// Replicated write consistency values carried in EntitySettings.
const (
	ReplicatedWriteConsistencyLocal    int32 = 0
	ReplicatedWriteConsistencyMajority int32 = 1
	ReplicatedWriteConsistencyAll      int32 = 2
)

// EntitySettings is the entity block of a discovered component.
type EntitySettings struct {
	EntityType                 string
	PassivationStrategy        *PassivationStrategy
	ForwardHeaders             []string
	ReplicatedWriteConsistency int32
}

func (m *EntitySettings) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.EntityType)
	if m.PassivationStrategy != nil {
		b = appendMessage(b, 2, m.PassivationStrategy)
	}
	for _, h := range m.ForwardHeaders {
		b = appendString(b, 3, h)
	}
	b = appendInt32(b, 4, m.ReplicatedWriteConsistency)
	return b
}

func (m *EntitySettings) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.EntityType)
		case 2:
			m.PassivationStrategy = new(PassivationStrategy)
			return consumeMessage(b, m.PassivationStrategy)
		case 3:
			var s string
			n, err := consumeString(b, &s)
			if err != nil {
				return 0, err
			}
			m.ForwardHeaders = append(m.ForwardHeaders, s)
			return n, nil
		case 4:
			return consumeInt32(b, &m.ReplicatedWriteConsistency)
		}
		return 0, nil
	})
}

// Component describes one registered component to the proxy.
type Component struct {
	ComponentType string
	ServiceName   string
	Entity        *EntitySettings
}

func (m *Component) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.ComponentType)
	b = appendString(b, 2, m.ServiceName)
	if m.Entity != nil {
		b = appendMessage(b, 3, m.Entity)
	}
	return b
}

func (m *Component) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.ComponentType)
		case 2:
			return consumeString(b, &m.ServiceName)
		case 3:
			m.Entity = new(EntitySettings)
			return consumeMessage(b, m.Entity)
		}
		return 0, nil
	})
}

// Spec is the discovery response: the compiled descriptor set plus all
// registered components.
type Spec struct {
	Proto       []byte
	Components  []*Component
	ServiceInfo *ServiceInfo
}

func (m *Spec) marshalAppend(b []byte) []byte {
	b = appendBytes(b, 1, m.Proto)
	for _, c := range m.Components {
		b = appendMessage(b, 2, c)
	}
	if m.ServiceInfo != nil {
		b = appendMessage(b, 3, m.ServiceInfo)
	}
	return b
}

func (m *Spec) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(b, &m.Proto)
		case 2:
			c := new(Component)
			n, err := consumeMessage(b, c)
			if err != nil {
				return 0, err
			}
			m.Components = append(m.Components, c)
			return n, nil
		case 3:
			m.ServiceInfo = new(ServiceInfo)
			return consumeMessage(b, m.ServiceInfo)
		}
		return 0, nil
	})
}

// SourceLocation points at the user source responsible for a reported error.
type SourceLocation struct {
	FileName  string
	StartLine int32
	StartCol  int32
	EndLine   int32
	EndCol    int32
}

func (m *SourceLocation) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.FileName)
	b = appendInt32(b, 2, m.StartLine)
	b = appendInt32(b, 3, m.StartCol)
	b = appendInt32(b, 4, m.EndLine)
	b = appendInt32(b, 5, m.EndCol)
	return b
}

func (m *SourceLocation) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.FileName)
		case 2:
			return consumeInt32(b, &m.StartLine)
		case 3:
			return consumeInt32(b, &m.StartCol)
		case 4:
			return consumeInt32(b, &m.EndLine)
		case 5:
			return consumeInt32(b, &m.EndCol)
		}
		return 0, nil
	})
}

// UserFunctionError is reported by the proxy when the user function misbehaves.
type UserFunctionError struct {
	Code            string
	Message         string
	Detail          string
	SourceLocations []*SourceLocation
}

func (m *UserFunctionError) marshalAppend(b []byte) []byte {
	b = appendString(b, 1, m.Code)
	b = appendString(b, 2, m.Message)
	b = appendString(b, 3, m.Detail)
	for _, l := range m.SourceLocations {
		b = appendMessage(b, 4, l)
	}
	return b
}

func (m *UserFunctionError) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(b, &m.Code)
		case 2:
			return consumeString(b, &m.Message)
		case 3:
			return consumeString(b, &m.Detail)
		case 4:
			l := new(SourceLocation)
			n, err := consumeMessage(b, l)
			if err != nil {
				return 0, err
			}
			m.SourceLocations = append(m.SourceLocations, l)
			return n, nil
		}
		return 0, nil
	})
}

// =============================================================================
// DISCOVERY SERVICE
// =============================================================================

// DiscoveryServiceName is the fully-qualified discovery service name.
const DiscoveryServiceName = "kalix.protocol.Discovery"

// DiscoveryServer is implemented by the SDK's discovery handler.
type DiscoveryServer interface {
	Discover(ctx context.Context, in *ProxyInfo) (*Spec, error)
	ReportError(ctx context.Context, in *UserFunctionError) (*Empty, error)
}

func _Discovery_Discover_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ProxyInfo)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiscoveryServer).Discover(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + DiscoveryServiceName + "/Discover",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiscoveryServer).Discover(ctx, req.(*ProxyInfo))
	}
	return interceptor(ctx, in, info, handler)
}

func _Discovery_ReportError_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UserFunctionError)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiscoveryServer).ReportError(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + DiscoveryServiceName + "/ReportError",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiscoveryServer).ReportError(ctx, req.(*UserFunctionError))
	}
	return interceptor(ctx, in, info, handler)
}

// DiscoveryServiceDesc registers the discovery service on a gRPC server.
var DiscoveryServiceDesc = grpc.ServiceDesc{
	ServiceName: DiscoveryServiceName,
	HandlerType: (*DiscoveryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Discover", Handler: _Discovery_Discover_Handler},
		{MethodName: "ReportError", Handler: _Discovery_ReportError_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kalix/protocol/discovery.proto",
}
