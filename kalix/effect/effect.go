// Package effect serializes side effects and forwards: calls to other
// registered services attached to a command's reply.
//
// A target method is only accepted when its containing service is registered
// with the owning runtime; the serializer produces the wire-form service and
// command reference plus the encoded payload.
package effect

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// Errors reported by this package.
var (
	// ErrUnknownService indicates a target service never registered with the
	// runtime.
	ErrUnknownService = errors.New("unknown service")
	// ErrMethodNotInService indicates a method name absent from its service.
	ErrMethodNotInService = errors.New("method not in service")
)

// Call is a validated reference to a method of a registered service plus the
// encoded payload, ready to embed in a forward or side effect.
type Call struct {
	ServiceName string
	CommandName string
	Payload     *protocol.Any
	Synchronous bool
	Metadata    *protocol.Metadata
}

// Serializer validates and serializes effect targets. Registered services are
// read-only after the runtime starts; the serializer is safe for concurrent
// use.
type Serializer struct {
	as       *anysupport.AnySupport
	services map[string]protoreflect.ServiceDescriptor
	mu       sync.RWMutex
}

// NewSerializer creates a serializer over the runtime's Any support.
func NewSerializer(as *anysupport.AnySupport) *Serializer {
	return &Serializer{
		as:       as,
		services: make(map[string]protoreflect.ServiceDescriptor),
	}
}

// RegisterService makes a service a valid effect target.
func (s *Serializer) RegisterService(sd protoreflect.ServiceDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[string(sd.FullName())] = sd
}

// ResolveService looks up a registered service by full name.
func (s *Serializer) ResolveService(serviceName string) (protoreflect.ServiceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sd, ok := s.services[serviceName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, serviceName)
	}
	return sd, nil
}

// ResolveMethod validates that a method reflection belongs to a registered
// service.
func (s *Serializer) ResolveMethod(method protoreflect.MethodDescriptor) (serviceName, commandName string, err error) {
	parent, ok := method.Parent().(protoreflect.ServiceDescriptor)
	if !ok {
		return "", "", fmt.Errorf("%w: method %s has no service parent", ErrUnknownService, method.FullName())
	}
	sd, err := s.ResolveService(string(parent.FullName()))
	if err != nil {
		return "", "", err
	}
	if sd.Methods().ByName(method.Name()) == nil {
		return "", "", fmt.Errorf("%w: %s has no method %s", ErrMethodNotInService, sd.FullName(), method.Name())
	}
	return string(sd.FullName()), string(method.Name()), nil
}

// ResolveMethodName validates a "fully.qualified.Service/Method" reference.
func (s *Serializer) ResolveMethodName(ref string) (serviceName, commandName string, err error) {
	i := strings.LastIndexByte(ref, '/')
	if i < 0 {
		i = strings.LastIndexByte(ref, '.')
	}
	if i < 0 {
		return "", "", fmt.Errorf("%w: malformed method reference %q", ErrUnknownService, ref)
	}
	serviceName, commandName = ref[:i], ref[i+1:]
	sd, err := s.ResolveService(serviceName)
	if err != nil {
		return "", "", err
	}
	if sd.Methods().ByName(protoreflect.Name(commandName)) == nil {
		return "", "", fmt.Errorf("%w: %s has no method %s", ErrMethodNotInService, serviceName, commandName)
	}
	return serviceName, commandName, nil
}

// SerializeCall produces a validated call for a method reflection.
func (s *Serializer) SerializeCall(method protoreflect.MethodDescriptor, message any, synchronous bool, metadata *protocol.Metadata) (*Call, error) {
	serviceName, commandName, err := s.ResolveMethod(method)
	if err != nil {
		return nil, err
	}
	return s.serialize(serviceName, commandName, message, synchronous, metadata)
}

// SerializeCallByName produces a validated call for a named method reference.
func (s *Serializer) SerializeCallByName(ref string, message any, synchronous bool, metadata *protocol.Metadata) (*Call, error) {
	serviceName, commandName, err := s.ResolveMethodName(ref)
	if err != nil {
		return nil, err
	}
	return s.serialize(serviceName, commandName, message, synchronous, metadata)
}

func (s *Serializer) serialize(serviceName, commandName string, message any, synchronous bool, metadata *protocol.Metadata) (*Call, error) {
	payload, err := s.as.Encode(message)
	if err != nil {
		return nil, err
	}
	return &Call{
		ServiceName: serviceName,
		CommandName: commandName,
		Payload:     payload,
		Synchronous: synchronous,
		Metadata:    metadata,
	}, nil
}

// SideEffect converts a call to its wire form.
func (c *Call) SideEffect() *protocol.SideEffect {
	return &protocol.SideEffect{
		ServiceName: c.ServiceName,
		CommandName: c.CommandName,
		Payload:     c.Payload,
		Synchronous: c.Synchronous,
		Metadata:    c.Metadata,
	}
}

// Forward converts a call to its wire form as a forward.
func (c *Call) Forward() *protocol.Forward {
	return &protocol.Forward{
		ServiceName: c.ServiceName,
		CommandName: c.CommandName,
		Payload:     c.Payload,
		Metadata:    c.Metadata,
	}
}

// SideEffects converts calls to their wire form, preserving order.
func SideEffects(calls []*Call) []*protocol.SideEffect {
	if len(calls) == 0 {
		return nil
	}
	out := make([]*protocol.SideEffect, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.SideEffect())
	}
	return out
}
