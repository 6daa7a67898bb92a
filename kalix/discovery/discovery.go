// Package discovery implements the proxy handshake: advertising registered
// components with the compiled descriptor set, and rendering proxy-reported
// user function errors.
package discovery

import (
	"context"
	"os"

	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// Logger is the interface for structured logging in this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Handler serves the discovery service.
type Handler struct {
	logger        Logger
	registry      *component.Registry
	descriptorSet []byte
	serviceInfo   *protocol.ServiceInfo
	readSource    SourceReader
}

// NewHandler creates a discovery handler over the registry, the raw compiled
// descriptor set bytes, and the identification advertised to the proxy.
func NewHandler(logger Logger, registry *component.Registry, descriptorSet []byte, serviceInfo *protocol.ServiceInfo) *Handler {
	return &Handler{
		logger:        logger,
		registry:      registry,
		descriptorSet: descriptorSet,
		serviceInfo:   serviceInfo,
		readSource:    os.ReadFile,
	}
}

// SetSourceReader overrides how error-report source excerpts are loaded.
func (h *Handler) SetSourceReader(reader SourceReader) {
	h.readSource = reader
}

// Discover implements protocol.DiscoveryServer. It runs every component's
// PreStart hook before returning the spec.
func (h *Handler) Discover(ctx context.Context, in *protocol.ProxyInfo) (*protocol.Spec, error) {
	if h.logger != nil {
		h.logger.Info("discover",
			"proxy_name", in.ProxyName,
			"proxy_version", in.ProxyVersion,
			"protocol_version", in.ProtocolMajorVersion,
			"components", h.registry.Size(),
		)
	}

	info := component.PreStartInfo{
		ProxyHostname: in.ProxyHostname,
		ProxyPort:     in.ProxyPort,
		Identity:      h.serviceInfo,
	}
	if err := h.registry.PreStartAll(info); err != nil {
		return nil, err
	}

	return &protocol.Spec{
		Proto:       h.descriptorSet,
		Components:  h.registry.Descriptions(),
		ServiceInfo: h.serviceInfo,
	}, nil
}

// ReportError implements protocol.DiscoveryServer. The rendered report goes to
// the error log; the reply is always empty.
func (h *Handler) ReportError(ctx context.Context, in *protocol.UserFunctionError) (*protocol.Empty, error) {
	formatted := FormatError(in, h.readSource)
	if h.logger != nil {
		h.logger.Error("user_function_error_reported",
			"code", in.Code,
			"report", formatted,
		)
	}
	return &protocol.Empty{}, nil
}
