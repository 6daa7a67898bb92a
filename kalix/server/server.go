// Package server provides the host runtime: it owns the gRPC server
// lifecycle, registers discovery, one service per entity kind and the action
// service, and hands inbound streams to the per-kind handlers whose command loops keep
// commands FIFO per entity.
package server

import (
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lightbend/kalix-go-sdk/kalix/action"
	"github.com/lightbend/kalix-go-sdk/kalix/anysupport"
	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/config"
	"github.com/lightbend/kalix-go-sdk/kalix/discovery"
	"github.com/lightbend/kalix-go-sdk/kalix/effect"
	"github.com/lightbend/kalix-go-sdk/kalix/eventbus"
	"github.com/lightbend/kalix-go-sdk/kalix/eventsourced"
	"github.com/lightbend/kalix-go-sdk/kalix/observability"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
	"github.com/lightbend/kalix-go-sdk/kalix/replicated"
	"github.com/lightbend/kalix-go-sdk/kalix/valueentity"
)

// Support library identification advertised during discovery.
const (
	SupportLibraryName    = "kalix-go-sdk"
	SupportLibraryVersion = "1.0.0"
)

// Runtime hosts registered components and speaks the proxy protocol.
//
// Usage:
//
//	rt := server.New(config.DefaultConfig(), logger)
//	rt.Register(&valueentity.Entity{...})
//	rt.Register(&action.Action{...})
//	if err := rt.Start(); err != nil { ... }
type Runtime struct {
	config   *config.Config
	logger   Logger
	registry *component.Registry
	bus      *eventbus.Bus

	as          *anysupport.AnySupport
	effects     *effect.Serializer
	serviceInfo *protocol.ServiceInfo

	grpcServer *grpc.Server
	listener   net.Listener

	shutdownMu sync.Mutex
	isShutdown bool
	started    bool
}

// New creates a runtime over a configuration. A nil config uses defaults.
func New(cfg *config.Config, logger Logger) *Runtime {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.Normalize()
	return &Runtime{
		config:   cfg,
		logger:   logger,
		registry: component.NewRegistry(logger),
		bus:      eventbus.NewBus(nil),
	}
}

// Register adds a component. Components must be registered before Start.
func (r *Runtime) Register(c component.Component) error {
	return r.registry.Register(c)
}

// Registry exposes the component registry, read-only after start.
func (r *Runtime) Registry() *component.Registry {
	return r.registry
}

// Bus exposes the host event bus.
func (r *Runtime) Bus() *eventbus.Bus {
	return r.bus
}

// initialize loads descriptors, freezes the registry and builds the gRPC
// server with every protocol service.
func (r *Runtime) initialize() error {
	if r.started {
		return fmt.Errorf("runtime already started")
	}

	fds, raw, err := anysupport.LoadDescriptorSet(r.config.DescriptorSetPath)
	if err != nil {
		return err
	}
	r.as, err = anysupport.New(fds)
	if err != nil {
		return err
	}
	r.effects = effect.NewSerializer(r.as)

	// Every registered component's service must exist in the descriptor set;
	// registered services are the valid effect and forward targets.
	for _, c := range r.registry.Components() {
		desc, err := r.as.Files().FindDescriptorByName(protoreflect.FullName(c.ServiceName()))
		if err != nil {
			return fmt.Errorf("service %s of a registered component is not in the descriptor set", c.ServiceName())
		}
		sd, ok := desc.(protoreflect.ServiceDescriptor)
		if !ok {
			return fmt.Errorf("%s is not a service in the descriptor set", c.ServiceName())
		}
		r.effects.RegisterService(sd)
	}

	r.serviceInfo = &protocol.ServiceInfo{
		ServiceName:           r.config.ServiceName,
		ServiceVersion:        r.config.ServiceVersion,
		ServiceRuntime:        runtime.Version(),
		SupportLibraryName:    SupportLibraryName,
		SupportLibraryVersion: SupportLibraryVersion,
		InstanceId:            uuid.NewString(),
	}

	r.registry.Freeze()
	observability.SubscribeMetrics(r.bus)

	r.grpcServer = grpc.NewServer(ServerOptions(r.logger)...)
	r.grpcServer.RegisterService(&protocol.DiscoveryServiceDesc,
		discovery.NewHandler(r.logger, r.registry, raw, r.serviceInfo))
	r.grpcServer.RegisterService(&protocol.ValueEntitiesServiceDesc,
		valueentity.NewServer(r.logger, r.registry, r.as, r.effects, r.bus))
	r.grpcServer.RegisterService(&protocol.EventSourcedServiceDesc,
		eventsourced.NewServer(r.logger, r.registry, r.as, r.effects, r.bus))
	r.grpcServer.RegisterService(&protocol.ReplicatedEntitiesServiceDesc,
		replicated.NewServer(r.logger, r.registry, r.as, r.effects, r.bus))
	r.grpcServer.RegisterService(&protocol.ActionsServiceDesc,
		action.NewServer(r.logger, r.registry, r.as, r.effects, r.bus))

	r.started = true
	return nil
}

// listen binds the configured endpoint; port 0 binds an ephemeral port.
func (r *Runtime) listen() error {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", r.config.BindAddress, r.config.BindPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	r.listener = lis
	return nil
}

// Start initializes the runtime and serves until the server stops.
func (r *Runtime) Start() error {
	if err := r.initialize(); err != nil {
		return err
	}
	if err := r.listen(); err != nil {
		return err
	}
	if r.logger != nil {
		r.logger.Info("runtime_started",
			"address", r.listener.Addr().String(),
			"components", r.registry.Size(),
			"service_name", r.config.ServiceName,
			"service_version", r.config.ServiceVersion,
		)
	}
	return r.grpcServer.Serve(r.listener)
}

// StartBackground starts the runtime in a goroutine. The returned channel
// receives the serve error, if any.
func (r *Runtime) StartBackground() (<-chan error, error) {
	if err := r.initialize(); err != nil {
		return nil, err
	}
	if err := r.listen(); err != nil {
		return nil, err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := r.grpcServer.Serve(r.listener); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	if r.logger != nil {
		r.logger.Info("runtime_started_background",
			"address", r.listener.Addr().String(),
			"components", r.registry.Size(),
		)
	}
	return errCh, nil
}

// Address returns the bound listen address, empty before Start.
func (r *Runtime) Address() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// TryShutdown quiesces the runtime: stop accepting new streams, let in-flight
// command loops drain, close the gRPC server, then invoke the callback.
func (r *Runtime) TryShutdown(callback func()) {
	r.shutdownMu.Lock()
	if r.isShutdown {
		r.shutdownMu.Unlock()
		if callback != nil {
			callback()
		}
		return
	}
	r.isShutdown = true
	r.shutdownMu.Unlock()

	if r.logger != nil {
		r.logger.Info("runtime_shutdown_started")
	}
	if r.grpcServer != nil {
		r.grpcServer.GracefulStop()
	}
	if r.logger != nil {
		r.logger.Info("runtime_shutdown_completed")
	}
	if callback != nil {
		callback()
	}
}

// Stop immediately stops the runtime. Use TryShutdown for production; this is
// for emergency shutdown.
func (r *Runtime) Stop() {
	r.shutdownMu.Lock()
	defer r.shutdownMu.Unlock()

	if r.isShutdown {
		return
	}
	r.isShutdown = true

	if r.logger != nil {
		r.logger.Warn("runtime_immediate_stop")
	}
	if r.grpcServer != nil {
		r.grpcServer.Stop()
	}
}

// ShutdownWithTimeout quiesces with a deadline; past it, the runtime stops
// immediately.
func (r *Runtime) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		r.TryShutdown(nil)
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		if r.logger != nil {
			r.logger.Warn("runtime_shutdown_timeout",
				"timeout_ms", timeout.Milliseconds(),
			)
		}
		if r.grpcServer != nil {
			r.grpcServer.Stop()
		}
	}
}

// Stats returns a snapshot of runtime state.
func (r *Runtime) Stats() map[string]any {
	return map[string]any{
		"started":    r.started,
		"address":    r.Address(),
		"components": r.registry.Size(),
	}
}
