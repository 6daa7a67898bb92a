// Package component provides component contracts and the registry that holds
// components added before the runtime starts.
//
// A component is a registered unit of user code: an action, a value entity, an
// event sourced entity, a replicated entity or a view. The registry exposes
// the discovery descriptions the proxy handshake advertises.
package component

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// Logger is the interface for structured logging in this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Type tags a component kind. The tag is a static attribute of each kind.
type Type string

const (
	// TypeAction is a stateless request/response component.
	TypeAction Type = "action"
	// TypeValueEntity persists full state values.
	TypeValueEntity Type = "value-entity"
	// TypeEventSourcedEntity persists a journal of events.
	TypeEventSourcedEntity Type = "event-sourced-entity"
	// TypeReplicatedEntity holds mergeable replicated state.
	TypeReplicatedEntity Type = "replicated-entity"
	// TypeView consumes state changes to serve queries.
	TypeView Type = "view"
)

// IsEntity reports whether components of this kind carry an entity block in
// discovery.
func (t Type) IsEntity() bool {
	switch t {
	case TypeValueEntity, TypeEventSourcedEntity, TypeReplicatedEntity:
		return true
	}
	return false
}

// WriteConsistency selects the replication write consistency of a replicated
// entity.
type WriteConsistency int32

const (
	// WriteConsistencyLocal acknowledges writes on the local replica.
	WriteConsistencyLocal WriteConsistency = WriteConsistency(protocol.ReplicatedWriteConsistencyLocal)
	// WriteConsistencyMajority acknowledges writes on a majority of replicas.
	WriteConsistencyMajority WriteConsistency = WriteConsistency(protocol.ReplicatedWriteConsistencyMajority)
	// WriteConsistencyAll acknowledges writes on every replica.
	WriteConsistencyAll WriteConsistency = WriteConsistency(protocol.ReplicatedWriteConsistencyAll)
)

// Options are the per-component settings carried into discovery.
type Options struct {
	// EntityType namespaces persisted state across services.
	EntityType string `json:"entity_type"`
	// PassivationTimeout is the idle passivation hint in milliseconds; zero
	// means no strategy is advertised.
	PassivationTimeout int64 `json:"passivation_timeout"`
	// ForwardHeaders whitelists request headers surfaced to handlers.
	ForwardHeaders []string `json:"forward_headers,omitempty"`
	// WriteConsistency applies to replicated entities only.
	WriteConsistency WriteConsistency `json:"write_consistency"`
	// SnapshotEvery applies to event sourced entities only; zero uses the
	// default, negative disables snapshotting.
	SnapshotEvery int32 `json:"snapshot_every"`
}

// PreStartInfo is handed to each component before discovery returns, so
// components can configure outbound clients against the proxy.
type PreStartInfo struct {
	ProxyHostname string
	ProxyPort     int32
	Identity      *protocol.ServiceInfo
}

// Component is a registered unit of user code.
type Component interface {
	// ComponentType returns the static component kind tag.
	ComponentType() Type
	// ServiceName returns the fully-qualified protobuf service name.
	ServiceName() string
	// ComponentOptions returns the per-component settings.
	ComponentOptions() Options
	// PreStart runs during the discovery handshake, before the spec is
	// returned to the proxy.
	PreStart(info PreStartInfo) error
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds components added before startup. It freezes at start and is
// read-only afterwards.
type Registry struct {
	logger Logger

	components map[string]Component
	frozen     bool
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger Logger) *Registry {
	return &Registry{
		logger:     logger,
		components: make(map[string]Component),
	}
}

// Register adds a component. Registration fails after the runtime started or
// when the service name is already taken.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("cannot register %s: runtime already started", c.ServiceName())
	}
	if _, exists := r.components[c.ServiceName()]; exists {
		return fmt.Errorf("component already registered for service %s", c.ServiceName())
	}
	r.components[c.ServiceName()] = c

	if r.logger != nil {
		r.logger.Info("component_registered",
			"service_name", c.ServiceName(),
			"component_type", string(c.ComponentType()),
		)
	}
	return nil
}

// Freeze makes the registry read-only. Called once at runtime start.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Get returns the component for a service name, nil when absent.
func (r *Registry) Get(serviceName string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.components[serviceName]
}

// GetOfType returns the component for a service name when it has the wanted
// kind.
func (r *Registry) GetOfType(serviceName string, t Type) Component {
	c := r.Get(serviceName)
	if c == nil || c.ComponentType() != t {
		return nil
	}
	return c
}

// Components returns every component ordered by service name, so discovery
// output is deterministic.
func (r *Registry) Components() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Component, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ServiceName() < out[j].ServiceName()
	})
	return out
}

// Size returns the number of registered components.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// Descriptions builds the discovery component list.
func (r *Registry) Descriptions() []*protocol.Component {
	components := r.Components()
	out := make([]*protocol.Component, 0, len(components))
	for _, c := range components {
		out = append(out, Describe(c))
	}
	return out
}

// Describe builds one component's discovery entry.
func Describe(c Component) *protocol.Component {
	pc := &protocol.Component{
		ComponentType: string(c.ComponentType()),
		ServiceName:   c.ServiceName(),
	}
	if !c.ComponentType().IsEntity() {
		return pc
	}
	opts := c.ComponentOptions()
	entity := &protocol.EntitySettings{
		EntityType:                 opts.EntityType,
		ForwardHeaders:             opts.ForwardHeaders,
		ReplicatedWriteConsistency: int32(opts.WriteConsistency),
	}
	if opts.PassivationTimeout > 0 {
		entity.PassivationStrategy = &protocol.PassivationStrategy{
			Timeout: &protocol.TimeoutPassivationStrategy{Timeout: opts.PassivationTimeout},
		}
	}
	pc.Entity = entity
	return pc
}

// PreStartAll runs every component's PreStart hook in service-name order.
func (r *Registry) PreStartAll(info PreStartInfo) error {
	for _, c := range r.Components() {
		if err := c.PreStart(info); err != nil {
			if r.logger != nil {
				r.logger.Error("component_prestart_failed",
					"service_name", c.ServiceName(),
					"error", err.Error(),
				)
			}
			return fmt.Errorf("pre-start of %s failed: %w", c.ServiceName(), err)
		}
	}
	return nil
}
