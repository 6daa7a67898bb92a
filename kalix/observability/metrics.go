// Package observability provides Prometheus metrics instrumentation for the host runtime.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lightbend/kalix-go-sdk/kalix/eventbus"
)

// =============================================================================
// STREAM METRICS
// =============================================================================

var (
	streamsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kalix_entity_streams_active",
			Help: "Number of open entity streams",
		},
		[]string{"component_type"},
	)

	streamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalix_entity_streams_total",
			Help: "Total entity streams opened",
		},
		[]string{"component_type"},
	)
)

// =============================================================================
// ENTITY METRICS
// =============================================================================

var (
	entitiesActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kalix_entities_active",
			Help: "Number of live entity instances",
		},
		[]string{"component_type"},
	)

	entitiesActivatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalix_entities_activated_total",
			Help: "Total entity instance activations",
		},
		[]string{"component_type", "service"},
	)
)

// =============================================================================
// COMMAND METRICS
// =============================================================================

var (
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalix_commands_total",
			Help: "Total commands processed",
		},
		[]string{"component_type", "service", "status"}, // status: success, failure
	)

	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kalix_command_duration_seconds",
			Help:    "Command processing duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"component_type", "service"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordStreamStarted records an opened entity stream.
func RecordStreamStarted(componentType string) {
	streamsActive.WithLabelValues(componentType).Inc()
	streamsTotal.WithLabelValues(componentType).Inc()
}

// RecordStreamEnded records a closed entity stream.
func RecordStreamEnded(componentType string) {
	streamsActive.WithLabelValues(componentType).Dec()
}

// RecordEntityActivated records an entity instance activation.
func RecordEntityActivated(componentType, service string) {
	entitiesActive.WithLabelValues(componentType).Inc()
	entitiesActivatedTotal.WithLabelValues(componentType, service).Inc()
}

// RecordEntityReleased records an entity instance release.
func RecordEntityReleased(componentType string) {
	entitiesActive.WithLabelValues(componentType).Dec()
}

// RecordCommand records one processed command.
func RecordCommand(componentType, service, status string, durationMS int64) {
	commandsTotal.WithLabelValues(componentType, service, status).Inc()
	commandDurationSeconds.WithLabelValues(componentType, service).Observe(float64(durationMS) / 1000.0)
}

// SubscribeMetrics wires the host event bus into the metrics above. Call once
// at runtime start.
func SubscribeMetrics(bus *eventbus.Bus) {
	bus.Subscribe((&eventbus.StreamStarted{}).EventType(), func(e eventbus.Event) {
		if ev, ok := e.(*eventbus.StreamStarted); ok {
			RecordStreamStarted(ev.ComponentType)
		}
	})
	bus.Subscribe((&eventbus.StreamEnded{}).EventType(), func(e eventbus.Event) {
		if ev, ok := e.(*eventbus.StreamEnded); ok {
			RecordStreamEnded(ev.ComponentType)
		}
	})
	bus.Subscribe((&eventbus.EntityActivated{}).EventType(), func(e eventbus.Event) {
		if ev, ok := e.(*eventbus.EntityActivated); ok {
			RecordEntityActivated(ev.ComponentType, ev.ServiceName)
		}
	})
	bus.Subscribe((&eventbus.EntityReleased{}).EventType(), func(e eventbus.Event) {
		if ev, ok := e.(*eventbus.EntityReleased); ok {
			RecordEntityReleased(ev.ComponentType)
		}
	})
	bus.Subscribe((&eventbus.CommandCompleted{}).EventType(), func(e eventbus.Event) {
		if ev, ok := e.(*eventbus.CommandCompleted); ok {
			RecordCommand(ev.ComponentType, ev.ServiceName, ev.Status, ev.DurationMs)
		}
	})
}
