// Package view registers views: components that consume state changes to
// serve queries. Views hold no state in the user function; the proxy runs the
// queries, so the registration only participates in discovery.
package view

import (
	"github.com/lightbend/kalix-go-sdk/kalix/component"
)

// View is a view registration. Register it with the runtime before start.
type View struct {
	// Service is the fully-qualified protobuf service name this view
	// implements.
	Service string
	// Options carries the view id as the entity type tag.
	Options component.Options
	// OnPreStart optionally configures outbound clients during discovery.
	OnPreStart func(info component.PreStartInfo) error
}

// ComponentType implements component.Component.
func (v *View) ComponentType() component.Type {
	return component.TypeView
}

// ServiceName implements component.Component.
func (v *View) ServiceName() string {
	return v.Service
}

// ComponentOptions implements component.Component.
func (v *View) ComponentOptions() component.Options {
	return v.Options
}

// PreStart implements component.Component.
func (v *View) PreStart(info component.PreStartInfo) error {
	if v.OnPreStart == nil {
		return nil
	}
	return v.OnPreStart(info)
}
