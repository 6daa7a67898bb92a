package discovery_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/discovery"
	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
	"github.com/lightbend/kalix-go-sdk/kalix/valueentity"
	"github.com/lightbend/kalix-go-sdk/kalix/view"
)

func newHandler(t *testing.T, components ...component.Component) *discovery.Handler {
	t.Helper()
	registry := component.NewRegistry(nil)
	for _, c := range components {
		require.NoError(t, registry.Register(c))
	}
	info := &protocol.ServiceInfo{
		ServiceName:           "test-service",
		ServiceVersion:        "1.0.0",
		SupportLibraryName:    "kalix-go-sdk",
		SupportLibraryVersion: "1.0.0",
	}
	return discovery.NewHandler(nil, registry, []byte{1, 2, 3}, info)
}

func proxyInfo() *protocol.ProxyInfo {
	return &protocol.ProxyInfo{
		ProtocolMajorVersion: 1,
		ProxyName:            "kalix-proxy",
		ProxyVersion:         "1.1.0",
		ProxyHostname:        "localhost",
		ProxyPort:            9000,
	}
}

func TestDiscover_ValueEntityWithoutPassivation(t *testing.T) {
	handler := newHandler(t, &valueentity.Entity{
		Service: "my-service",
		Options: component.Options{EntityType: "my-entity-type"},
	})

	spec, err := handler.Discover(context.Background(), proxyInfo())
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2, 3}, spec.Proto)
	require.NotNil(t, spec.ServiceInfo)
	assert.Equal(t, "test-service", spec.ServiceInfo.ServiceName)

	require.Len(t, spec.Components, 1)
	c := spec.Components[0]
	assert.Equal(t, "value-entity", c.ComponentType)
	assert.Equal(t, "my-service", c.ServiceName)
	require.NotNil(t, c.Entity)
	assert.Equal(t, "my-entity-type", c.Entity.EntityType)
	assert.Nil(t, c.Entity.PassivationStrategy)
}

func TestDiscover_PassivationCarriedThrough(t *testing.T) {
	handler := newHandler(t, &valueentity.Entity{
		Service: "my-service",
		Options: component.Options{
			EntityType:         "my-entity-type",
			PassivationTimeout: 10,
		},
	})

	spec, err := handler.Discover(context.Background(), proxyInfo())
	require.NoError(t, err)

	require.Len(t, spec.Components, 1)
	strategy := spec.Components[0].Entity.PassivationStrategy
	require.NotNil(t, strategy)
	require.NotNil(t, strategy.Timeout)
	assert.Equal(t, int64(10), strategy.Timeout.Timeout)
}

func TestDiscover_RunsPreStart(t *testing.T) {
	var got component.PreStartInfo
	handler := newHandler(t, &valueentity.Entity{
		Service: "my-service",
		Options: component.Options{EntityType: "t"},
		OnPreStart: func(info component.PreStartInfo) error {
			got = info
			return nil
		},
	})

	_, err := handler.Discover(context.Background(), proxyInfo())
	require.NoError(t, err)
	assert.Equal(t, "localhost", got.ProxyHostname)
	assert.Equal(t, int32(9000), got.ProxyPort)
	require.NotNil(t, got.Identity)
	assert.Equal(t, "test-service", got.Identity.ServiceName)
}

func TestDiscover_PreStartFailureFailsHandshake(t *testing.T) {
	handler := newHandler(t, &valueentity.Entity{
		Service:    "my-service",
		Options:    component.Options{EntityType: "t"},
		OnPreStart: func(component.PreStartInfo) error { return fmt.Errorf("no client") },
	})

	_, err := handler.Discover(context.Background(), proxyInfo())
	assert.Error(t, err)
}

func TestReportError_ReturnsEmpty(t *testing.T) {
	handler := newHandler(t)
	handler.SetSourceReader(func(string) ([]byte, error) { return nil, fmt.Errorf("no file") })

	out, err := handler.ReportError(context.Background(), &protocol.UserFunctionError{
		Code:    "KLX-00112",
		Message: "broken",
	})
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestDiscover_ViewHasNoEntityBlock(t *testing.T) {
	handler := newHandler(t, &view.View{
		Service: "com.example.MyView",
		Options: component.Options{EntityType: "my-view-id"},
	})

	spec, err := handler.Discover(context.Background(), proxyInfo())
	require.NoError(t, err)

	require.Len(t, spec.Components, 1)
	assert.Equal(t, "view", spec.Components[0].ComponentType)
	assert.Nil(t, spec.Components[0].Entity)
}
