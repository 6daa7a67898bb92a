package server_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/lightbend/kalix-go-sdk/kalix/component"
	"github.com/lightbend/kalix-go-sdk/kalix/config"
	"github.com/lightbend/kalix-go-sdk/kalix/server"
	"github.com/lightbend/kalix-go-sdk/kalix/testutil"
	"github.com/lightbend/kalix-go-sdk/kalix/valueentity"
)

// writeDescriptorSet writes the com.example fixture to a temp file.
func writeDescriptorSet(t *testing.T) string {
	t.Helper()
	raw, err := proto.Marshal(testutil.TestFileDescriptorSet())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "user-function.desc")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DescriptorSetPath: writeDescriptorSet(t),
		ServiceName:       "test-service",
		ServiceVersion:    "1.0.0",
		BindAddress:       "127.0.0.1",
		BindPort:          0,
	}
}

func TestRuntime_StartAndShutdown(t *testing.T) {
	rt := server.New(testConfig(t), &testutil.TestLogger{})
	require.NoError(t, rt.Register(&valueentity.Entity{
		Service: "com.example.ExampleService",
		Options: component.Options{EntityType: "t"},
	}))

	errCh, err := rt.StartBackground()
	require.NoError(t, err)
	assert.NotEmpty(t, rt.Address())

	done := make(chan struct{})
	rt.TryShutdown(func() { close(done) })
	<-done

	// The serve loop ended without error.
	err, ok := <-errCh
	if ok {
		assert.NoError(t, err)
	}
}

func TestRuntime_RegisterAfterStartRejected(t *testing.T) {
	rt := server.New(testConfig(t), &testutil.TestLogger{})

	_, err := rt.StartBackground()
	require.NoError(t, err)
	defer rt.Stop()

	assert.Error(t, rt.Register(&valueentity.Entity{
		Service: "com.example.ExampleService",
		Options: component.Options{EntityType: "t"},
	}))
}

func TestRuntime_UnknownServiceRejectedAtStart(t *testing.T) {
	rt := server.New(testConfig(t), &testutil.TestLogger{})
	require.NoError(t, rt.Register(&valueentity.Entity{
		Service: "com.example.NotInDescriptors",
		Options: component.Options{EntityType: "t"},
	}))

	_, err := rt.StartBackground()
	assert.Error(t, err)
}

func TestRuntime_MissingDescriptorSetFails(t *testing.T) {
	cfg := &config.Config{DescriptorSetPath: "does-not-exist.desc", BindPort: 0}
	rt := server.New(cfg, &testutil.TestLogger{})

	_, err := rt.StartBackground()
	assert.Error(t, err)
}

func TestRuntime_TryShutdownIsIdempotent(t *testing.T) {
	rt := server.New(testConfig(t), &testutil.TestLogger{})
	_, err := rt.StartBackground()
	require.NoError(t, err)

	rt.TryShutdown(nil)
	calls := 0
	rt.TryShutdown(func() { calls++ })
	assert.Equal(t, 1, calls)
}

func TestRuntime_Stats(t *testing.T) {
	rt := server.New(testConfig(t), &testutil.TestLogger{})
	require.NoError(t, rt.Register(&valueentity.Entity{
		Service: "com.example.ExampleService",
		Options: component.Options{EntityType: "t"},
	}))

	stats := rt.Stats()
	assert.Equal(t, false, stats["started"])
	assert.Equal(t, 1, stats["components"])
}
