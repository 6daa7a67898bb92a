package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultDescriptorSetPath, cfg.DescriptorSetPath)
	assert.Equal(t, DefaultBindAddress, cfg.BindAddress)
	assert.Equal(t, DefaultBindPort, cfg.BindPort)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestNormalize_FillsUnsetFields(t *testing.T) {
	cfg := (&Config{BindPort: 9090, ServiceName: "svc"}).Normalize()
	assert.Equal(t, DefaultDescriptorSetPath, cfg.DescriptorSetPath)
	assert.Equal(t, DefaultBindAddress, cfg.BindAddress)
	assert.Equal(t, 9090, cfg.BindPort)
	assert.Equal(t, "svc", cfg.ServiceName)
	assert.Equal(t, "0.0.0", cfg.ServiceVersion)
}

func TestNormalize_KeepsExplicitValues(t *testing.T) {
	cfg := (&Config{
		DescriptorSetPath: "custom.desc",
		BindAddress:       "0.0.0.0",
		ServiceVersion:    "2.1.0",
		LogLevel:          "DEBUG",
	}).Normalize()
	assert.Equal(t, "custom.desc", cfg.DescriptorSetPath)
	assert.Equal(t, "0.0.0.0", cfg.BindAddress)
	assert.Equal(t, "2.1.0", cfg.ServiceVersion)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}
