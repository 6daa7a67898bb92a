package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogrusLogger_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	lr := logrus.New()
	lr.SetOutput(&buf)
	lr.SetLevel(logrus.DebugLevel)
	lr.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	logger := NewLogrusLogger(lr)
	logger.Info("component_registered", "service_name", "svc", "component_type", "action")

	out := buf.String()
	assert.Contains(t, out, "component_registered")
	assert.Contains(t, out, "service_name=svc")
	assert.Contains(t, out, "component_type=action")
}

func TestLogrusLogger_OddTrailingArg(t *testing.T) {
	var buf bytes.Buffer
	lr := logrus.New()
	lr.SetOutput(&buf)
	lr.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	logger := NewLogrusLogger(lr)
	logger.Warn("odd_args", "dangling")
	assert.Contains(t, buf.String(), "arg=dangling")
}

func TestNoopLogger(t *testing.T) {
	logger := NewNoopLogger()
	logger.Debug("ignored")
	logger.Info("ignored")
	logger.Warn("ignored")
	logger.Error("ignored")
}

func TestParseLevel(t *testing.T) {
	lr := logrus.New()
	ParseLevel(lr, "debug")
	assert.Equal(t, logrus.DebugLevel, lr.GetLevel())

	ParseLevel(lr, "not-a-level")
	assert.Equal(t, logrus.InfoLevel, lr.GetLevel())
}
