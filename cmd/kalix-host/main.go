// Kalix Host Server
//
// Standalone host runtime for protocol smoke testing. It loads a compiled
// descriptor set and serves the discovery and entity services over an empty
// component set; real user functions embed the runtime as a library instead.
//
// Usage:
//
//	go run ./cmd/kalix-host                          # Default 127.0.0.1:8080
//	go run ./cmd/kalix-host -port 0                  # Ephemeral port
//	go build -o kalix-host ./cmd/kalix-host && ./kalix-host -desc my.desc
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lightbend/kalix-go-sdk/kalix/config"
	"github.com/lightbend/kalix-go-sdk/kalix/logging"
	"github.com/lightbend/kalix-go-sdk/kalix/server"
)

func main() {
	addr := flag.String("addr", config.DefaultBindAddress, "bind address")
	port := flag.Int("port", config.DefaultBindPort, "bind port, 0 for ephemeral")
	desc := flag.String("desc", config.DefaultDescriptorSetPath, "compiled descriptor set path")
	name := flag.String("service-name", "kalix-host", "advertised service name")
	version := flag.String("service-version", "0.0.0", "advertised service version")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	lr := logrus.New()
	logging.ParseLevel(lr, *logLevel)
	logger := logging.NewLogrusLogger(lr)

	cfg := &config.Config{
		DescriptorSetPath: *desc,
		ServiceName:       *name,
		ServiceVersion:    *version,
		BindAddress:       *addr,
		BindPort:          *port,
		LogLevel:          *logLevel,
	}

	rt := server.New(cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh, err := rt.StartBackground()
	if err != nil {
		log.Fatalf("Failed to start host: %v", err)
	}
	logger.Info("kalix_host_ready", "address", rt.Address())

	select {
	case sig := <-sigCh:
		logger.Info("shutdown_signal_received", "signal", sig.String())
		rt.ShutdownWithTimeout(10 * time.Second)
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Host server error: %v", err)
		}
	}
	logger.Info("kalix_host_stopped")
}
