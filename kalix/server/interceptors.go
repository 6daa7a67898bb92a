// Interceptors for the proxy-facing gRPC surface.
//
// The host serves two call shapes: unary calls (discovery and unary actions)
// and streams (entity streams and streamed actions). Each gets one interceptor
// that contains panics and logs the call outcome; tracing comes from the
// OpenTelemetry stats handler.
package server

import (
	"context"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// Logger is the interface for structured logging in this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// UnaryInterceptor guards the unary calls. A panic escaping a
// handler surfaces to the proxy as Internal instead of tearing down the host.
func UnaryInterceptor(logger Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				logger.Error("rpc_panic",
					"method", info.FullMethod,
					"panic", p,
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "%s: internal error", info.FullMethod)
			}
			logOutcome(logger, "rpc", info.FullMethod, start, err)
		}()

		return handler(ctx, req)
	}
}

// StreamInterceptor guards the entity and action streams. The elapsed time
// covers the whole stream life; for an entity stream, typically the life of one
// entity instance.
func StreamInterceptor(logger Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		logger.Debug("entity_stream_opened", "method", info.FullMethod)
		defer func() {
			if p := recover(); p != nil {
				logger.Error("entity_stream_panic",
					"method", info.FullMethod,
					"panic", p,
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "%s: internal error", info.FullMethod)
			}
			logOutcome(logger, "entity_stream", info.FullMethod, start, err)
		}()

		return handler(srv, ss)
	}
}

// logOutcome logs one finished call. Failures log at warn with the gRPC code;
// the proxy retries streams, so this is not an error of the host itself.
func logOutcome(logger Logger, kind, method string, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		logger.Warn(kind+"_failed",
			"method", method,
			"code", status.Code(err).String(),
			"elapsed_ms", elapsed.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	logger.Debug(kind+"_closed",
		"method", method,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ServerOptions assembles the host's gRPC server options: the two
// interceptors, the OpenTelemetry stats handler, and the protocol frame
// codec.
func ServerOptions(logger Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.UnaryInterceptor(UnaryInterceptor(logger)),
		grpc.StreamInterceptor(StreamInterceptor(logger)),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ForceServerCodec(protocol.FrameCodec{}),
	}
}
