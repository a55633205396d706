package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server bundles a gRPC server with the standard health service. The overall
// status ("") starts NOT_SERVING; the caller flips it once dependencies are up.
type Server struct {
	*grpc.Server
	Health *health.Server
}

func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerRecoveryInterceptor(logger),
		),
	}
	opts = append(opts, extra...)

	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return &Server{Server: srv, Health: hs}
}

// SetServing marks the named service (and the overall status) as serving.
func (s *Server) SetServing(service string) {
	s.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if service != "" {
		s.Health.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	}
}

// Drain marks everything NOT_SERVING and stops accepting new RPCs.
func (s *Server) Drain() {
	s.Health.Shutdown()
	s.GracefulStop()
}

// UnaryServerRecoveryInterceptor converts handler panics into codes.Internal.
func UnaryServerRecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.Error("grpc handler panic",
						"method", info.FullMethod,
						"request_id", RequestIDFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
				}
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
