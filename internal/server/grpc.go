package server

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// HealthServiceName is the service name reported by the health endpoint in
// addition to the overall ("") status.
const HealthServiceName = "advantage.Tracker"

// Pinger is anything whose liveness decides the health status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health owns the gRPC server that answers standard health checks.
type Health struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewHealth builds a gRPC server with the health service registered and the
// status set to NOT_SERVING until Check succeeds.
func NewHealth(logger *zap.Logger) *Health {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	)
	healthpb.RegisterHealthServer(srv, hs)

	return &Health{server: srv, health: hs, logger: logger}
}

// GRPCServer returns the underlying server for Serve/GracefulStop.
func (h *Health) GRPCServer() *grpc.Server {
	return h.server
}

// Check pings the store and updates the serving status accordingly.
func (h *Health) Check(ctx context.Context, p Pinger) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := p.Ping(ctx); err != nil {
		h.logger.Warn("store ping failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(HealthServiceName, st)
}

// Watch re-checks the store every interval until ctx is done.
func (h *Health) Watch(ctx context.Context, p Pinger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			h.Check(checkCtx, p)
			cancel()
		}
	}
}

// Shutdown marks every service NOT_SERVING and stops the server gracefully.
func (h *Health) Shutdown() {
	h.health.Shutdown()
	h.server.GracefulStop()
}

// RecoveryInterceptor converts handler panics into codes.Internal.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in gRPC handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs each unary call with its duration and status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("gRPC call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
