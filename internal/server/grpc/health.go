// Package grpc exposes engine readiness through the standard gRPC health service.
package grpc

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "whisper_api.v1.Transcription"

// HealthServer serves grpc.health.v1.Health.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// NewHealthServer creates a server that reports NOT_SERVING until SetServing(true).
func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		logger: logger,
	}
	healthgrpc.RegisterHealthServer(s.server, s.health)
	s.SetServing(false)

	return s
}

// SetServing updates the reported status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthgrpc.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthgrpc.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks serving lis until Stop is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks the service NOT_SERVING and stops gracefully, forcing after timeout.
func (s *HealthServer) Stop(timeout time.Duration) {
	s.SetServing(false)
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		s.logger.Warn("Graceful stop timed out, forcing stop")
		s.server.Stop()
	}
}
