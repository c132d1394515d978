package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/frigate-notifier/internal/logger"
)

// ServiceName is the health service name of the notifier daemon.
const ServiceName = "frigate.notifier.Notifier"

// stopTimeout bounds GracefulStop; open Watch streams would block it forever.
const stopTimeout = 5 * time.Second

// Server owns a gRPC server exposing only the health service.
type Server struct {
	// grpc is the underlying server.
	grpc *grpc.Server
	// health tracks serving status per service.
	health *grpchealth.Server
}

// NewServer creates a server reporting NOT_SERVING until SetServing is called.
func NewServer() *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: grpchealth.NewServer(),
	}

	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)

	return s
}

// SetServing updates the status of both the overall server and ServiceName.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve listens on address and serves until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is cancelled. On cancellation every
// service is switched to NOT_SERVING before the server stops.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	ctx = logger.WithName(ctx, "health")

	logger.InfoKV(ctx, "Health service listening", "listen_address", lis.Addr().String())

	// Done channel is closed after the server fully stops.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down health service")
		s.health.Shutdown()
		s.stop()
		close(done)
	}()

	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Health service stopped")

	return nil
}

// stop tries a graceful stop and forces it after stopTimeout.
func (s *Server) stop() {
	stopped := make(chan struct{})

	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
	case <-timer.C:
		s.grpc.Stop()
	}
}
