package ingest

import (
	"context"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/edgeview/internal/logging"
	"github.com/signalsfoundry/edgeview/internal/observability"
)

// Server is the ingest gRPC server together with its health service.
type Server struct {
	GRPC   *grpc.Server
	Health *health.Server
	log    logging.Logger
}

// NewServer builds a gRPC server with the request-id, tracing and metrics
// interceptors, the otelgrpc stats handler, the ingest service and the
// standard health service. collector may be nil.
func NewServer(svc EventIngestServer, collector *observability.EngineCollector, log logging.Logger) *Server {
	log = logging.OrNoop(log)
	unary := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if collector != nil {
		unary = append(unary, collector.UnaryServerInterceptor())
	}

	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(RequestIDStreamServerInterceptor(log)),
	)
	RegisterEventIngestServer(gs, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{GRPC: gs, Health: hs, log: log}
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info(context.Background(), "starting ingest gRPC server", logging.String("addr", lis.Addr().String()))
	return s.GRPC.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs. Open Watch
// streams end when ctx is done.
func (s *Server) Stop(ctx context.Context) {
	s.Health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.GRPC.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.GRPC.Stop()
		<-done
	}
}
