package health

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCHealthServer returns a standard gRPC health service whose overall
// status follows the checker
func (c *Checker) NewGRPCHealthServer() *health.Server {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	c.OnChange(func(healthy bool) {
		status := healthpb.HealthCheckResponse_SERVING
		if !healthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		srv.SetServingStatus("", status)
	})
	return srv
}

// ServeGRPC serves the checker's gRPC health service on lis until ctx is
// done, then drains in-flight calls
func (c *Checker) ServeGRPC(ctx context.Context, lis net.Listener) error {
	healthSrv := c.NewGRPCHealthServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		healthSrv.Shutdown()
		grpcServer.GracefulStop()
	}()

	c.log.Info("gRPC health server listening", "addr", lis.Addr().String())
	err := grpcServer.Serve(lis)
	if ctx.Err() != nil {
		<-stopped
		return nil
	}
	return err
}
