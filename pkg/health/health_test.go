package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ad-assistant/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestChecker_CriticalFailureMarksUnhealthy(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	dbErr := errors.New("connection refused")
	c.RegisterDatabaseCheck(func(context.Context) error { return dbErr })
	c.RegisterRedisCheck(func(context.Context) error { return nil })

	c.RunChecks(context.Background())

	assert.False(t, c.IsSystemHealthy())
	status := c.GetStatus()
	assert.Equal(t, StatusDown, status["database"].Status)
	assert.Equal(t, "connection refused", status["database"].Error)
	assert.Equal(t, StatusUp, status["redis"].Status)

	w := httptest.NewRecorder()
	c.HTTPHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChecker_RedisOutageOnlyDegrades(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	c.RegisterRedisCheck(func(context.Context) error { return errors.New("timeout") })

	c.RunChecks(context.Background())

	assert.True(t, c.IsSystemHealthy())
	assert.Equal(t, StatusDegraded, c.GetStatus()["redis"].Status)

	w := httptest.NewRecorder()
	c.HTTPHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestChecker_GRPCHealthFollowsChecks(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	healthy := true
	c.RegisterDatabaseCheck(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})
	srv := c.NewGRPCHealthServer()
	ctx := context.Background()

	c.RunChecks(ctx)
	resp, err := srv.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	healthy = false
	c.RunChecks(ctx)
	resp, err = srv.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestChecker_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewChecker(logger.Discard(), 10*time.Millisecond)
	runs := make(chan struct{}, 10)
	c.RegisterCheck("probe", false, func(context.Context) (Status, string, error) {
		select {
		case runs <- struct{}{}:
		default:
		}
		return StatusUp, "", nil
	})

	c.Start()
	<-runs
	<-runs
	c.Stop()
}

func TestChecker_ServeGRPC(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- c.ServeGRPC(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	c.RunChecks(context.Background())
	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("gRPC server did not stop")
	}
}
