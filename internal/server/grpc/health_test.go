package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func dial(t *testing.T, s *grpc.Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func servingStatus(t *testing.T, c healthpb.HealthClient, svc string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: svc})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_FollowsChecks(t *testing.T) {
	t.Parallel()
	log := zaptest.NewLogger(t)

	var dbDown atomic.Bool
	h := NewHealth(log, map[string]Check{
		"postgres": func(context.Context) error {
			if dbDown.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
		"redis": func(context.Context) error { return nil },
	})
	c := dial(t, NewServer(log, h))

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, c, ""))

	require.True(t, h.Probe(context.Background()))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, c, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, c, "postgres"))

	dbDown.Store(true)
	require.False(t, h.Probe(context.Background()))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, c, ""))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, c, "postgres"))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, c, "redis"))
}

func TestHealth_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	log := zaptest.NewLogger(t)
	h := NewHealth(log, nil)
	c := dial(t, NewServer(log, h))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, time.Hour)
		close(done)
	}()
	require.Eventually(t, func() bool {
		resp, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, c, ""))
}
