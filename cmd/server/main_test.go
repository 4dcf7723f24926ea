package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/qty-planner/internal/config"
	"github.com/and161185/qty-planner/internal/service"
)

func TestRun_MemoryBackend(t *testing.T) {
	cfg := &config.Server{JWTKey: "test-key", AccessTTL: time.Hour, SeedDemo: true}
	opt := options{memory: true, maxBatch: 100}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	be, err := openBackend(ctx, cfg, opt, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Empty(t, be.checks)

	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, opt, be, httpLis, grpcLis, zaptest.NewLogger(t)) }()

	base := "http://" + httpLis.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	body := `{"email":"` + service.DemoEmail + `","password":"` + service.DemoPassword + `"}`
	resp, err := http.Post(base+"/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var env struct {
		Success bool `json:"success"`
		Data    struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	_ = resp.Body.Close()
	require.True(t, env.Success)
	require.NotEmpty(t, env.Data.AccessToken)

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	hc := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		r, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{})
		return err == nil && r.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(shutdownGrace + time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestOpenBackend_BadRedis(t *testing.T) {
	cfg := &config.Server{JWTKey: "k", AccessTTL: time.Minute, RedisURL: "not-a-url"}
	_, err := openBackend(context.Background(), cfg, options{memory: true}, zaptest.NewLogger(t))
	require.Error(t, err)
}
