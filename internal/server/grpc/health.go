package grpcserver

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Check probes one dependency; nil means healthy.
type Check func(ctx context.Context) error

// Health keeps the health service status in sync with dependency probes.
// The overall status ("") is SERVING only when every check passes; each check is
// also reported under its own service name.
type Health struct {
	hs      *health.Server
	checks  map[string]Check
	log     *zap.Logger
	timeout time.Duration
}

// NewHealth returns a Health whose checks start as NOT_SERVING until the first Probe.
func NewHealth(log *zap.Logger, checks map[string]Check) *Health {
	h := &Health{hs: health.NewServer(), checks: checks, log: log, timeout: 2 * time.Second}
	h.hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for name := range checks {
		h.hs.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return h
}

// Probe runs every check once and publishes the result.
func (h *Health) Probe(ctx context.Context) bool {
	names := make([]string, 0, len(h.checks))
	for n := range h.checks {
		names = append(names, n)
	}
	sort.Strings(names)

	all := true
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.checks[name](cctx)
		cancel()
		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			all = false
			st = healthpb.HealthCheckResponse_NOT_SERVING
			h.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
		}
		h.hs.SetServingStatus(name, st)
	}
	if all {
		h.hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	} else {
		h.hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return all
}

// Run probes every interval until ctx ends, then marks everything NOT_SERVING.
func (h *Health) Run(ctx context.Context, every time.Duration) {
	h.Probe(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.hs.Shutdown()
			return
		case <-t.C:
			h.Probe(ctx)
		}
	}
}

// NewServer builds a gRPC server exposing h with logging and recovery interceptors.
func NewServer(log *zap.Logger, h *Health, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.hs)
	return s
}
