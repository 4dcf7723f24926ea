package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/qty-planner/internal/errs"
)

const defaultHealthPort = "8081"

// healthAddr derives host:8081 from the API base URL.
func healthAddr(apiBase string) string {
	u, err := url.Parse(apiBase)
	if err != nil || u.Hostname() == "" {
		return net.JoinHostPort("localhost", defaultHealthPort)
	}
	return net.JoinHostPort(u.Hostname(), defaultHealthPort)
}

func (a *app) cmdHealth(ctx context.Context, args []string) error {
	fs := a.flags("health")
	addr := fs.String("addr", healthAddr(a.cfg.APIBase), "gRPC health address")
	svc := fs.String("service", "", "service name (empty = overall)")
	useTLS := fs.Bool("tls", false, "use TLS")
	if err := parse(fs, args); err != nil {
		return err
	}

	creds := insecure.NewCredentials()
	if *useTLS {
		creds = credentials.NewTLS(&tls.Config{InsecureSkipVerify: a.cfg.InsecureTLS}) //nolint:gosec // dev flag
	}
	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", errs.ErrTransport, *addr, err)
	}
	defer conn.Close()

	st, err := checkHealth(ctx, healthpb.NewHealthClient(conn), *svc)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, st)
	if st != healthpb.HealthCheckResponse_SERVING.String() {
		return fmt.Errorf("%w: %s", errs.ErrTransport, st)
	}
	return nil
}

func checkHealth(ctx context.Context, c healthpb.HealthClient, service string) (string, error) {
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", fmt.Errorf("%w: health check: %v", errs.ErrTransport, err)
	}
	return resp.GetStatus().String(), nil
}
