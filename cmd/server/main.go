// Command qp-server is the reference quantity-plan backend: the JSON API on
// one port and gRPC health on another.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/qty-planner/internal/config"
	"github.com/and161185/qty-planner/internal/limiter"
	"github.com/and161185/qty-planner/internal/logging"
	"github.com/and161185/qty-planner/internal/migrate"
	"github.com/and161185/qty-planner/internal/repository"
	"github.com/and161185/qty-planner/internal/repository/memory"
	"github.com/and161185/qty-planner/internal/repository/postgres"
	"github.com/and161185/qty-planner/internal/revocation"
	grpcserver "github.com/and161185/qty-planner/internal/server/grpc"
	"github.com/and161185/qty-planner/internal/server/httpapi"
	"github.com/and161185/qty-planner/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const (
	probeEvery    = 10 * time.Second
	shutdownGrace = 5 * time.Second
)

type options struct {
	memory   bool
	maxBatch int
	maxConns int
	dev      bool
}

// backend is the storage chosen at startup.
type backend struct {
	users  repository.UserRepository
	plans  repository.PlanRepository
	lim    limiter.Limiter
	revoke revocation.Store
	checks map[string]grpcserver.Check
	closer func()
}

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var opt options
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address")
	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "PostgreSQL DSN")
	flag.StringVar(&cfg.JWTKey, "jwt-key", cfg.JWTKey, "HS256 signing key (required)")
	flag.DurationVar(&cfg.AccessTTL, "access-ttl", cfg.AccessTTL, "access token TTL")
	flag.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "redis URL for token revocation (empty keeps it in memory)")
	flag.BoolVar(&cfg.SeedDemo, "seed", cfg.SeedDemo, "create the demo user and data set")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	flag.Float64Var(&cfg.ClientRPS, "client-rps", cfg.ClientRPS, "requests per second per client IP (0 disables)")
	flag.IntVar(&cfg.ClientBurst, "client-burst", cfg.ClientBurst, "burst size for -client-rps")
	flag.BoolVar(&opt.memory, "memory", false, "keep all data in memory instead of PostgreSQL")
	flag.IntVar(&opt.maxBatch, "max-batch", 1000, "max rows per save")
	flag.IntVar(&opt.maxConns, "max-conns", 0, "max PostgreSQL connections (0 keeps the pgx default)")
	flag.BoolVar(&opt.dev, "dev", false, "enable gRPC server reflection (dev only)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("grpcAddr", cfg.GRPCAddr),
		zap.Bool("memory", opt.memory),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, opt, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer be.closer()

	httpLis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen http", zap.Error(err))
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}

	if err := run(ctx, cfg, opt, be, httpLis, grpcLis, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func openBackend(ctx context.Context, cfg *config.Server, opt options, log *zap.Logger) (*backend, error) {
	be := &backend{checks: map[string]grpcserver.Check{}, closer: func() {}}

	if opt.memory {
		be.users = memory.NewUserRepo()
		be.plans = memory.NewPlanRepo()
		be.lim = limiter.NewMemory(nil, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
	} else {
		if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
		db, err := postgres.New(ctx, cfg.DSN, int32(opt.maxConns))
		if err != nil {
			return nil, err
		}
		be.users = postgres.NewUserRepo(db)
		be.plans = postgres.NewPlanRepo(db)
		be.lim = limiter.NewPG(db.Pool, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
		be.checks["postgres"] = db.Ping
		be.closer = db.Close
	}

	if cfg.RedisURL == "" {
		be.revoke = revocation.NewMemory(nil)
		return be, nil
	}
	rs, err := revocation.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		be.closer()
		return nil, fmt.Errorf("redis: %w", err)
	}
	be.revoke = rs
	be.checks["redis"] = rs.Ping
	return be, nil
}

// run serves HTTP and gRPC on the given listeners until ctx ends or either server fails.
func run(ctx context.Context, cfg *config.Server, opt options, be *backend,
	httpLis, grpcLis net.Listener, log *zap.Logger) error {
	authSvc := service.NewAuthService(be.users, []byte(cfg.JWTKey), cfg.AccessTTL, be.lim, be.revoke)
	planSvc := service.NewPlanService(be.plans, opt.maxBatch)

	if cfg.SeedDemo {
		if err := service.SeedDemo(ctx, authSvc, be.plans); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Info("demo data seeded", zap.String("email", service.DemoEmail))
	}

	api := httpapi.New(authSvc, planSvc, log, httpapi.WithClientRate(cfg.ClientRPS, cfg.ClientBurst))
	hsrv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	health := grpcserver.NewHealth(log, be.checks)
	gsrv := grpcserver.NewServer(log, health)
	if opt.dev {
		reflection.Register(gsrv)
	}

	probeCtx, cancelProbe := context.WithCancel(ctx)
	defer cancelProbe()
	go health.Run(probeCtx, probeEvery)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", httpLis.Addr().String()))
		if err := hsrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.Info("grpc listening", zap.String("addr", grpcLis.Addr().String()))
		if err := gsrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	cancelProbe()
	shutdown(hsrv, gsrv, log)
	return runErr
}

func shutdown(hsrv *http.Server, gsrv *grpc.Server, log *zap.Logger) {
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := hsrv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		gsrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-sctx.Done():
		gsrv.Stop()
	}
}
