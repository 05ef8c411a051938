package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/metrics"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

const shutdownTimeout = 10 * time.Second

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	outbox     *eventadapter.OutboxWorker
	cleanup    []func()
}

type storage struct {
	licenses    ports.LicenseRepository
	activations ports.ActivationRepository
	outbox      ports.OutboxRepository
	locker      ports.LicenseLocker
	ping        func(context.Context) error
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	return buildRuntime(ctx, cfg, logger)
}

func buildRuntime(ctx context.Context, cfg Config, logger *slog.Logger) (*Runtime, error) {
	logger.Info("bootstrapping m91 license service",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"storage_driver", cfg.StorageDriver,
	)
	rt := &Runtime{cfg: cfg, logger: logger}

	store, err := rt.openStorage(ctx)
	if err != nil {
		rt.close()
		return nil, err
	}

	var limiter ports.Cache
	redisPing := func(context.Context) error { return nil }
	if cfg.RedisURL != "" {
		client, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.cleanup = append(rt.cleanup, func() { _ = client.Close() })
		redisCache := cacheadapter.NewRedisCache(client)
		limiter = redisCache
		redisPing = redisCache.Ping
	} else {
		logger.Warn("REDIS_URL not set, public rate limiting disabled")
	}

	var tokens ports.TokenVerifier
	if cfg.AdminAuthDisabled {
		logger.Warn("admin authentication disabled")
	} else {
		verifier, err := security.NewHMACTokenVerifier(cfg.AdminTokenSecret, cfg.AdminTokenIssuer)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("init admin token verifier: %w", err)
		}
		tokens = verifier
	}

	prom := metrics.NewProm(cfg.MetricsNamespace)
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:              cfg.ServiceID,
			KeyGenerationMaxAttempts: cfg.KeyGenerationMaxAttempts,
			PublicRateLimitPerMinute: cfg.PublicRateLimitPerMinute,
			DefaultListLimit:         cfg.DefaultListLimit,
			MaxListLimit:             cfg.MaxListLimit,
			AdminAuthDisabled:        cfg.AdminAuthDisabled,
		},
		Licenses:    store.licenses,
		Activations: store.activations,
		Locker:      store.locker,
		Outbox:      store.outbox,
		Cache:       limiter,
		Tokens:      tokens,
		Metrics:     prom,
		Logger:      logger,
	})

	handler := httpadapter.NewHandler(svc, httpadapter.Options{
		Ready: func(ctx context.Context) error {
			if err := store.ping(ctx); err != nil {
				return fmt.Errorf("storage: %w", err)
			}
			if err := redisPing(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		},
		Metrics:        prom,
		MetricsHandler: prom.Handler(),
	})
	rt.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	rt.grpcServer = grpc.NewServer()
	rt.health = health.NewServer()
	healthpb.RegisterHealthServer(rt.grpcServer, rt.health)
	rt.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(rt.grpcServer, grpcadapter.NewLicenseInternalServer(svc, logger))

	rt.outbox = eventadapter.NewOutboxWorker(logger, store.outbox, rt.publisher(), cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	return rt, nil
}

func (r *Runtime) openStorage(ctx context.Context) (storage, error) {
	if r.cfg.StorageDriver == StorageMemory {
		r.logger.Warn("using in-memory storage, data is lost on restart")
		repos := memory.NewRepositories()
		return storage{
			licenses:    repos.Licenses,
			activations: repos.Activations,
			outbox:      repos.Outbox,
			locker:      repos.Locker,
			ping:        func(context.Context) error { return nil },
		}, nil
	}

	db, err := postgres.Connect(ctx, r.cfg.DatabaseURL, r.cfg.MaxDBConns)
	if err != nil {
		return storage{}, err
	}
	r.cleanup = append(r.cleanup, func() { _ = postgres.Close(db) })
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return storage{}, fmt.Errorf("run migrations: %w", err)
	}
	repos := postgres.NewRepositories(db)
	return storage{
		licenses:    repos.Licenses,
		activations: repos.Activations,
		outbox:      repos.Outbox,
		locker:      repos.Locker,
		ping:        func(ctx context.Context) error { return postgres.Ping(ctx, db) },
	}, nil
}

func (r *Runtime) publisher() ports.EventPublisher {
	if len(r.cfg.KafkaBrokers) == 0 {
		r.logger.Warn("KAFKA_BROKERS not set, outbox events are logged only")
		return eventadapter.NewLoggingPublisher(r.logger)
	}
	kafka, err := eventadapter.NewKafkaPublisher(r.cfg.KafkaBrokers, r.cfg.KafkaTopic, nil)
	if err != nil {
		r.logger.Error("kafka publisher unavailable, falling back to logging", "error", err)
		return eventadapter.NewLoggingPublisher(r.logger)
	}
	r.cleanup = append(r.cleanup, func() { _ = kafka.Close() })
	return kafka
}

func (r *Runtime) close() {
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		r.cleanup[i]()
	}
	r.cleanup = nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.close()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// The memory store lives in this process, so nobody else can drain its outbox.
	if r.cfg.StorageDriver == StorageMemory {
		go func() { _ = r.outbox.Run(ctx) }()
	}

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	r.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http shutdown incomplete", "error", err)
	}
	stopped := make(chan struct{})
	go func() {
		r.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		r.grpcServer.Stop()
	}
	return runErr
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.close()

	r.logger.Info("outbox worker started",
		"poll_interval", r.cfg.OutboxPollInterval.String(),
		"batch_size", r.cfg.OutboxBatchSize,
	)
	if err := r.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.Info("outbox worker stopped")
	return nil
}
