package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/sessionbook/libs/auth"
	"github.com/md-rashed-zaman/sessionbook/libs/config"
	"github.com/md-rashed-zaman/sessionbook/libs/db"
	"github.com/md-rashed-zaman/sessionbook/libs/grpcx"
	"github.com/md-rashed-zaman/sessionbook/libs/httpx"
	"github.com/md-rashed-zaman/sessionbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/sessionbook/libs/otel"
	"github.com/md-rashed-zaman/sessionbook/libs/runtime"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/reschedule"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := configFromEnv()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service)
	if err := run(cfg, logger); err != nil {
		logger.Error("booking service stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		return err
	}
	defer pool.Close()
	version, err := db.Migrate(ctx, pool, storage.Migrations, storage.MigrationsDir)
	if err != nil {
		return err
	}
	logger.Info("database migrated", "version", version)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ob := outbox.NewRepository()
	bookings := storage.NewBookingRepository(pool, ob)
	providers := storage.NewProviderRepository(pool)
	var schedules handlers.ScheduleStore = storage.NewScheduleRepository(pool, ob)
	if rdb != nil {
		schedules = cache.NewScheduleCache(rdb, schedules, cfg.ScheduleCacheTTL, logger, m)
	}

	checker := conflict.NewChecker(cfg.Location)
	builder := reschedule.NewBuilder(handlers.NewRescheduleSource(schedules, bookings), cfg.RescheduleMaxDays, cfg.RescheduleParallelism)
	builder.OnFault = handlers.FaultReporter(logger, m)
	builder.Started = checker.Started

	h := handlers.New(handlers.Config{
		Schedules: schedules,
		Bookings:  bookings,
		Providers: providers,
		Builder:   builder,
		Checker:   checker,
		Logger:    logger,
		Metrics:   m,
	})

	if cfg.KafkaBrokers != "" {
		writer := kafkax.NewWriter(cfg.KafkaBrokers)
		defer func() { _ = writer.Close() }()
		publisher := outbox.NewPublisher(pool, ob, writer, logger, m, outbox.PublisherConfig{TopicPrefix: cfg.KafkaTopicPrefix})
		go publisher.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events stay unpublished")
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer, m.Middleware)
	r.Get("/healthz", runtime.Healthz)
	r.Get("/readyz", runtime.Readyz(checks...))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	var jwks *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.JWKSURL, 10*time.Minute)
	}
	h.Register(r, auth.Authenticate(auth.NewVerifier(cfg.JWTSecret, jwks)))

	limit := httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
	if rdb != nil && cfg.RedisRateLimit {
		limit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "sb:rl").Middleware(logger, true)
	}
	var httpHandler http.Handler = httpx.Chain(r,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.APIPolicy(cfg.CORSAllowedOrigins)),
		limit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	grpcSrv.SetServing("sessionbook.booking")

	errc := make(chan error, 2)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		logger.Info("grpc health server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcSrv.Drain()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("booking service stopped")
	return err
}
