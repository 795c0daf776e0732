package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	rediscache "github.com/KingHarry001/portfolio/internal/cache/redis"
	"github.com/KingHarry001/portfolio/internal/config"
	"github.com/KingHarry001/portfolio/internal/event"
	handler "github.com/KingHarry001/portfolio/internal/handler/http"
	"github.com/KingHarry001/portfolio/internal/identity"
	"github.com/KingHarry001/portfolio/internal/repository"
	"github.com/KingHarry001/portfolio/internal/repository/memory"
	"github.com/KingHarry001/portfolio/internal/repository/postgres"
	"github.com/KingHarry001/portfolio/internal/service"
	"github.com/KingHarry001/portfolio/migrations"
	"github.com/KingHarry001/portfolio/pkg/database"
	"github.com/KingHarry001/portfolio/pkg/health"
	pkgkafka "github.com/KingHarry001/portfolio/pkg/kafka"
	"github.com/KingHarry001/portfolio/pkg/middleware"
	"github.com/KingHarry001/portfolio/pkg/tracing"
)

// idempotencyTTL is how long processed event IDs are remembered.
const idempotencyTTL = 24 * time.Hour

// App wires together all dependencies and runs the review service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	appDeleted     *pkgkafka.Consumer
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "review",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	repo, err := a.initStore(ctx, healthHandler)
	if err != nil {
		return a.abort(err)
	}

	opts := []service.Option{service.WithMinTextLength(cfg.MinTextLength)}

	if cfg.StatsCacheEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return a.abort(fmt.Errorf("connect to redis: %w", err))
		}
		a.redis = client
		logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		opts = append(opts, service.WithStatsCache(rediscache.NewStatsCache(client, cfg.StatsCacheTTL())))
	}

	if cfg.ProfileURL != "" {
		profiles := identity.NewProfileClient(cfg.ProfileURL, cfg.IdentityServiceKey, logger)
		opts = append(opts, service.WithProfileResolver(profiles))
	}

	var publisher service.EventPublisher = event.NoopPublisher{}
	if cfg.KafkaEnabled {
		kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
		a.producer = pkgkafka.NewProducer(kafkaCfg, logger)
		if err := pingKafkaWithRetry(ctx, a.producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		publisher = event.NewProducer(a.producer, logger)
	} else {
		logger.Warn("kafka disabled, review events will not be published")
	}

	reviewService := service.NewReviewService(repo, publisher, logger, opts...)

	if cfg.KafkaEnabled {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)

		var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
		if a.redis != nil {
			store = pkgkafka.NewRedisIdempotencyStore(a.redis, idempotencyTTL)
		}

		eventConsumer := event.NewConsumer(reviewService, logger)
		a.appDeleted = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaConsumerGroup,
			Topic:    event.TopicAppDeleted,
			MinBytes: 1,
			MaxBytes: 10e6,
		}, pkgkafka.IdempotentHandler(store, eventConsumer.HandleAppDeleted, logger), logger,
			pkgkafka.WithDeadLetter(a.dlq),
		)
	}

	a.limiter = middleware.NewRateLimiter(cfg.SubmitRateLimitRPS, cfg.SubmitRateLimitBurst, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	validator := identity.NewJWTValidator(cfg.JWTSecret, cfg.JWTIssuer)

	router := handler.NewRouter(reviewService, healthHandler, handler.RouterConfig{
		Validator:     validator.Validate,
		SubmitLimiter: a.limiter,
		CORS:          corsCfg,
		PprofCIDRs:    cfg.PprofAllowedCIDRs,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initStore opens the configured review store. The PostgreSQL store is
// migrated and registered as a critical health dependency.
func (a *App) initStore(ctx context.Context, healthHandler *health.Handler) (repository.ReviewRepository, error) {
	cfg := a.cfg
	if cfg.Store == config.StoreMemory {
		a.logger.Warn("using in-memory review store, reviews are lost on restart")
		return memory.NewReviewRepository(), nil
	}

	pool, err := database.NewPostgresPoolWithLogger(ctx, cfg.Postgres(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "review"); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), a.logger)
	}

	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	return postgres.NewReviewRepository(pool), nil
}

// Run starts the HTTP server and the Kafka consumer, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start Kafka consumer.
	if a.appDeleted != nil {
		go func() {
			if err := a.appDeleted.Start(ctx); err != nil {
				errCh <- fmt.Errorf("app deleted consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumer, DLQ writer and producer
// 4. Redis and PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests.
	if a.httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpCancel()
		if err := a.httpServer.Shutdown(httpCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3 and 4.
	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// abort unwinds a partially built App, including the tracer, and returns err.
func (a *App) abort(err error) (*App, error) {
	a.closeResources()
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if terr := a.tracerShutdown(ctx); terr != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", terr.Error()))
		}
	}
	return nil, err
}

// closeResources releases the Kafka, Redis and PostgreSQL clients.
func (a *App) closeResources() []error {
	var errs []error

	if a.appDeleted != nil {
		if err := a.appDeleted.Close(); err != nil {
			a.logger.Error("app deleted consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}

	return errs
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := range 3 {
		err := producer.Ping(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
