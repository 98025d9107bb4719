package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kursadbilgin/notifier/internal/config"
	"github.com/kursadbilgin/notifier/internal/handler"
	"github.com/kursadbilgin/notifier/internal/infra/postgresql"
	"github.com/kursadbilgin/notifier/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notifier/internal/infra/redis"
	"github.com/kursadbilgin/notifier/internal/observability"
	"github.com/kursadbilgin/notifier/internal/queue"
	"github.com/kursadbilgin/notifier/internal/render"
	"github.com/kursadbilgin/notifier/internal/repository"
	"github.com/kursadbilgin/notifier/internal/retry"
	"github.com/kursadbilgin/notifier/internal/service"
	"github.com/kursadbilgin/notifier/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
	logger.Info("worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.Pool{
		MaxOpen: max(cfg.DBMaxConns, cfg.WorkerConcurrency+2),
	})
	if err != nil {
		return err
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer broker.Close()

	metrics := observability.NewMetrics()

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	channelLimits, err := cfg.ChannelRateLimits()
	if err != nil {
		return err
	}
	limiter, err := infraredis.NewRedisRateLimiter(rdb, infraredis.Limits{
		PerSecond: cfg.RateLimitPerSec,
		Channels:  channelLimits,
	})
	if err != nil {
		return err
	}

	notifications := repository.NewGormNotificationRepo(db)
	publisher := queue.NewRabbitMQPublisher(broker)
	consumer := queue.NewRabbitMQConsumer(broker, cfg.WorkerPrefetch, logger)

	deadLetters, err := service.NewDeadLetterSink(notifications, logger)
	if err != nil {
		return err
	}

	worker, err := service.NewWorkerService(service.WorkerDeps{
		Notifications: notifications,
		Attempts:      repository.NewGormAttemptRepo(db),
		Consumer:      consumer,
		Publisher:     publisher,
		Providers:     registry,
		Renderer:      render.NewRenderer(repository.NewGormTemplateRepo(db)),
		RateLimiter:   limiter,
		DeadLetters:   deadLetters,
	}, service.WorkerConfig{
		Concurrency:     cfg.WorkerConcurrency,
		LeaseDuration:   cfg.LeaseDuration,
		ProviderTimeout: cfg.ProviderTimeout,
		Policy: retry.Policy{
			MaxRetries:     cfg.RetryMax,
			BaseDelay:      cfg.RetryBaseDelay,
			Factor:         cfg.RetryFactor,
			MaxDelay:       cfg.RetryMaxDelay,
			JitterFraction: retry.DefaultJitterFraction,
		},
	}, logger)
	if err != nil {
		return err
	}
	worker.SetMetrics(metrics)

	reaper, err := service.NewReaper(notifications, publisher, cfg.ReaperInterval, cfg.LeaseDuration, cfg.ReaperBatch, logger)
	if err != nil {
		return err
	}
	reaper.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	logger.Info("notifier worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("httpPort", cfg.WorkerHTTPPort),
		zap.Strings("queues", queue.WorkQueueNames()),
	)

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(groupCtx) })
	g.Go(func() error { return reaper.Start(groupCtx) })
	g.Go(func() error {
		err := app.Listen(fmt.Sprintf(":%d", cfg.WorkerHTTPPort))
		if err != nil && groupCtx.Err() == nil {
			return fmt.Errorf("worker http listener failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
