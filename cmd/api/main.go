package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/careloop/reminder-engine/internal/adapter"
	"github.com/careloop/reminder-engine/internal/config"
	"github.com/careloop/reminder-engine/internal/domain"
	"github.com/careloop/reminder-engine/internal/events"
	"github.com/careloop/reminder-engine/internal/handler"
	"github.com/careloop/reminder-engine/internal/infra/postgresql"
	"github.com/careloop/reminder-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/careloop/reminder-engine/internal/infra/redis"
	"github.com/careloop/reminder-engine/internal/observability"
	"github.com/careloop/reminder-engine/internal/repository"
	"github.com/careloop/reminder-engine/internal/service"
	"github.com/careloop/reminder-engine/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, cfg.RunnerConcurrency)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL, cfg.RunnerConcurrency)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	var publisher events.Publisher = events.NopPublisher{}
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		rabbit, err := events.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, state-change events disabled", zap.Error(err))
		} else {
			publisher = events.NewRabbitMQPublisher(rabbit)
		}
	}
	defer publisher.Close()

	registry, err := buildAdapterRegistry(cfg)
	if err != nil {
		logger.Fatal("adapter initialization failed", zap.Error(err))
	}

	reminderRepo := repository.NewGormReminderRepo(db)
	logRepo := repository.NewGormDeliveryLogRepo(db)
	templateRepo := repository.NewGormTemplateRepo(db)

	enqueueSvc, err := service.NewEnqueueService(reminderRepo, publisher, logger)
	if err != nil {
		logger.Fatal("enqueue service initialization failed", zap.Error(err))
	}

	runner, err := service.NewBatchRunner(
		reminderRepo,
		logRepo,
		templateRepo,
		registry,
		rateLimiter,
		publisher,
		cfg.RunnerConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("batch runner initialization failed", zap.Error(err))
	}

	reconciler, err := service.NewReconciler(reminderRepo, logRepo, publisher, logger)
	if err != nil {
		logger.Fatal("reconciler initialization failed", zap.Error(err))
	}

	reaper, err := service.NewReaper(
		reminderRepo,
		cfg.ReaperInterval(),
		cfg.ClaimTimeout(),
		cfg.SentPendingGrace(),
		logger,
	)
	if err != nil {
		logger.Fatal("reaper initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	runner.SetMetrics(metrics)
	reconciler.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterReminderRoutes(app, enqueueSvc); err != nil {
		logger.Fatal("reminder routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterRunRoutes(app, runner, cfg.TriggerToken, cfg.BatchLimit); err != nil {
		logger.Fatal("run routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterCallbackRoutes(app, reconciler, logger); err != nil {
		logger.Fatal("callback routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := reaper.Start(ctx); err != nil {
			logger.Error("reaper stopped with error", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("reminder-engine api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// buildAdapterRegistry wires one HTTP adapter per configured channel. SMS is
// mandatory; chat and email are enabled by their provider URLs.
func buildAdapterRegistry(cfg *config.Config) (adapter.Registry, error) {
	adapters := make([]adapter.ChannelAdapter, 0, 3)

	sms, err := adapter.NewHTTPAdapter(domain.ChannelSMS, cfg.SMSProviderURL)
	if err != nil {
		return nil, err
	}
	adapters = append(adapters, sms)

	if strings.TrimSpace(cfg.ChatProviderURL) != "" {
		chat, err := adapter.NewHTTPAdapter(domain.ChannelChat, cfg.ChatProviderURL)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, chat)
	}

	if strings.TrimSpace(cfg.EmailProviderURL) != "" {
		email, err := adapter.NewHTTPAdapter(domain.ChannelEmail, cfg.EmailProviderURL)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, email)
	}

	return adapter.NewRegistry(adapters...), nil
}
