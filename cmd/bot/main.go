package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-relay/internal/api/http"
	"github.com/spec-kit/support-relay/internal/api/http/handlers"
	"github.com/spec-kit/support-relay/internal/auth"
	"github.com/spec-kit/support-relay/internal/bot"
	"github.com/spec-kit/support-relay/internal/config"
	"github.com/spec-kit/support-relay/internal/events"
	"github.com/spec-kit/support-relay/internal/gateway"
	"github.com/spec-kit/support-relay/internal/observability"
	"github.com/spec-kit/support-relay/internal/persistence"
	"github.com/spec-kit/support-relay/internal/repository"
	"github.com/spec-kit/support-relay/internal/service"
	"github.com/spec-kit/support-relay/internal/session"
	"github.com/spec-kit/support-relay/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	responseRepo := repository.NewResponseRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)

	sessions := session.NewRedisStore(redis.Client, cfg.Session.TTL())
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	gatewayClient := gateway.NewHTTPClient(cfg.Gateway, logger)

	staffService := service.NewStaffService(staffRepo, gatewayClient, cfg.Gateway, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		StaffRepo:    staffRepo,
		Dispatcher:   dispatcher,
		NumberPrefix: cfg.Gateway.TicketNumberPrefix,
		Clock:        time.Now,
	})
	claimService := service.NewClaimService(ticketRepo, staffService, dispatcher)
	relayService := service.NewRelayService(service.RelayDependencies{
		TicketRepo:   ticketRepo,
		ResponseRepo: responseRepo,
		Gateway:      gatewayClient,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	lifecycleService := service.NewLifecycleService(ticketRepo, dispatcher, time.Now)
	feedbackService := service.NewFeedbackService(ticketRepo, dispatcher)

	notifier := service.NewNotifierService(ticketRepo, gatewayClient, cfg.Gateway, logger)
	worker.StartNotificationWorker(notifier, dispatcher)

	botDispatcher := bot.NewDispatcher(bot.Dependencies{
		Sessions:  sessions,
		Tickets:   ticketService,
		Claims:    claimService,
		Relay:     relayService,
		Lifecycle: lifecycleService,
		Feedback:  feedbackService,
		Staff:     staffService,
		Gateway:   gatewayClient,
		Metrics:   metrics,
		Logger:    logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.WebhookJWTSecret, cfg.Auth.WebhookTokenTTLMinutes)
	webhookMiddleware := auth.NewWebhookMiddleware(tokens)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	webhookHandler := handlers.NewWebhookHandler(botDispatcher, logger)
	metricsHandler := handlers.NewMetricsHandler(metrics)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:            healthHandler,
		Webhook:           webhookHandler,
		Metrics:           metricsHandler,
		WebhookMiddleware: webhookMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
