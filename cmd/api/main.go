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

	httptransport "github.com/etala/case-service/internal/api/http"
	"github.com/etala/case-service/internal/api/http/handlers"
	"github.com/etala/case-service/internal/auth"
	"github.com/etala/case-service/internal/config"
	"github.com/etala/case-service/internal/events"
	"github.com/etala/case-service/internal/identity"
	"github.com/etala/case-service/internal/observability"
	"github.com/etala/case-service/internal/persistence"
	"github.com/etala/case-service/internal/repository"
	"github.com/etala/case-service/internal/repository/memory"
	"github.com/etala/case-service/internal/service"
	"github.com/etala/case-service/internal/worker"
)

type repositories struct {
	reports  repository.ReportRepository
	tickets  repository.TicketRepository
	messages repository.MessageRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	alerter := observability.NewSentryAlerter(cfg.Sentry, cfg.App, logger)
	defer observability.FlushAlerts(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	repos := newRepositories(pg)

	dispatcher := events.NewInMemoryDispatcher()
	fanout := worker.NewAsyncSink(
		events.NewRedisSink(redis.Client, cfg.Notification.ChannelPrefix, cfg.Notification.PublishTimeout()),
		logger,
		cfg.Notification.QueueSize,
		cfg.Notification.Workers,
	)
	fanout.Start(ctx)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, fanout, logger))

	messaging := service.NewMessagingService(service.MessagingDependencies{
		TicketRepo:  repos.tickets,
		MessageRepo: repos.messages,
		ReportRepo:  repos.reports,
		Dispatcher:  dispatcher,
		Alerter:     alerter,
		Logger:      logger,
	})
	generator := identity.NewGenerator(cfg.Identity.Prefix, identity.WithClock(func() time.Time {
		return time.Now().UTC()
	}))
	cases := service.NewCaseService(service.CaseDependencies{
		ReportRepo:  repos.reports,
		Generator:   generator,
		MaxAttempts: cfg.Identity.MaxAttempts,
		Messenger:   messaging,
		Dispatcher:  dispatcher,
		Alerter:     alerter,
		Logger:      logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:  logger,
		Metrics: metrics,
		Timeout: cfg.App.RequestTimeout(),
		Sentry:  cfg.Sentry.DSN != "",
	})

	dependencies := map[string]handlers.Dependency{"redis": redis}
	if pg.Enabled() {
		dependencies["postgres"] = pg
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, dependencies),
		Reports:        handlers.NewReportsHandler(cases),
		Tickets:        handlers.NewTicketsHandler(messaging),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	fanout.Stop()
}

func newRepositories(pg *persistence.Postgres) repositories {
	if !pg.Enabled() {
		store := memory.NewStore()
		return repositories{reports: store.Reports(), tickets: store.Tickets(), messages: store.Messages()}
	}
	pool := pg.PoolHandle()
	return repositories{
		reports:  repository.NewReportRepository(pool),
		tickets:  repository.NewTicketRepository(pool),
		messages: repository.NewMessageRepository(pool),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
