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

	httptransport "github.com/spec-kit/ticket-dispatch/internal/api/http"
	"github.com/spec-kit/ticket-dispatch/internal/api/http/handlers"
	"github.com/spec-kit/ticket-dispatch/internal/auth"
	"github.com/spec-kit/ticket-dispatch/internal/config"
	"github.com/spec-kit/ticket-dispatch/internal/devin"
	"github.com/spec-kit/ticket-dispatch/internal/events"
	"github.com/spec-kit/ticket-dispatch/internal/jira"
	"github.com/spec-kit/ticket-dispatch/internal/observability"
	"github.com/spec-kit/ticket-dispatch/internal/persistence"
	"github.com/spec-kit/ticket-dispatch/internal/repository"
	"github.com/spec-kit/ticket-dispatch/internal/service"
	"github.com/spec-kit/ticket-dispatch/internal/worker"
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

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		missionRepo repository.MissionRepository
		ticketRepo  repository.TicketRepository
		historyRepo repository.TicketHistoryRepository
	)
	readiness := map[string]handlers.Pinger{"redis": redis}
	if pg.Enabled() {
		missionRepo = repository.NewMissionRepository(pg.Pool)
		ticketRepo = repository.NewTicketRepository(pg.Pool)
		historyRepo = repository.NewTicketHistoryRepository(pg.Pool)
		readiness["postgres"] = pg
	} else {
		missionRepo = repository.NewMemoryMissionRepository()
		ticketRepo = repository.NewMemoryTicketRepository()
		historyRepo = repository.NewMemoryTicketHistoryRepository()
	}

	jiraClient := jira.NewClient(jira.Options{
		BaseURL:    cfg.Jira.BaseURL,
		Email:      cfg.Jira.Email,
		APIToken:   cfg.Jira.APIToken,
		MaxResults: cfg.Jira.MaxResults,
		Timeout:    cfg.Jira.Timeout,
		Logger:     logger,
	})
	devinClient := devin.NewClient(devin.Options{
		BaseURL:    cfg.Devin.APIURL,
		APIKey:     cfg.Devin.APIKey,
		TrackerURL: cfg.Jira.BaseURL,
		Timeout:    cfg.Devin.Timeout,
		MaxRetries: cfg.Devin.MaxRetries,
		BaseDelay:  cfg.Devin.BaseDelay,
		Recorder:   metrics,
		Logger:     logger,
	})

	dispatcher := events.NewInMemoryDispatcher()
	webhook := worker.NewWebhookWorker(cfg.Notification, logger)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification, webhook))
	webhookCtx, stopWebhook := context.WithCancel(context.Background())
	webhook.Start(webhookCtx)

	missionService := service.NewMissionService(service.MissionDependencies{
		MissionRepo:     missionRepo,
		TicketRepo:      ticketRepo,
		History:         historyRepo,
		Searcher:        jiraClient,
		PreviewSearcher: jira.NewCachedSearcher(jiraClient, time.Minute),
		Logger:          logger,
	})
	analysisService := service.NewAnalysisService(service.AnalysisDependencies{
		MissionRepo: missionRepo,
		TicketRepo:  ticketRepo,
		History:     historyRepo,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	selectionService := service.NewSelectionService(service.SelectionDependencies{
		MissionRepo:  missionRepo,
		TicketRepo:   ticketRepo,
		MaxSelection: cfg.Assignment.MaxSelectionSize,
		Logger:       logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		MissionRepo: missionRepo,
		TicketRepo:  ticketRepo,
		History:     historyRepo,
		Sessions:    devinClient,
		Locker:      redis,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		Workers:     cfg.Assignment.Workers,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.App.RequestTimeout() + 10*time.Second,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Missions:       handlers.NewMissionsHandler(missionService, analysisService),
		Tickets:        handlers.NewTicketsHandler(missionService, selectionService),
		Assignments:    handlers.NewAssignmentsHandler(assignmentService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.ShutdownWithTimeout(cfg.App.RequestTimeout())
	stopWebhook()
	webhook.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
