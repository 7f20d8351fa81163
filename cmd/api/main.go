package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketingops_backend/internal/events"
	"marketingops_backend/internal/extraction"
	apphttp "marketingops_backend/internal/http"
	"marketingops_backend/internal/leads"
	"marketingops_backend/internal/reconcile"
	"marketingops_backend/internal/webhook"
	"marketingops_backend/platform/config"
	"marketingops_backend/platform/db"
	"marketingops_backend/platform/logger"
	"marketingops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Extraction client; nil when GEMINI_API_KEY is absent
	extractor, err := extraction.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize extraction client", "error", err)
		panic("failed to initialize extraction client: " + err.Error())
	}
	if extractor == nil {
		log.Warn("GEMINI_API_KEY not configured; tax-declaration intake disabled")
	}

	// Reconciliation queue client; nil when REDIS_URL is absent
	reviewQueue := initReviewQueue(cfg, log)
	if reviewQueue != nil {
		defer reviewQueue.Close()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	webhookModule := webhook.NewModule(pool, cfg, log)
	leadsModule := leads.NewModule(pool, webhookModule.Dispatcher(), eventBus, log)
	reconcileModule := reconcile.NewModule(pool, log)
	reconcileModule.RegisterHandlers(eventBus)

	var extractorDep webhook.DeclarationExtractor
	if extractor != nil {
		extractorDep = extractor
	}
	var reviewDep webhook.ReviewQueue
	if reviewQueue != nil {
		reviewDep = reviewQueue
	}
	webhookModule.SetPipeline(leadsModule.Service(), val, extractorDep, reviewDep, eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			webhookModule,
			leadsModule,
			reconcileModule,
		},
	}

	engine := apphttp.NewRouter(app)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initReviewQueue(cfg config.QueueConfig, log *logger.Logger) *reconcile.Client {
	if !cfg.IsQueueEnabled() {
		log.Warn("REDIS_URL not configured; manual review queue disabled")
		return nil
	}

	client, err := reconcile.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize review queue client", "error", err)
		return nil
	}
	return client
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
