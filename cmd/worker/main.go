package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketingops_backend/internal/reconcile"
	"marketingops_backend/platform/config"
	"marketingops_backend/platform/db"
	"marketingops_backend/platform/logger"
)

// The worker drains the manual-review queue into Postgres. It runs as a
// separate process so review ingestion survives API restarts and can be
// scaled independently.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting reconcile worker", "env", cfg.Env, "queue", cfg.QueueName)

	if !cfg.IsQueueEnabled() {
		panic("REDIS_URL is required for the reconcile worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx, cfg); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

	poolCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	pool, err := db.NewPool(poolCtx, cfg)
	cancel()
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	worker, err := reconcile.NewWorker(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("reconcile worker stopped")
}
