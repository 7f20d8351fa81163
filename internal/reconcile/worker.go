package reconcile

import (
	"context"
	"fmt"

	"marketingops_backend/platform/config"
	"marketingops_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Worker drains the reconciliation queue into the Postgres review table.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	repo   *Repository
	log    *logger.Logger
}

// NewWorker creates the consume side of the reconciliation queue.
func NewWorker(cfg config.QueueConfig, pool *pgxpool.Pool, log *logger.Logger) (*Worker, error) {
	if !cfg.IsQueueEnabled() {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetQueueName()
	if queue == "" {
		queue = "default"
	}
	concurrency := cfg.GetQueueConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		repo:   NewRepository(pool),
		log:    log,
	}
	w.mux.HandleFunc(TaskManualReview, w.handleManualReview)

	return w, nil
}

func (w *Worker) handleManualReview(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseManualReviewPayload(task)
	if err != nil {
		return err
	}

	orgID, err := uuid.Parse(payload.OrganizationID)
	if err != nil {
		return err
	}

	if err := w.repo.Insert(ctx, ReviewItem{
		OrganizationID: orgID,
		Source:         payload.Source,
		CorrelationID:  payload.CorrelationID,
		RawPayload:     payload.RawPayload,
		Reason:         payload.Reason,
	}); err != nil {
		return err
	}

	w.log.Info("manual review item stored",
		"tenant_id", payload.OrganizationID,
		"source", payload.Source,
		"correlation_id", payload.CorrelationID,
	)
	return nil
}

// Run blocks serving tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("reconcile worker stopped", "error", err)
	}
}
