package reconcile

import (
	"context"
	"fmt"

	"marketingops_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues manual-review items. Nil-safe: a nil client drops enqueues
// silently, which lets the composition root skip Redis wiring entirely when
// QUEUE support is not configured.
type Client struct {
	client *asynq.Client
	queue  string
}

// NewClient creates the enqueue side of the reconciliation queue.
func NewClient(cfg config.QueueConfig) (*Client, error) {
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

	return &Client{client: asynq.NewClient(opt), queue: queue}, nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueManualReview queues one unidentifiable inbound event for review.
func (c *Client) EnqueueManualReview(ctx context.Context, orgID uuid.UUID, source, correlationID string, rawPayload []byte, reason string) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewManualReviewTask(ManualReviewPayload{
		OrganizationID: orgID.String(),
		Source:         source,
		CorrelationID:  correlationID,
		RawPayload:     rawPayload,
		Reason:         reason,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(5))
	return err
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
