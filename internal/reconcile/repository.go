package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrReviewItemNotFound = errors.New("review item not found")

// ReviewItem is one unidentifiable inbound event awaiting manual triage.
type ReviewItem struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Source         string
	CorrelationID  string
	RawPayload     []byte
	Reason         string
	Reviewed       bool
	CreatedAt      time.Time
}

// Repository provides data access for the manual review queue.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new reconcile repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one review item.
func (r *Repository) Insert(ctx context.Context, item ReviewItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO manual_review_queue (organization_id, source, correlation_id, raw_payload, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, item.OrganizationID, item.Source, item.CorrelationID, item.RawPayload, item.Reason)
	return err
}

// ListPending returns unreviewed items for a tenant, oldest first.
func (r *Repository) ListPending(ctx context.Context, orgID uuid.UUID, limit int) ([]ReviewItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, source, correlation_id, raw_payload, reason, reviewed, created_at
		FROM manual_review_queue
		WHERE organization_id = $1 AND reviewed = FALSE
		ORDER BY created_at ASC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ReviewItem
	for rows.Next() {
		var item ReviewItem
		if err := rows.Scan(
			&item.ID, &item.OrganizationID, &item.Source, &item.CorrelationID,
			&item.RawPayload, &item.Reason, &item.Reviewed, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkReviewed flags an item as handled.
func (r *Repository) MarkReviewed(ctx context.Context, orgID, itemID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE manual_review_queue SET reviewed = TRUE
		WHERE id = $1 AND organization_id = $2
	`, itemID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReviewItemNotFound
	}
	return nil
}
