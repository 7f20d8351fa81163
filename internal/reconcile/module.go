package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"marketingops_backend/internal/events"
	apphttp "marketingops_backend/internal/http"
	"marketingops_backend/internal/webhook"
	"marketingops_backend/platform/httpkit"
	"marketingops_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the review-queue persistence surface the module needs.
type Store interface {
	Insert(ctx context.Context, item ReviewItem) error
	ListPending(ctx context.Context, orgID uuid.UUID, limit int) ([]ReviewItem, error)
	MarkReviewed(ctx context.Context, orgID, itemID uuid.UUID) error
}

// Module exposes the manual review queue over HTTP (back-office triage for
// inbound events the pipeline could not attach to a lead) and observes
// pipeline events on the bus.
type Module struct {
	repo Store
	keys *webhook.Repository
	log  *logger.Logger
}

// NewModule creates the reconcile module.
func NewModule(pool *pgxpool.Pool, log *logger.Logger) *Module {
	return &Module{
		repo: NewRepository(pool),
		keys: webhook.NewRepository(pool),
		log:  log,
	}
}

// RegisterHandlers subscribes to the domain events the module observes.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.EventQueuedForReview{}.EventName(), m)
	m.log.Info("reconcile module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.EventQueuedForReview:
		return m.handleQueuedForReview(ctx, e)
	}
	return nil
}

// handleQueuedForReview surfaces every queued event in the logs and captures
// it directly into the review table when the queue transport did not accept
// it, so triage never loses an event to a missing or unreachable broker.
func (m *Module) handleQueuedForReview(ctx context.Context, e events.EventQueuedForReview) error {
	if !e.Enqueued {
		if err := m.repo.Insert(ctx, ReviewItem{
			OrganizationID: e.TenantID,
			Source:         e.Source,
			CorrelationID:  e.CorrelationID,
			RawPayload:     e.RawPayload,
			Reason:         e.Reason,
		}); err != nil {
			m.log.Error("failed to capture review item", "correlationId", e.CorrelationID, "error", err)
			return err
		}
	}
	m.log.Warn("inbound event queued for manual review",
		"tenantId", e.TenantID, "source", e.Source, "correlationId", e.CorrelationID, "enqueued", e.Enqueued)
	return nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "reconcile"
}

// RegisterRoutes mounts the review-queue routes behind the same API-key auth
// as the rest of the tenant surface.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/review-queue")
	group.Use(webhook.APIKeyAuthMiddleware(m.keys))
	group.GET("", m.handleListPending)
	group.POST("/:itemId/reviewed", m.handleMarkReviewed)
}

// ReviewItemResponse is one queued event awaiting triage.
type ReviewItemResponse struct {
	ID            uuid.UUID       `json:"id"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlationId"`
	RawPayload    json.RawMessage `json:"rawPayload"`
	Reason        string          `json:"reason"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// handleListPending returns the tenant's unreviewed items, oldest first.
// GET /api/v1/review-queue
func (m *Module) handleListPending(c *gin.Context) {
	orgID, ok := m.orgID(c)
	if !ok {
		return
	}

	items, err := m.repo.ListPending(c.Request.Context(), orgID, 100)
	if httpkit.HandleError(c, err) {
		return
	}

	responses := make([]ReviewItemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, ReviewItemResponse{
			ID:            item.ID,
			Source:        item.Source,
			CorrelationID: item.CorrelationID,
			RawPayload:    json.RawMessage(item.RawPayload),
			Reason:        item.Reason,
			CreatedAt:     item.CreatedAt,
		})
	}
	httpkit.OK(c, gin.H{"items": responses})
}

// handleMarkReviewed flags one item as handled.
// POST /api/v1/review-queue/:itemId/reviewed
func (m *Module) handleMarkReviewed(c *gin.Context) {
	orgID, ok := m.orgID(c)
	if !ok {
		return
	}

	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid review item ID", nil)
		return
	}

	if err := m.repo.MarkReviewed(c.Request.Context(), orgID, itemID); err != nil {
		if errors.Is(err, ErrReviewItemNotFound) {
			httpkit.Error(c, http.StatusNotFound, "review item not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"reviewed": true})
}

func (m *Module) orgID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(webhook.ContextOrgIDKey)
	if !exists {
		httpkit.Error(c, http.StatusUnauthorized, "no organization context", nil)
		return uuid.Nil, false
	}
	orgID, ok := value.(uuid.UUID)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "no organization context", nil)
		return uuid.Nil, false
	}
	return orgID, true
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
