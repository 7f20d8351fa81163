// Package handler exposes the lead read API: the canonical record and its
// audit trail. Leads are written exclusively by the pipeline; there is no
// HTTP write path.
package handler

import (
	"context"
	"net/http"
	"time"

	"marketingops_backend/internal/leads/domain"
	"marketingops_backend/internal/leads/service"
	"marketingops_backend/internal/webhook"
	"marketingops_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeliveryStore reads outbound delivery logs. Satisfied by the webhook
// repository.
type DeliveryStore interface {
	ListDeliveriesByLead(ctx context.Context, leadID uuid.UUID, limit int) ([]webhook.DeliveryLog, error)
}

// Handler handles lead read requests.
type Handler struct {
	service    *service.Service
	deliveries DeliveryStore
}

// New creates a new leads handler.
func New(svc *service.Service, deliveries DeliveryStore) *Handler {
	return &Handler{service: svc, deliveries: deliveries}
}

// LeadResponse is the lead's full API projection including per-source
// snapshots and derived classifications.
type LeadResponse struct {
	ID               uuid.UUID                   `json:"id"`
	OrganizationID   uuid.UUID                   `json:"organizationId"`
	DisplayName      string                      `json:"displayName"`
	Email            *string                     `json:"email"`
	Phone            *string                     `json:"phone"`
	Chat             *domain.ChatFacts           `json:"chat,omitempty"`
	Declaration      *domain.DeclarationSnapshot `json:"declaration,omitempty"`
	CRM              *domain.CRMFacts            `json:"crm,omitempty"`
	Qualified        bool                        `json:"qualified"`
	EngagementScore  int                         `json:"engagementScore"`
	PatrimonialTier  string                      `json:"patrimonialTier,omitempty"`
	RiskProfile      string                      `json:"riskProfile,omitempty"`
	AssetsTotalCents *int64                      `json:"assetsTotalCents,omitempty"`
	DebtsTotalCents  *int64                      `json:"debtsTotalCents,omitempty"`
	NetWorthCents    *int64                      `json:"netWorthCents,omitempty"`
	CreatedAt        time.Time                   `json:"createdAt"`
	UpdatedAt        time.Time                   `json:"updatedAt"`
}

// EventResponse is one audit-trail entry.
type EventResponse struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

// HandleGetLead returns the canonical lead record.
// GET /api/v1/leads/:leadId
func (h *Handler) HandleGetLead(c *gin.Context) {
	orgID, leadID, ok := h.scope(c)
	if !ok {
		return
	}

	lead, err := h.service.GetLead(c.Request.Context(), orgID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toLeadResponse(lead))
}

// HandleListLeadEvents returns the lead's audit trail, oldest first.
// GET /api/v1/leads/:leadId/events
func (h *Handler) HandleListLeadEvents(c *gin.Context) {
	orgID, leadID, ok := h.scope(c)
	if !ok {
		return
	}

	events, err := h.service.ListLeadEvents(c.Request.Context(), orgID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	responses := make([]EventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, EventResponse{
			ID:        event.ID,
			Kind:      string(event.Kind),
			Note:      event.Note,
			CreatedAt: event.CreatedAt,
		})
	}
	httpkit.OK(c, gin.H{"events": responses})
}

// DeliveryResponse is one outbound delivery attempt for a lead.
type DeliveryResponse struct {
	ID            uuid.UUID `json:"id"`
	DestinationID uuid.UUID `json:"destinationId"`
	EventKind     string    `json:"eventKind"`
	Outcome       string    `json:"outcome"`
	HTTPStatus    *int      `json:"httpStatus,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HandleListLeadDeliveries returns the lead's outbound delivery history,
// newest first. The lead is loaded first so tenant scoping applies before
// any delivery rows are read.
// GET /api/v1/leads/:leadId/deliveries
func (h *Handler) HandleListLeadDeliveries(c *gin.Context) {
	orgID, leadID, ok := h.scope(c)
	if !ok {
		return
	}

	if _, err := h.service.GetLead(c.Request.Context(), orgID, leadID); httpkit.HandleError(c, err) {
		return
	}

	logs, err := h.deliveries.ListDeliveriesByLead(c.Request.Context(), leadID, 50)
	if httpkit.HandleError(c, err) {
		return
	}

	responses := make([]DeliveryResponse, 0, len(logs))
	for _, log := range logs {
		responses = append(responses, DeliveryResponse{
			ID:            log.ID,
			DestinationID: log.DestinationID,
			EventKind:     log.EventKind,
			Outcome:       log.Outcome,
			HTTPStatus:    log.HTTPStatus,
			CreatedAt:     log.CreatedAt,
		})
	}
	httpkit.OK(c, gin.H{"deliveries": responses})
}

func (h *Handler) scope(c *gin.Context) (orgID, leadID uuid.UUID, ok bool) {
	orgValue, exists := c.Get(webhook.ContextOrgIDKey)
	if !exists {
		httpkit.Error(c, http.StatusUnauthorized, "no organization context", nil)
		return uuid.Nil, uuid.Nil, false
	}
	orgID, _ = orgValue.(uuid.UUID)

	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead ID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, leadID, true
}

func toLeadResponse(lead domain.Lead) LeadResponse {
	return LeadResponse{
		ID:               lead.ID,
		OrganizationID:   lead.OrganizationID,
		DisplayName:      lead.DisplayName,
		Email:            lead.Email,
		Phone:            lead.Phone,
		Chat:             lead.Chat,
		Declaration:      lead.Declaration,
		CRM:              lead.CRM,
		Qualified:        lead.Qualified,
		EngagementScore:  lead.EngagementScore,
		PatrimonialTier:  lead.PatrimonialTier,
		RiskProfile:      lead.RiskProfile,
		AssetsTotalCents: lead.AssetsTotalCents,
		DebtsTotalCents:  lead.DebtsTotalCents,
		NetWorthCents:    lead.NetWorthCents,
		CreatedAt:        lead.CreatedAt,
		UpdatedAt:        lead.UpdatedAt,
	}
}
