package webhook

import (
	"time"

	"marketingops_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// contactDTO is the identity block shared by all inbound event payloads.
// Everything is optional; the pipeline decides whether enough survives
// normalization to resolve an identity.
type contactDTO struct {
	Name  string `json:"name" validate:"omitempty,max=200"`
	Email string `json:"email" validate:"omitempty,max=320"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

// ChatEventRequest is the chat platform's webhook payload.
type ChatEventRequest struct {
	CorrelationID     string     `json:"correlationId" validate:"omitempty,max=100"`
	Contact           contactDTO `json:"contact"`
	Channel           string     `json:"channel" validate:"required,max=50"`
	ConversationCount int        `json:"conversationCount" validate:"gte=0"`
	MessageCount      int        `json:"messageCount" validate:"gte=0"`
	LastInteractionAt time.Time  `json:"lastInteractionAt"`
}

func (r ChatEventRequest) toInboundEvent(orgID uuid.UUID) domain.InboundEvent {
	return domain.InboundEvent{
		Source:         domain.SourceChat,
		OrganizationID: orgID,
		CorrelationID:  orFallback(r.CorrelationID),
		RawName:        r.Contact.Name,
		RawEmail:       r.Contact.Email,
		RawPhone:       r.Contact.Phone,
		Facts: domain.ChatFacts{
			Channel:           r.Channel,
			ConversationCount: r.ConversationCount,
			MessageCount:      r.MessageCount,
			LastInteractionAt: r.LastInteractionAt,
		},
	}
}

// CRMSyncRequest is the CRM's sync payload.
type CRMSyncRequest struct {
	CorrelationID string     `json:"correlationId" validate:"omitempty,max=100"`
	Contact       contactDTO `json:"contact"`
	Stage         string     `json:"stage" validate:"required,max=50"`
	Owner         string     `json:"owner" validate:"omitempty,max=200"`
	Tags          []string   `json:"tags" validate:"max=50,dive,max=100"`
	ExternalID    string     `json:"externalId" validate:"omitempty,max=100"`
}

func (r CRMSyncRequest) toInboundEvent(orgID uuid.UUID) domain.InboundEvent {
	return domain.InboundEvent{
		Source:         domain.SourceCRM,
		OrganizationID: orgID,
		CorrelationID:  orFallback(r.CorrelationID),
		RawName:        r.Contact.Name,
		RawEmail:       r.Contact.Email,
		RawPhone:       r.Contact.Phone,
		Facts: domain.CRMFacts{
			Stage:      r.Stage,
			Owner:      r.Owner,
			Tags:       r.Tags,
			ExternalID: r.ExternalID,
		},
	}
}

func orFallback(correlationID string) string {
	if correlationID != "" {
		return correlationID
	}
	return uuid.NewString()
}

// PipelineResponse is returned for every accepted inbound event.
type PipelineResponse struct {
	Success         bool    `json:"success"`
	LeadID          *string `json:"lead_id,omitempty"`
	LeadCreated     bool    `json:"lead_created"`
	QueuedForReview bool    `json:"queued_for_review,omitempty"`
	DurationMs      float64 `json:"duration_ms"`
}
