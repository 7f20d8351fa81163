// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"encoding/json"

	"marketingops_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Lead Pipeline Events
// =============================================================================

// LeadCreated is published when resolution finds no live lead and a new
// canonical record is created.
type LeadCreated struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	Source   string    `json:"source"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadMatched is published when an inbound event resolves to an existing lead.
type LeadMatched struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	Source   string    `json:"source"`
	// Recovered marks matches that came out of the reconcile-on-conflict path
	// rather than a clean resolver hit.
	Recovered bool `json:"recovered"`
}

func (e LeadMatched) EventName() string { return "leads.lead.matched" }

// LeadEnriched is published after a merge call commits enrichment data.
type LeadEnriched struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	TenantID      uuid.UUID `json:"tenantId"`
	Source        string    `json:"source"`
	UpdatedFields []string  `json:"updatedFields"`
}

func (e LeadEnriched) EventName() string { return "leads.lead.enriched" }

// EventQueuedForReview is published when an inbound event carries no usable
// identifier and is routed to the manual reconciliation queue. Enqueued
// reports whether the queue transport accepted it; when false, observers are
// the only remaining capture path.
type EventQueuedForReview struct {
	BaseEvent
	TenantID      uuid.UUID       `json:"tenantId"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlationId"`
	RawPayload    json.RawMessage `json:"rawPayload"`
	Reason        string          `json:"reason"`
	Enqueued      bool            `json:"enqueued"`
}

func (e EventQueuedForReview) EventName() string { return "leads.event.queued_for_review" }
