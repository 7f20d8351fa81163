// Package domain holds the lead pipeline's core types and the pure
// classification logic derived from enrichment data.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Lead is the canonical record representing one real-world contact.
// At most one non-merged Lead exists per normalized phone and per lowercased
// email within a tenant; the store enforces this with partial unique indexes.
type Lead struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	DisplayName    string
	Email          *string // lowercased, nil when unknown
	Phone          *string // E.164, nil when unknown
	// Merged marks a lead absorbed into another one. Merged leads are
	// invisible to resolution; they are written by a separate deduplication
	// process, never by this pipeline.
	Merged bool

	// Per-source enrichment snapshots. Each is owned by exactly one source
	// system and overwritten wholesale when that source reports.
	Chat        *ChatFacts
	Declaration *DeclarationSnapshot
	CRM         *CRMFacts

	// Derived classification, recomputed from the snapshots on every merge.
	Qualified        bool
	EngagementScore  int
	PatrimonialTier  string
	RiskProfile      string
	AssetsTotalCents *int64
	DebtsTotalCents  *int64
	NetWorthCents    *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventKind identifies a lead lifecycle transition in the audit trail.
type EventKind string

const (
	EventLeadCreated  EventKind = "lead_created"
	EventLeadEnriched EventKind = "lead_enriched"
	EventLeadMatched  EventKind = "lead_matched"
)

// LeadEvent is one immutable audit trail entry. Append-only: never mutated
// or deleted.
type LeadEvent struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	OrganizationID uuid.UUID
	Kind           EventKind
	Note           string
	CreatedAt      time.Time
}

// InboundEvent is the normalized form of one webhook/extraction payload.
// Transient: only its effects on Lead and LeadEvent persist.
type InboundEvent struct {
	Source         Source
	OrganizationID uuid.UUID
	// CorrelationID is the source platform's own id for the contact or
	// document, kept for audit notes and manual review.
	CorrelationID string
	RawName       string
	RawEmail      string
	RawPhone      string
	Facts         FactBundle // nil when the event carries identity only
}
