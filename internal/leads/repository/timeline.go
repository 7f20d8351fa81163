package repository

import (
	"context"
	"fmt"
	"strings"

	"marketingops_backend/internal/leads/domain"
	"marketingops_backend/platform/apperr"

	"github.com/google/uuid"
)

// NoteMaxLen is the maximum character length for audit trail notes.
const NoteMaxLen = 400

// TruncateNote trims text to NoteMaxLen, appending "..." on overflow.
func TruncateNote(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > NoteMaxLen {
		trimmed = trimmed[:NoteMaxLen] + "..."
	}
	return trimmed
}

// AppendEventParams describes one audit trail entry.
type AppendEventParams struct {
	LeadID         uuid.UUID
	OrganizationID uuid.UUID
	Kind           domain.EventKind
	Note           string
}

// AppendEvent writes one immutable audit trail entry. The trail is
// append-only; there is no update or delete path.
func (r *Repository) AppendEvent(ctx context.Context, params AppendEventParams) (domain.LeadEvent, error) {
	var event domain.LeadEvent
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lead_events (lead_id, organization_id, kind, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, lead_id, organization_id, kind, note, created_at
	`, params.LeadID, params.OrganizationID, string(params.Kind), TruncateNote(params.Note)).Scan(
		&event.ID, &event.LeadID, &event.OrganizationID, &event.Kind, &event.Note, &event.CreatedAt,
	)
	if err != nil {
		return domain.LeadEvent{}, apperr.Internal(fmt.Sprintf("append lead event failed: %v", err)).WithOp("leads.AppendEvent")
	}
	return event, nil
}

// ListEventsByLead returns the lead's audit trail, oldest first.
func (r *Repository) ListEventsByLead(ctx context.Context, orgID, leadID uuid.UUID) ([]domain.LeadEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, organization_id, kind, note, created_at
		FROM lead_events
		WHERE lead_id = $1 AND organization_id = $2
		ORDER BY created_at ASC
	`, leadID, orgID)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list lead events failed: %v", err)).WithOp("leads.ListEvents")
	}
	defer rows.Close()

	var events []domain.LeadEvent
	for rows.Next() {
		var event domain.LeadEvent
		if err := rows.Scan(&event.ID, &event.LeadID, &event.OrganizationID, &event.Kind, &event.Note, &event.CreatedAt); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan lead event failed: %v", err)).WithOp("leads.ListEvents")
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
