package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"marketingops_backend/internal/leads/domain"
	"marketingops_backend/internal/leads/repository"
	"marketingops_backend/platform/apperr"
)

// merge folds one source's facts into the lead and recomputes every derived
// field. The write is a single UPDATE; exactly one enrichment entry lands on
// the audit trail per call. Returns the names of the fields that changed.
func (s *Service) merge(ctx context.Context, lead *domain.Lead, facts domain.FactBundle, email, normPhone, name string) ([]string, error) {
	params, updated, err := buildMergePlan(lead, facts, email, normPhone, name)
	if err != nil {
		return nil, err
	}

	err = s.store.UpdateEnrichment(ctx, lead.OrganizationID, lead.ID, params)
	if errors.Is(err, repository.ErrDuplicateIdentifier) {
		// An identity fill-in collided with another live lead's identifier.
		// The snapshot and classification still belong here; retry keeping
		// the lead's identity untouched.
		updated = withoutIdentityFields(updated)
		params.DisplayName, params.Email, params.Phone = nil, nil, nil
		err = s.store.UpdateEnrichment(ctx, lead.OrganizationID, lead.ID, params)
	}
	if err != nil {
		return nil, err
	}

	_, err = s.store.AppendEvent(ctx, repository.AppendEventParams{
		LeadID:         lead.ID,
		OrganizationID: lead.OrganizationID,
		Kind:           domain.EventLeadEnriched,
		Note:           fmt.Sprintf("enriched from %s: %s", facts.SourceTag(), repository.TruncateNote(fieldList(updated))),
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// buildMergePlan computes the write set for one merge: the incoming source's
// snapshot replaces the stored one wholesale, identity fields fill only into
// blanks, and the classification is recomputed from all three snapshots.
func buildMergePlan(lead *domain.Lead, facts domain.FactBundle, email, normPhone, name string) (repository.UpdateEnrichmentParams, []string, error) {
	var params repository.UpdateEnrichmentParams
	var updated []string

	chat, declaration, crm := lead.Chat, lead.Declaration, lead.CRM

	switch f := facts.(type) {
	case domain.ChatFacts:
		raw, err := json.Marshal(f)
		if err != nil {
			return params, nil, apperr.Internal(fmt.Sprintf("encode chat facts: %v", err)).WithOp("leads.merge")
		}
		params.ChatJSON = raw
		chat = &f
		updated = append(updated, "chat_data")

	case domain.DeclarationFacts:
		assets, debts, net := f.Totals()
		snapshot := domain.DeclarationSnapshot{
			DeclarationFacts: f,
			AssetsTotalCents: assets,
			DebtsTotalCents:  debts,
			NetWorthCents:    net,
		}
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return params, nil, apperr.Internal(fmt.Sprintf("encode declaration snapshot: %v", err)).WithOp("leads.merge")
		}
		params.DeclarationJSON = raw
		declaration = &snapshot
		updated = append(updated, "declaration_data")

	case domain.CRMFacts:
		raw, err := json.Marshal(f)
		if err != nil {
			return params, nil, apperr.Internal(fmt.Sprintf("encode crm facts: %v", err)).WithOp("leads.merge")
		}
		params.CRMJSON = raw
		crm = &f
		updated = append(updated, "crm_data")

	default:
		return params, nil, apperr.Internal(fmt.Sprintf("unknown fact bundle %T", facts)).WithOp("leads.merge")
	}

	// Identity fields fill blanks only. A known value is never replaced by a
	// later report; correcting one is a manual operation.
	if lead.DisplayName == "" && name != "" {
		params.DisplayName = &name
		updated = append(updated, "display_name")
	}
	if lead.Email == nil && email != "" {
		params.Email = &email
		updated = append(updated, "email")
	}
	if lead.Phone == nil && normPhone != "" {
		params.Phone = &normPhone
		updated = append(updated, "phone")
	}

	params.Classification = domain.Classify(chat, declaration, crm)
	updated = append(updated, "classification")

	return params, updated, nil
}

var identityFields = map[string]bool{"display_name": true, "email": true, "phone": true}

func withoutIdentityFields(fields []string) []string {
	kept := fields[:0]
	for _, field := range fields {
		if !identityFields[field] {
			kept = append(kept, field)
		}
	}
	return kept
}

func fieldList(fields []string) string {
	return strings.Join(fields, ", ")
}
