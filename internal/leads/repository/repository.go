// Package repository provides data access for leads and their audit trail.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"marketingops_backend/internal/leads/domain"
	"marketingops_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateIdentifier signals that an insert or identity fill-in hit the
// live-lead uniqueness constraint: a concurrent writer owns the identifier.
// Callers recover by re-querying, never by surfacing the error.
var ErrDuplicateIdentifier = errors.New("identifier already owned by a live lead")

const pgUniqueViolation = "23505"

const leadColumns = `
	id, organization_id, display_name, email, phone, merged,
	chat_data, declaration_data, crm_data,
	qualified, engagement_score, patrimonial_tier, risk_profile,
	assets_total_cents, debts_total_cents, net_worth_cents,
	created_at, updated_at`

// Repository provides data access for leads.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new leads repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateLeadParams holds the fields for a new lead record.
type CreateLeadParams struct {
	OrganizationID uuid.UUID
	DisplayName    string
	Email          *string
	Phone          *string
}

// CreateLead inserts a new live lead. Returns ErrDuplicateIdentifier when a
// concurrent writer already created a live lead for one of the identifiers.
func (r *Repository) CreateLead(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (organization_id, display_name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING`+leadColumns,
		params.OrganizationID, params.DisplayName, params.Email, params.Phone,
	)

	lead, err := scanLead(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Lead{}, ErrDuplicateIdentifier
		}
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("create lead failed: %v", err)).WithOp("leads.Create")
	}
	return lead, nil
}

// GetByID fetches a lead within tenant scope.
func (r *Repository) GetByID(ctx context.Context, orgID, leadID uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+leadColumns+`
		FROM leads
		WHERE id = $1 AND organization_id = $2
	`, leadID, orgID)

	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("get lead failed: %v", err)).WithOp("leads.GetByID")
	}
	return lead, nil
}

// FindActiveByEmail returns the oldest live lead holding the email, or nil.
// Oldest-first so duplicate identities converge toward the first-seen record.
func (r *Repository) FindActiveByEmail(ctx context.Context, orgID uuid.UUID, email string) (*domain.Lead, error) {
	return r.findOne(ctx, `
		SELECT`+leadColumns+`
		FROM leads
		WHERE organization_id = $1 AND merged = FALSE AND lower(email) = lower($2)
		ORDER BY created_at ASC
		LIMIT 1
	`, orgID, email)
}

// FindActiveByPhone returns the oldest live lead holding the phone, or nil.
func (r *Repository) FindActiveByPhone(ctx context.Context, orgID uuid.UUID, phone string) (*domain.Lead, error) {
	return r.findOne(ctx, `
		SELECT`+leadColumns+`
		FROM leads
		WHERE organization_id = $1 AND merged = FALSE AND phone = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, orgID, phone)
}

// FindActiveByFullName returns the oldest live lead whose display name
// matches exactly (case-insensitive), or nil.
func (r *Repository) FindActiveByFullName(ctx context.Context, orgID uuid.UUID, name string) (*domain.Lead, error) {
	return r.findOne(ctx, `
		SELECT`+leadColumns+`
		FROM leads
		WHERE organization_id = $1 AND merged = FALSE AND lower(display_name) = lower($2)
		ORDER BY created_at ASC
		LIMIT 1
	`, orgID, name)
}

// SearchActiveByNameTokens scans live leads whose display name contains both
// tokens. The scan is capped: callers treat more than one hit as ambiguity,
// so there is no point fetching a large result set.
func (r *Repository) SearchActiveByNameTokens(ctx context.Context, orgID uuid.UUID, firstToken, lastToken string, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+leadColumns+`
		FROM leads
		WHERE organization_id = $1 AND merged = FALSE
		  AND display_name ILIKE '%' || $2 || '%'
		  AND display_name ILIKE '%' || $3 || '%'
		ORDER BY created_at ASC
		LIMIT $4
	`, orgID, firstToken, lastToken, limit)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("name token search failed: %v", err)).WithOp("leads.SearchByNameTokens")
	}
	defer rows.Close()

	var leads []domain.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan lead failed: %v", err)).WithOp("leads.SearchByNameTokens")
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// UpdateEnrichmentParams holds one merge call's write set. Nil pointers and
// nil JSON leave the stored value untouched; the derived classification is
// always written in full.
type UpdateEnrichmentParams struct {
	DisplayName     *string
	Email           *string
	Phone           *string
	ChatJSON        []byte
	DeclarationJSON []byte
	CRMJSON         []byte
	Classification  domain.Classification
}

// UpdateEnrichment applies a merge result in a single UPDATE so the merge is
// all-or-nothing per invocation. Identity columns are first-known-wins at the
// store, not at the caller: a concurrent merge that landed a value after this
// call's read keeps it, even though both callers observed the field blank.
// Identity fill-ins can race another live lead's identifiers; that surfaces
// as ErrDuplicateIdentifier and the caller retries without the fill-ins.
func (r *Repository) UpdateEnrichment(ctx context.Context, orgID, leadID uuid.UUID, params UpdateEnrichmentParams) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET
			display_name = CASE WHEN display_name = '' THEN COALESCE($3, display_name) ELSE display_name END,
			email = COALESCE(email, $4),
			phone = COALESCE(phone, $5),
			chat_data = COALESCE($6, chat_data),
			declaration_data = COALESCE($7, declaration_data),
			crm_data = COALESCE($8, crm_data),
			qualified = $9,
			engagement_score = $10,
			patrimonial_tier = NULLIF($11, ''),
			risk_profile = NULLIF($12, ''),
			assets_total_cents = COALESCE($13, assets_total_cents),
			debts_total_cents = COALESCE($14, debts_total_cents),
			net_worth_cents = COALESCE($15, net_worth_cents),
			updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`,
		leadID, orgID,
		params.DisplayName, params.Email, params.Phone,
		params.ChatJSON, params.DeclarationJSON, params.CRMJSON,
		params.Classification.Qualified,
		params.Classification.EngagementScore,
		params.Classification.PatrimonialTier,
		params.Classification.RiskProfile,
		params.Classification.AssetsTotalCents,
		params.Classification.DebtsTotalCents,
		params.Classification.NetWorthCents,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdentifier
		}
		return apperr.Internal(fmt.Sprintf("update enrichment failed: %v", err)).WithOp("leads.UpdateEnrichment")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*domain.Lead, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("lead lookup failed: %v", err)).WithOp("leads.find")
	}
	return &lead, nil
}

// leadRowScanner is satisfied by pgx.Rows and pgx.Row so that scanLead can be
// shared between single-row and multi-row queries.
type leadRowScanner interface {
	Scan(dest ...any) error
}

func scanLead(s leadRowScanner) (domain.Lead, error) {
	var (
		lead            domain.Lead
		chatJSON        []byte
		declarationJSON []byte
		crmJSON         []byte
		tier            *string
		risk            *string
	)

	err := s.Scan(
		&lead.ID, &lead.OrganizationID, &lead.DisplayName, &lead.Email, &lead.Phone, &lead.Merged,
		&chatJSON, &declarationJSON, &crmJSON,
		&lead.Qualified, &lead.EngagementScore, &tier, &risk,
		&lead.AssetsTotalCents, &lead.DebtsTotalCents, &lead.NetWorthCents,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}

	if tier != nil {
		lead.PatrimonialTier = *tier
	}
	if risk != nil {
		lead.RiskProfile = *risk
	}

	if len(chatJSON) > 0 {
		var facts domain.ChatFacts
		if err := json.Unmarshal(chatJSON, &facts); err != nil {
			return domain.Lead{}, fmt.Errorf("decode chat_data: %w", err)
		}
		lead.Chat = &facts
	}
	if len(declarationJSON) > 0 {
		var snapshot domain.DeclarationSnapshot
		if err := json.Unmarshal(declarationJSON, &snapshot); err != nil {
			return domain.Lead{}, fmt.Errorf("decode declaration_data: %w", err)
		}
		lead.Declaration = &snapshot
	}
	if len(crmJSON) > 0 {
		var facts domain.CRMFacts
		if err := json.Unmarshal(crmJSON, &facts); err != nil {
			return domain.Lead{}, fmt.Errorf("decode crm_data: %w", err)
		}
		lead.CRM = &facts
	}

	return lead, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
