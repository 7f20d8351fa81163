// Package resolver implements the cascading lookup that maps normalized
// identifiers to at most one canonical lead.
//
// Precision is prioritized over recall at every stage: a false merge corrupts
// downstream attribution irreversibly, while a false split can be reconciled
// later. Any ambiguity therefore yields no match.
package resolver

import (
	"context"
	"strings"

	"marketingops_backend/internal/leads/domain"

	"github.com/google/uuid"
)

const (
	// Names shorter than this, or made of a single token, are too
	// collision-prone to use as an identity key.
	minNameLength = 5

	// Cap on the partial-name scan. Anything beyond one hit is ambiguity,
	// so a large result set is never useful.
	nameScanLimit = 5
)

// Store is the read-only lead lookup surface the resolver needs.
// Implemented by the leads repository; every method is scoped to live
// (non-merged) leads within the tenant.
type Store interface {
	FindActiveByEmail(ctx context.Context, orgID uuid.UUID, email string) (*domain.Lead, error)
	FindActiveByPhone(ctx context.Context, orgID uuid.UUID, phone string) (*domain.Lead, error)
	FindActiveByFullName(ctx context.Context, orgID uuid.UUID, name string) (*domain.Lead, error)
	SearchActiveByNameTokens(ctx context.Context, orgID uuid.UUID, firstToken, lastToken string, limit int) ([]domain.Lead, error)
}

// Outcome classifies a resolution attempt. NoCandidate and Ambiguous both
// collapse to "no match" for callers today, but the distinction is kept so a
// future manual-review surface does not have to re-derive it from logs.
type Outcome int

const (
	// OutcomeNoIdentifier means the event carried nothing usable for
	// matching: no email, no phone, no sufficiently specific name.
	OutcomeNoIdentifier Outcome = iota
	// OutcomeNoCandidate means identifiers were usable but matched nothing.
	OutcomeNoCandidate
	// OutcomeAmbiguous means the name fallback found two or more candidates.
	OutcomeAmbiguous
	// OutcomeMatched means exactly one live lead was found.
	OutcomeMatched
)

// Resolution is the result of one resolve call.
type Resolution struct {
	Outcome Outcome
	Lead    *domain.Lead
	// MatchedBy names the cascade stage that produced the match:
	// "email", "phone", "name_exact" or "name_tokens".
	MatchedBy string
}

// Matched reports whether the resolution carries a lead.
func (r Resolution) Matched() bool { return r.Outcome == OutcomeMatched }

// Resolver executes the matching cascade. Read-only; it never writes.
type Resolver struct {
	store Store
}

// New creates a resolver over the given lead store.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve runs the cascade: email, then phone, then gated name fallback.
// Each stage runs only if the previous produced no result. Email and phone
// must already be normalized by the caller; empty strings mean "identifier
// unavailable".
func (r *Resolver) Resolve(ctx context.Context, orgID uuid.UUID, email, phone, rawName string) (Resolution, error) {
	if email != "" {
		lead, err := r.store.FindActiveByEmail(ctx, orgID, email)
		if err != nil {
			return Resolution{}, err
		}
		if lead != nil {
			return Resolution{Outcome: OutcomeMatched, Lead: lead, MatchedBy: "email"}, nil
		}
	}

	if phone != "" {
		lead, err := r.store.FindActiveByPhone(ctx, orgID, phone)
		if err != nil {
			return Resolution{}, err
		}
		if lead != nil {
			return Resolution{Outcome: OutcomeMatched, Lead: lead, MatchedBy: "phone"}, nil
		}
	}

	firstToken, lastToken, specific := nameTokens(rawName)
	if !specific {
		if email == "" && phone == "" {
			return Resolution{Outcome: OutcomeNoIdentifier}, nil
		}
		return Resolution{Outcome: OutcomeNoCandidate}, nil
	}

	lead, err := r.store.FindActiveByFullName(ctx, orgID, strings.TrimSpace(rawName))
	if err != nil {
		return Resolution{}, err
	}
	if lead != nil {
		return Resolution{Outcome: OutcomeMatched, Lead: lead, MatchedBy: "name_exact"}, nil
	}

	candidates, err := r.store.SearchActiveByNameTokens(ctx, orgID, firstToken, lastToken, nameScanLimit)
	if err != nil {
		return Resolution{}, err
	}
	switch len(candidates) {
	case 0:
		return Resolution{Outcome: OutcomeNoCandidate}, nil
	case 1:
		match := candidates[0]
		return Resolution{Outcome: OutcomeMatched, Lead: &match, MatchedBy: "name_tokens"}, nil
	default:
		// Two or more candidates: unresolvable ambiguity. An extra created
		// record beats a wrong merge.
		return Resolution{Outcome: OutcomeAmbiguous}, nil
	}
}

// nameTokens applies the minimum-specificity guard and extracts the first
// and last tokens used by the partial-name scan.
func nameTokens(rawName string) (first, last string, specific bool) {
	trimmed := strings.TrimSpace(rawName)
	if len(trimmed) < minNameLength {
		return "", "", false
	}
	tokens := strings.Fields(trimmed)
	if len(tokens) < 2 {
		return "", "", false
	}
	return tokens[0], tokens[len(tokens)-1], true
}
