// Package service orchestrates the lead identity resolution and enrichment
// pipeline: normalize, resolve, get-or-create, merge, audit, fan out.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketingops_backend/internal/events"
	"marketingops_backend/internal/leads/domain"
	"marketingops_backend/internal/leads/repository"
	"marketingops_backend/internal/leads/resolver"
	"marketingops_backend/platform/apperr"
	"marketingops_backend/platform/logger"
	"marketingops_backend/platform/phone"
	"marketingops_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Store is the lead persistence surface the pipeline needs. Satisfied by the
// leads repository; faked in tests to simulate races without a database.
type Store interface {
	resolver.Store
	CreateLead(ctx context.Context, params repository.CreateLeadParams) (domain.Lead, error)
	GetByID(ctx context.Context, orgID, leadID uuid.UUID) (domain.Lead, error)
	UpdateEnrichment(ctx context.Context, orgID, leadID uuid.UUID, params repository.UpdateEnrichmentParams) error
	AppendEvent(ctx context.Context, params repository.AppendEventParams) (domain.LeadEvent, error)
	ListEventsByLead(ctx context.Context, orgID, leadID uuid.UUID) ([]domain.LeadEvent, error)
}

// DeliveryOutcome is the per-destination result of the outbound fan-out.
type DeliveryOutcome struct {
	DestinationID uuid.UUID `json:"destinationId"`
	Success       bool      `json:"success"`
	HTTPStatus    int       `json:"httpStatus,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Dispatcher fans a pipeline result out to configured subscribers.
// Best-effort: implementations never return an error, only per-destination
// outcomes.
type Dispatcher interface {
	Dispatch(ctx context.Context, lead domain.Lead, eventKind string, snapshot map[string]any) []DeliveryOutcome
}

// Outbound event kinds matched against destination allow-lists.
const (
	DispatchLeadCreated  = "lead.created"
	DispatchLeadEnriched = "lead.enriched"
)

// UpsertOutcome is the typed result of the idempotent get-or-create guard.
// The reconcile path is a first-class value, not a swallowed exception, so it
// can be asserted in tests without provoking a real race.
type UpsertOutcome int

const (
	// OutcomeUnidentified means the event carried no usable identifier;
	// nothing was created and the caller decides the queueing policy.
	OutcomeUnidentified UpsertOutcome = iota
	// OutcomeCreated means this invocation created the lead.
	OutcomeCreated
	// OutcomeMatched means the resolver found the lead before any insert.
	OutcomeMatched
	// OutcomeConflictRecovered means the insert lost a race and the winner's
	// record was fetched instead.
	OutcomeConflictRecovered
)

// String names the outcome for logs and audit notes.
func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeMatched:
		return "matched"
	case OutcomeConflictRecovered:
		return "conflict_recovered"
	default:
		return "unidentified"
	}
}

// Result is the outcome of one inbound event's trip through the pipeline.
type Result struct {
	Outcome       UpsertOutcome
	Lead          *domain.Lead
	MatchedBy     string
	UpdatedFields []string
	Deliveries    []DeliveryOutcome
}

// Created reports whether this invocation created the lead.
func (r Result) Created() bool { return r.Outcome == OutcomeCreated }

// Service is the lead pipeline. Stateless: every dependency is handed in.
type Service struct {
	store      Store
	resolver   *resolver.Resolver
	dispatcher Dispatcher
	bus        events.Bus
	log        *logger.Logger
}

// New creates the pipeline service. dispatcher and bus may be nil in tests.
func New(store Store, dispatcher Dispatcher, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:      store,
		resolver:   resolver.New(store),
		dispatcher: dispatcher,
		bus:        bus,
		log:        log,
	}
}

// Process runs one inbound event through the full pipeline. Outbound
// delivery failures never fail the call; the only error paths are store
// failures.
func (s *Service) Process(ctx context.Context, event domain.InboundEvent) (Result, error) {
	started := time.Now()

	email := phone.NormalizeEmail(event.RawEmail)
	normPhone, _ := phone.NormalizeMobile(event.RawPhone)
	name := sanitize.Text(event.RawName)

	lead, outcome, matchedBy, err := s.getOrCreate(ctx, event.OrganizationID, email, normPhone, name, event)
	if err != nil {
		return Result{}, err
	}
	if outcome == OutcomeUnidentified {
		if s.log != nil {
			s.log.WithContext(ctx).PipelineEvent(string(event.Source), outcome.String(), "", float64(time.Since(started).Microseconds())/1000)
		}
		return Result{Outcome: OutcomeUnidentified}, nil
	}

	result := Result{Outcome: outcome, Lead: lead, MatchedBy: matchedBy}

	if event.Facts != nil {
		updated, err := s.merge(ctx, lead, event.Facts, email, normPhone, name)
		if err != nil {
			return Result{}, err
		}
		result.UpdatedFields = updated

		// Reload so callers and subscribers see the post-merge record.
		fresh, err := s.store.GetByID(ctx, event.OrganizationID, lead.ID)
		if err != nil {
			return Result{}, err
		}
		result.Lead = &fresh
	}

	s.publish(ctx, event, result)

	if s.dispatcher != nil {
		kind := DispatchLeadEnriched
		if result.Created() {
			kind = DispatchLeadCreated
		}
		result.Deliveries = s.dispatcher.Dispatch(ctx, *result.Lead, kind, snapshotFor(event, result))
	}

	if s.log != nil {
		s.log.WithContext(ctx).PipelineEvent(string(event.Source), outcome.String(), result.Lead.ID.String(), float64(time.Since(started).Microseconds())/1000)
	}
	return result, nil
}

// getOrCreate is the idempotent upsert guard: optimistic insert, reconcile on
// conflict. For any N concurrent calls carrying the same resolvable identity,
// exactly one creates and all N return the same lead.
func (s *Service) getOrCreate(ctx context.Context, orgID uuid.UUID, email, normPhone, name string, event domain.InboundEvent) (*domain.Lead, UpsertOutcome, string, error) {
	res, err := s.resolver.Resolve(ctx, orgID, email, normPhone, name)
	if err != nil {
		return nil, 0, "", err
	}

	switch res.Outcome {
	case resolver.OutcomeNoIdentifier:
		return nil, OutcomeUnidentified, "", nil

	case resolver.OutcomeMatched:
		_, err := s.store.AppendEvent(ctx, repository.AppendEventParams{
			LeadID:         res.Lead.ID,
			OrganizationID: orgID,
			Kind:           domain.EventLeadMatched,
			Note:           fmt.Sprintf("matched by %s from %s (%s)", res.MatchedBy, event.Source, event.CorrelationID),
		})
		if err != nil {
			return nil, 0, "", err
		}
		return res.Lead, OutcomeMatched, res.MatchedBy, nil
	}

	// No candidate (or ambiguity, which deliberately reads as no candidate):
	// attempt the insert.
	params := repository.CreateLeadParams{OrganizationID: orgID, DisplayName: name}
	if email != "" {
		params.Email = &email
	}
	if normPhone != "" {
		params.Phone = &normPhone
	}

	lead, err := s.store.CreateLead(ctx, params)
	if err == nil {
		_, err := s.store.AppendEvent(ctx, repository.AppendEventParams{
			LeadID:         lead.ID,
			OrganizationID: orgID,
			Kind:           domain.EventLeadCreated,
			Note:           fmt.Sprintf("created from %s (%s)", event.Source, event.CorrelationID),
		})
		if err != nil {
			return nil, 0, "", err
		}
		return &lead, OutcomeCreated, "", nil
	}

	if !errors.Is(err, repository.ErrDuplicateIdentifier) {
		return nil, 0, "", err
	}

	// A concurrent writer won the race. Fetch the record it created:
	// uniqueness is enforced on email first, phone second.
	winner, ferr := s.refetchAfterConflict(ctx, orgID, email, normPhone)
	if ferr != nil {
		return nil, 0, "", ferr
	}
	if winner == nil {
		// The winner was merged or deleted between the conflict and the
		// refetch. Vanishingly rare; surface as internal rather than loop.
		return nil, 0, "", apperr.Internal("conflict raced with lead merge").WithOp("leads.getOrCreate")
	}

	_, err = s.store.AppendEvent(ctx, repository.AppendEventParams{
		LeadID:         winner.ID,
		OrganizationID: orgID,
		Kind:           domain.EventLeadMatched,
		Note:           fmt.Sprintf("recovered after concurrent create from %s (%s)", event.Source, event.CorrelationID),
	})
	if err != nil {
		return nil, 0, "", err
	}
	return winner, OutcomeConflictRecovered, "conflict", nil
}

func (s *Service) refetchAfterConflict(ctx context.Context, orgID uuid.UUID, email, normPhone string) (*domain.Lead, error) {
	if email != "" {
		lead, err := s.store.FindActiveByEmail(ctx, orgID, email)
		if err != nil || lead != nil {
			return lead, err
		}
	}
	if normPhone != "" {
		return s.store.FindActiveByPhone(ctx, orgID, normPhone)
	}
	return nil, nil
}

func (s *Service) publish(ctx context.Context, event domain.InboundEvent, result Result) {
	if s.bus == nil || result.Lead == nil {
		return
	}

	switch result.Outcome {
	case OutcomeCreated:
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    result.Lead.ID,
			TenantID:  event.OrganizationID,
			Source:    string(event.Source),
		})
	case OutcomeMatched, OutcomeConflictRecovered:
		s.bus.Publish(ctx, events.LeadMatched{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    result.Lead.ID,
			TenantID:  event.OrganizationID,
			Source:    string(event.Source),
			Recovered: result.Outcome == OutcomeConflictRecovered,
		})
	}

	if len(result.UpdatedFields) > 0 {
		s.bus.Publish(ctx, events.LeadEnriched{
			BaseEvent:     events.NewBaseEvent(),
			LeadID:        result.Lead.ID,
			TenantID:      event.OrganizationID,
			Source:        string(event.Source),
			UpdatedFields: result.UpdatedFields,
		})
	}
}

// snapshotFor builds the source-specific context carried in outbound
// payloads next to the lead's public fields.
func snapshotFor(event domain.InboundEvent, result Result) map[string]any {
	snapshot := map[string]any{
		"source":        string(event.Source),
		"correlationId": event.CorrelationID,
	}
	if len(result.UpdatedFields) > 0 {
		snapshot["updatedFields"] = result.UpdatedFields
	}
	return snapshot
}

// GetLead exposes the canonical record for the read API.
func (s *Service) GetLead(ctx context.Context, orgID, leadID uuid.UUID) (domain.Lead, error) {
	return s.store.GetByID(ctx, orgID, leadID)
}

// ListLeadEvents exposes the audit trail for the read API.
func (s *Service) ListLeadEvents(ctx context.Context, orgID, leadID uuid.UUID) ([]domain.LeadEvent, error) {
	if _, err := s.store.GetByID(ctx, orgID, leadID); err != nil {
		return nil, err
	}
	return s.store.ListEventsByLead(ctx, orgID, leadID)
}
