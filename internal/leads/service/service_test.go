package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"marketingops_backend/internal/leads/domain"
	"marketingops_backend/internal/leads/repository"
	"marketingops_backend/platform/apperr"

	"github.com/google/uuid"
)

// memStore is an in-memory Store with the same uniqueness semantics as the
// database: live leads are unique per tenant on email (case-insensitive) and
// phone. A single mutex serializes calls so concurrent Process invocations
// interleave the way pool-backed queries would.
type memStore struct {
	mu     sync.Mutex
	leads  map[uuid.UUID]*domain.Lead
	events []domain.LeadEvent
}

func newMemStore() *memStore {
	return &memStore{leads: map[uuid.UUID]*domain.Lead{}}
}

func (m *memStore) conflicts(orgID uuid.UUID, selfID uuid.UUID, email, phone *string) bool {
	for _, lead := range m.leads {
		if lead.ID == selfID || lead.Merged || lead.OrganizationID != orgID {
			continue
		}
		if email != nil && lead.Email != nil && strings.EqualFold(*lead.Email, *email) {
			return true
		}
		if phone != nil && lead.Phone != nil && *lead.Phone == *phone {
			return true
		}
	}
	return false
}

func (m *memStore) CreateLead(_ context.Context, params repository.CreateLeadParams) (domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts(params.OrganizationID, uuid.Nil, params.Email, params.Phone) {
		return domain.Lead{}, repository.ErrDuplicateIdentifier
	}
	lead := domain.Lead{
		ID:             uuid.New(),
		OrganizationID: params.OrganizationID,
		DisplayName:    params.DisplayName,
		Email:          params.Email,
		Phone:          params.Phone,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	m.leads[lead.ID] = &lead
	return lead, nil
}

func (m *memStore) GetByID(_ context.Context, orgID, leadID uuid.UUID) (domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok || lead.OrganizationID != orgID {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return *lead, nil
}

func (m *memStore) FindActiveByEmail(_ context.Context, orgID uuid.UUID, email string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLive(orgID, func(l *domain.Lead) bool {
		return l.Email != nil && strings.EqualFold(*l.Email, email)
	}), nil
}

func (m *memStore) FindActiveByPhone(_ context.Context, orgID uuid.UUID, phone string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLive(orgID, func(l *domain.Lead) bool {
		return l.Phone != nil && *l.Phone == phone
	}), nil
}

func (m *memStore) FindActiveByFullName(_ context.Context, orgID uuid.UUID, name string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLive(orgID, func(l *domain.Lead) bool {
		return strings.EqualFold(l.DisplayName, name)
	}), nil
}

func (m *memStore) SearchActiveByNameTokens(_ context.Context, orgID uuid.UUID, firstToken, lastToken string, limit int) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Lead
	for _, lead := range m.leads {
		if lead.Merged || lead.OrganizationID != orgID {
			continue
		}
		name := strings.ToLower(lead.DisplayName)
		if strings.Contains(name, strings.ToLower(firstToken)) && strings.Contains(name, strings.ToLower(lastToken)) {
			result = append(result, *lead)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (m *memStore) findLive(orgID uuid.UUID, match func(*domain.Lead) bool) *domain.Lead {
	var oldest *domain.Lead
	for _, lead := range m.leads {
		if lead.Merged || lead.OrganizationID != orgID || !match(lead) {
			continue
		}
		if oldest == nil || lead.CreatedAt.Before(oldest.CreatedAt) {
			oldest = lead
		}
	}
	if oldest == nil {
		return nil
	}
	copied := *oldest
	return &copied
}

func (m *memStore) UpdateEnrichment(_ context.Context, orgID, leadID uuid.UUID, params repository.UpdateEnrichmentParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok || lead.OrganizationID != orgID {
		return apperr.NotFound("lead not found")
	}
	// Fill-ins that lose to an already-stored value are never written, so
	// they cannot trip the uniqueness constraint either.
	emailWrite, phoneWrite := params.Email, params.Phone
	if lead.Email != nil {
		emailWrite = nil
	}
	if lead.Phone != nil {
		phoneWrite = nil
	}
	if m.conflicts(orgID, leadID, emailWrite, phoneWrite) {
		return repository.ErrDuplicateIdentifier
	}

	// Identity columns are first-known-wins at the store, mirroring the
	// CASE/COALESCE(column, $n) guards in the SQL repository.
	if params.DisplayName != nil && lead.DisplayName == "" {
		lead.DisplayName = *params.DisplayName
	}
	if params.Email != nil && lead.Email == nil {
		lead.Email = params.Email
	}
	if params.Phone != nil && lead.Phone == nil {
		lead.Phone = params.Phone
	}
	if params.ChatJSON != nil {
		var facts domain.ChatFacts
		if err := json.Unmarshal(params.ChatJSON, &facts); err != nil {
			return err
		}
		lead.Chat = &facts
	}
	if params.DeclarationJSON != nil {
		var snapshot domain.DeclarationSnapshot
		if err := json.Unmarshal(params.DeclarationJSON, &snapshot); err != nil {
			return err
		}
		lead.Declaration = &snapshot
	}
	if params.CRMJSON != nil {
		var facts domain.CRMFacts
		if err := json.Unmarshal(params.CRMJSON, &facts); err != nil {
			return err
		}
		lead.CRM = &facts
	}

	lead.Qualified = params.Classification.Qualified
	lead.EngagementScore = params.Classification.EngagementScore
	lead.PatrimonialTier = params.Classification.PatrimonialTier
	lead.RiskProfile = params.Classification.RiskProfile
	if params.Classification.AssetsTotalCents != nil {
		lead.AssetsTotalCents = params.Classification.AssetsTotalCents
	}
	if params.Classification.DebtsTotalCents != nil {
		lead.DebtsTotalCents = params.Classification.DebtsTotalCents
	}
	if params.Classification.NetWorthCents != nil {
		lead.NetWorthCents = params.Classification.NetWorthCents
	}
	lead.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) AppendEvent(_ context.Context, params repository.AppendEventParams) (domain.LeadEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event := domain.LeadEvent{
		ID:             uuid.New(),
		LeadID:         params.LeadID,
		OrganizationID: params.OrganizationID,
		Kind:           params.Kind,
		Note:           params.Note,
		CreatedAt:      time.Now(),
	}
	m.events = append(m.events, event)
	return event, nil
}

func (m *memStore) ListEventsByLead(_ context.Context, orgID, leadID uuid.UUID) ([]domain.LeadEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LeadEvent
	for _, event := range m.events {
		if event.LeadID == leadID && event.OrganizationID == orgID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (m *memStore) countEvents(leadID uuid.UUID, kind domain.EventKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, event := range m.events {
		if event.LeadID == leadID && event.Kind == kind {
			n++
		}
	}
	return n
}

// captureDispatcher records outbound fan-out calls.
type captureDispatcher struct {
	mu    sync.Mutex
	kinds []string
}

func (d *captureDispatcher) Dispatch(_ context.Context, _ domain.Lead, eventKind string, _ map[string]any) []DeliveryOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kinds = append(d.kinds, eventKind)
	return []DeliveryOutcome{{DestinationID: uuid.New(), Success: true, HTTPStatus: 200}}
}

var testOrg = uuid.New()

func chatEvent(email, phoneRaw, name string) domain.InboundEvent {
	return domain.InboundEvent{
		Source:         domain.SourceChat,
		OrganizationID: testOrg,
		CorrelationID:  uuid.NewString(),
		RawName:        name,
		RawEmail:       email,
		RawPhone:       phoneRaw,
		Facts: domain.ChatFacts{
			Channel:           "whatsapp",
			ConversationCount: 1,
			MessageCount:      3,
			LastInteractionAt: time.Now(),
		},
	}
}

func TestProcess_ConcurrentCreatesConverge(t *testing.T) {
	store := newMemStore()
	svc := New(store, nil, nil, nil)

	const workers = 8
	results := make([]Result, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Process(context.Background(), chatEvent("ana@example.com", "61 98626-6334", "Ana Souza"))
		}(i)
	}
	wg.Wait()

	created := 0
	var leadID uuid.UUID
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: unexpected error: %v", i, errs[i])
		}
		if results[i].Lead == nil {
			t.Fatalf("worker %d: expected a lead", i)
		}
		if results[i].Created() {
			created++
		}
		if leadID == uuid.Nil {
			leadID = results[i].Lead.ID
		} else if results[i].Lead.ID != leadID {
			t.Fatalf("workers diverged: %s vs %s", leadID, results[i].Lead.ID)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one creation, got %d", created)
	}
	if len(store.leads) != 1 {
		t.Fatalf("expected a single lead record, got %d", len(store.leads))
	}
}

// raceStore makes the resolver's first email lookup miss even though the
// record exists, reproducing the lost-race window deterministically.
type raceStore struct {
	*memStore
	missedOnce bool
}

func (r *raceStore) FindActiveByEmail(ctx context.Context, orgID uuid.UUID, email string) (*domain.Lead, error) {
	if !r.missedOnce {
		r.missedOnce = true
		return nil, nil
	}
	return r.memStore.FindActiveByEmail(ctx, orgID, email)
}

func TestProcess_ConflictRecoveredIsTyped(t *testing.T) {
	store := &raceStore{memStore: newMemStore()}
	svc := New(store, nil, nil, nil)

	email := "ana@example.com"
	winner, err := store.memStore.CreateLead(context.Background(), repository.CreateLeadParams{
		OrganizationID: testOrg, DisplayName: "A. Santos", Email: &email,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.Process(context.Background(), chatEvent("ana@example.com", "", "Ana Souza"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeConflictRecovered {
		t.Fatalf("expected conflict recovery, got outcome %d", res.Outcome)
	}
	if res.Lead.ID != winner.ID {
		t.Fatalf("recovery must land on the winner's record")
	}
	if res.Created() {
		t.Fatalf("conflict recovery must not report creation")
	}
}

func TestProcess_UnidentifiedShortCircuits(t *testing.T) {
	store := newMemStore()
	svc := New(store, nil, nil, nil)

	res, err := svc.Process(context.Background(), chatEvent("", "", "Gi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeUnidentified {
		t.Fatalf("expected unidentified outcome, got %d", res.Outcome)
	}
	if len(store.leads) != 0 {
		t.Fatalf("unidentified events must not create leads")
	}
	if len(store.events) != 0 {
		t.Fatalf("unidentified events must not touch the audit trail")
	}
}

func TestProcess_PhoneIsNormalizedBeforeMatching(t *testing.T) {
	store := newMemStore()
	svc := New(store, nil, nil, nil)

	first, err := svc.Process(context.Background(), chatEvent("", "+55 61 98626-6334", "Bruno Lima"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Created() {
		t.Fatalf("expected creation on first contact")
	}
	if first.Lead.Phone == nil || *first.Lead.Phone != "+5561986266334" {
		t.Fatalf("expected normalized phone stored, got %v", first.Lead.Phone)
	}

	// Same number in legacy 10-digit local format must hit the same lead.
	second, err := svc.Process(context.Background(), chatEvent("", "(61) 8626-6334", "Bruno Lima"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Created() {
		t.Fatalf("legacy-format number must match, not create")
	}
	if second.Lead.ID != first.Lead.ID {
		t.Fatalf("format variants diverged into separate leads")
	}
}

func TestProcess_MergeReplacesSnapshotAndKeepsIdentity(t *testing.T) {
	store := newMemStore()
	svc := New(store, nil, nil, nil)

	first, err := svc.Process(context.Background(), chatEvent("carla@example.com", "", "Carla Dias"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second report: same email, a different raw name, fresher counters.
	event := chatEvent("carla@example.com", "", "C. Dias")
	event.Facts = domain.ChatFacts{Channel: "whatsapp", ConversationCount: 4, MessageCount: 10, LastInteractionAt: time.Now()}
	second, err := svc.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.Lead.DisplayName != "Carla Dias" {
		t.Fatalf("known display name must not be overwritten, got %q", second.Lead.DisplayName)
	}
	if second.Lead.Chat == nil || second.Lead.Chat.ConversationCount != 4 {
		t.Fatalf("chat snapshot must be replaced wholesale, got %+v", second.Lead.Chat)
	}
	if second.Lead.EngagementScore != 4*10+10*2 {
		t.Fatalf("engagement must be recomputed from the new snapshot, got %d", second.Lead.EngagementScore)
	}
	if first.Lead.ID != second.Lead.ID {
		t.Fatalf("expected both events on one lead")
	}
}

func TestProcess_ClassificationSurvivesCrossSourceMerges(t *testing.T) {
	store := newMemStore()
	svc := New(store, nil, nil, nil)

	declaration := domain.InboundEvent{
		Source:         domain.SourceTaxDeclaration,
		OrganizationID: testOrg,
		CorrelationID:  uuid.NewString(),
		RawEmail:       "diego@example.com",
		RawName:        "Diego Martins",
		Facts: domain.DeclarationFacts{
			TaxYear: 2025,
			Assets:  []domain.AssetItem{{Description: "apartment", ValueCents: 150_000_000}},
			Debts:   []domain.DebtItem{{Description: "mortgage", ValueCents: 30_000_000}},
		},
	}
	res, err := svc.Process(context.Background(), declaration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lead.PatrimonialTier != domain.TierHigh {
		t.Fatalf("expected high tier from net worth, got %q", res.Lead.PatrimonialTier)
	}
	if res.Lead.NetWorthCents == nil || *res.Lead.NetWorthCents != 120_000_000 {
		t.Fatalf("expected net worth computed at merge, got %v", res.Lead.NetWorthCents)
	}
	if !res.Lead.Qualified {
		t.Fatalf("high tier must qualify the lead")
	}

	// A later chat merge recomputes from both stored snapshots: the tier
	// derived from the declaration must not drift.
	chat, err := svc.Process(context.Background(), chatEvent("diego@example.com", "", "Diego Martins"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chat.Lead.PatrimonialTier != domain.TierHigh {
		t.Fatalf("tier drifted after unrelated merge: %q", chat.Lead.PatrimonialTier)
	}
	if chat.Lead.Declaration == nil || chat.Lead.Declaration.TaxYear != 2025 {
		t.Fatalf("declaration snapshot lost in chat merge")
	}
}

func TestProcess_OneEnrichedEventPerMerge(t *testing.T) {
	store := newMemStore()
	svc := New(store, nil, nil, nil)

	res, err := svc.Process(context.Background(), chatEvent("eva@example.com", "61 98626-6334", "Eva Prado"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := store.countEvents(res.Lead.ID, domain.EventLeadEnriched); n != 1 {
		t.Fatalf("expected exactly one enrichment entry, got %d", n)
	}
	if n := store.countEvents(res.Lead.ID, domain.EventLeadCreated); n != 1 {
		t.Fatalf("expected exactly one creation entry, got %d", n)
	}
}

func TestMerge_IdentityFillInConflictRetriesWithoutFills(t *testing.T) {
	store := newMemStore()
	svc := New(store, nil, nil, nil)

	// Lead A owns the email; lead B is phone-only.
	if _, err := svc.Process(context.Background(), chatEvent("shared@example.com", "", "Alice Nunes")); err != nil {
		t.Fatalf("seed A: %v", err)
	}
	resB, err := svc.Process(context.Background(), chatEvent("", "11 91234-5678", "Beto Rocha"))
	if err != nil {
		t.Fatalf("seed B: %v", err)
	}

	// Drive the merge directly with a conflicting fill-in: B matched by
	// phone while the event also carries A's email. The fill-in hits the
	// uniqueness constraint and the merge must retry without it.
	lead, err := store.GetByID(context.Background(), testOrg, resB.Lead.ID)
	if err != nil {
		t.Fatalf("get B: %v", err)
	}
	email := "shared@example.com"
	updated, err := svc.merge(context.Background(), &lead, domain.ChatFacts{Channel: "whatsapp", ConversationCount: 2, MessageCount: 2}, email, "", "")
	if err != nil {
		t.Fatalf("merge must recover from fill-in conflict: %v", err)
	}
	for _, field := range updated {
		if field == "email" {
			t.Fatalf("conflicting fill-in must be dropped from the update set")
		}
	}

	after, err := store.GetByID(context.Background(), testOrg, resB.Lead.ID)
	if err != nil {
		t.Fatalf("get B after merge: %v", err)
	}
	if after.Email != nil {
		t.Fatalf("email owned by another live lead must not be filled in")
	}
	if after.Chat == nil || after.Chat.ConversationCount != 2 {
		t.Fatalf("snapshot must still merge after dropping the fill-in")
	}
}

func TestProcess_DispatchKindTracksOutcome(t *testing.T) {
	store := newMemStore()
	dispatcher := &captureDispatcher{}
	svc := New(store, dispatcher, nil, nil)

	first, err := svc.Process(context.Background(), chatEvent("fabio@example.com", "", "Fabio Reis"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Process(context.Background(), chatEvent("fabio@example.com", "", "Fabio Reis")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dispatcher.kinds) != 2 {
		t.Fatalf("expected two fan-outs, got %d", len(dispatcher.kinds))
	}
	if dispatcher.kinds[0] != DispatchLeadCreated || dispatcher.kinds[1] != DispatchLeadEnriched {
		t.Fatalf("unexpected dispatch kinds: %v", dispatcher.kinds)
	}
	if len(first.Deliveries) != 1 || !first.Deliveries[0].Success {
		t.Fatalf("expected delivery outcomes surfaced on the result")
	}
}

func TestMerge_StaleReadersCannotOverwriteIdentity(t *testing.T) {
	store := newMemStore()
	svc := New(store, nil, nil, nil)

	res, err := svc.Process(context.Background(), chatEvent("", "11 91234-5678", "Fabio Telles"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Two merges read the lead before either writes: both observe a blank
	// email and try to fill different values. The store must keep the first
	// value that lands; the later writer's fill-in is ignored, not applied.
	stale1, err := store.GetByID(context.Background(), testOrg, res.Lead.ID)
	if err != nil {
		t.Fatalf("stale read 1: %v", err)
	}
	stale2, err := store.GetByID(context.Background(), testOrg, res.Lead.ID)
	if err != nil {
		t.Fatalf("stale read 2: %v", err)
	}

	facts := domain.ChatFacts{Channel: "whatsapp", ConversationCount: 2, MessageCount: 2, LastInteractionAt: time.Now()}
	if _, err := svc.merge(context.Background(), &stale1, facts, "first@example.com", "", ""); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if _, err := svc.merge(context.Background(), &stale2, facts, "second@example.com", "", ""); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	final, err := store.GetByID(context.Background(), testOrg, res.Lead.ID)
	if err != nil {
		t.Fatalf("get final: %v", err)
	}
	if final.Email == nil || *final.Email != "first@example.com" {
		t.Fatalf("first-known email overwritten by later writer: got %v", final.Email)
	}
}

func TestProcess_MergeOrderIndependentForIdentity(t *testing.T) {
	emailEvent := chatEvent("gustavo@example.com", "", "Gustavo Prado")
	phoneEvent := chatEvent("", "61 98626-6334", "Gustavo Prado")

	apply := func(t *testing.T, first, second domain.InboundEvent) domain.Lead {
		t.Helper()
		store := newMemStore()
		svc := New(store, nil, nil, nil)
		if _, err := svc.Process(context.Background(), first); err != nil {
			t.Fatalf("first event: %v", err)
		}
		res, err := svc.Process(context.Background(), second)
		if err != nil {
			t.Fatalf("second event: %v", err)
		}
		if res.Created() {
			t.Fatalf("second event must match by name, not create")
		}
		return *res.Lead
	}

	// Each event carries one identifier; applied in either order the lead
	// must end up with the same name, email and phone.
	ab := apply(t, emailEvent, phoneEvent)
	ba := apply(t, phoneEvent, emailEvent)

	if ab.DisplayName != ba.DisplayName {
		t.Fatalf("display name depends on merge order: %q vs %q", ab.DisplayName, ba.DisplayName)
	}
	if strOrEmpty(ab.Email) != strOrEmpty(ba.Email) || strOrEmpty(ab.Phone) != strOrEmpty(ba.Phone) {
		t.Fatalf("identity depends on merge order: %q/%q vs %q/%q",
			strOrEmpty(ab.Email), strOrEmpty(ab.Phone), strOrEmpty(ba.Email), strOrEmpty(ba.Phone))
	}
	if ab.Email == nil || ab.Phone == nil {
		t.Fatalf("expected both identifiers present after the two merges")
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
