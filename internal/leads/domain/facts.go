package domain

import "time"

// Source tags the external system an inbound event originated from.
type Source string

const (
	SourceChat           Source = "chat"
	SourceTaxDeclaration Source = "tax_declaration"
	SourceCRM            Source = "crm"
)

// FactBundle is the tagged union of per-source enrichment data. The merger
// dispatches on the concrete type; each variant carries its own
// strongly-typed field set instead of an untyped bag of optionals.
type FactBundle interface {
	SourceTag() Source
}

// ChatFacts is the chat platform's snapshot of a contact's activity.
// These are "current state" counters: the latest report replaces the
// previous one wholesale.
type ChatFacts struct {
	Channel           string    `json:"channel"`
	ConversationCount int       `json:"conversationCount"`
	MessageCount      int       `json:"messageCount"`
	LastInteractionAt time.Time `json:"lastInteractionAt"`
}

func (ChatFacts) SourceTag() Source { return SourceChat }

// AssetItem is one itemized asset from a tax declaration.
type AssetItem struct {
	Description string `json:"description"`
	ValueCents  int64  `json:"valueCents"`
}

// DebtItem is one itemized debt from a tax declaration.
type DebtItem struct {
	Description string `json:"description"`
	ValueCents  int64  `json:"valueCents"`
}

// DeclarationFacts is the structured output of a tax-declaration extraction.
type DeclarationFacts struct {
	TaxYear             int         `json:"taxYear"`
	DeclaredIncomeCents int64       `json:"declaredIncomeCents"`
	ExemptIncomeCents   int64       `json:"exemptIncomeCents"`
	Assets              []AssetItem `json:"assets"`
	Debts               []DebtItem  `json:"debts"`
}

func (DeclarationFacts) SourceTag() Source { return SourceTaxDeclaration }

// DeclarationSnapshot is what the lead stores for the declaration source:
// the itemized facts plus the totals computed once at merge time. Net figures
// are never recomputed lazily downstream.
type DeclarationSnapshot struct {
	DeclarationFacts
	AssetsTotalCents int64 `json:"assetsTotalCents"`
	DebtsTotalCents  int64 `json:"debtsTotalCents"`
	NetWorthCents    int64 `json:"netWorthCents"`
}

// Totals sums the itemized records and derives the net figure.
func (f DeclarationFacts) Totals() (assets, debts, net int64) {
	for _, item := range f.Assets {
		assets += item.ValueCents
	}
	for _, item := range f.Debts {
		debts += item.ValueCents
	}
	return assets, debts, assets - debts
}

// CRMFacts is the CRM's snapshot of the contact's sales state.
type CRMFacts struct {
	Stage      string   `json:"stage"`
	Owner      string   `json:"owner"`
	Tags       []string `json:"tags"`
	ExternalID string   `json:"externalId"`
}

func (CRMFacts) SourceTag() Source { return SourceCRM }
