package extraction

import (
	"encoding/json"
	"strings"

	"marketingops_backend/internal/leads/domain"
	"marketingops_backend/platform/apperr"
)

const (
	minTaxYear = 1990
	maxTaxYear = 2100

	// maxItems caps itemized lists; a real declaration never approaches this
	// and an unbounded list means the model went off the rails.
	maxItems = 500
)

// modelOutput is the wire shape the model is instructed to produce.
type modelOutput struct {
	Identification Identification `json:"identification"`
	TaxYear        int            `json:"taxYear"`
	DeclaredIncome int64          `json:"declaredIncomeCents"`
	ExemptIncome   int64          `json:"exemptIncomeCents"`
	Assets         []itemOutput   `json:"assets"`
	Debts          []itemOutput   `json:"debts"`
}

type itemOutput struct {
	Description string `json:"description"`
	ValueCents  int64  `json:"valueCents"`
}

// ParseModelOutput decodes and validates the model's JSON. Malformed or
// incomplete output yields an unprocessable error: the document is rejected
// and nothing reaches the pipeline.
func ParseModelOutput(raw []byte) (Result, error) {
	text := stripFences(string(raw))
	if strings.TrimSpace(text) == "" {
		return Result{}, apperr.Unprocessable("extraction produced no output")
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return Result{}, apperr.Unprocessable("extraction produced malformed output")
	}

	out.Identification.FullName = strings.TrimSpace(out.Identification.FullName)
	out.Identification.Email = strings.TrimSpace(out.Identification.Email)
	out.Identification.Phone = strings.TrimSpace(out.Identification.Phone)
	if out.Identification.FullName == "" && out.Identification.Email == "" && out.Identification.Phone == "" {
		return Result{}, apperr.Unprocessable("declaration has no identification block")
	}

	if out.TaxYear < minTaxYear || out.TaxYear > maxTaxYear {
		return Result{}, apperr.Unprocessable("declaration has an implausible tax year")
	}
	if out.DeclaredIncome < 0 || out.ExemptIncome < 0 {
		return Result{}, apperr.Unprocessable("declaration has negative income figures")
	}
	if len(out.Assets) > maxItems || len(out.Debts) > maxItems {
		return Result{}, apperr.Unprocessable("declaration item list exceeds plausible size")
	}

	assets, err := toItems(out.Assets, "asset")
	if err != nil {
		return Result{}, err
	}
	debts, err := toItems(out.Debts, "debt")
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Identification: out.Identification,
		Facts: domain.DeclarationFacts{
			TaxYear:             out.TaxYear,
			DeclaredIncomeCents: out.DeclaredIncome,
			ExemptIncomeCents:   out.ExemptIncome,
		},
	}
	for _, item := range assets {
		result.Facts.Assets = append(result.Facts.Assets, domain.AssetItem(item))
	}
	for _, item := range debts {
		result.Facts.Debts = append(result.Facts.Debts, domain.DebtItem(item))
	}
	return result, nil
}

type item struct {
	Description string
	ValueCents  int64
}

func toItems(outputs []itemOutput, kind string) ([]item, error) {
	var items []item
	for _, out := range outputs {
		description := strings.TrimSpace(out.Description)
		if description == "" {
			// Items without a description are dropped rather than failing the
			// whole document; totals stay conservative either way.
			continue
		}
		if out.ValueCents < 0 {
			return nil, apperr.Unprocessable("declaration has a negative " + kind + " value")
		}
		items = append(items, item{Description: description, ValueCents: out.ValueCents})
	}
	return items, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite the JSON response mode.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
