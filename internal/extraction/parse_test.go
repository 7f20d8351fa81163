package extraction

import (
	"errors"
	"testing"

	"marketingops_backend/platform/apperr"
)

func unprocessable(t *testing.T, err error) {
	t.Helper()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindUnprocessable {
		t.Fatalf("expected unprocessable error, got %v", err)
	}
}

func TestParseModelOutput_ValidDeclaration(t *testing.T) {
	raw := []byte(`{
		"identification": {"fullName": "Ana Souza", "email": "ana@example.com", "phone": "61 98626-6334"},
		"taxYear": 2024,
		"declaredIncomeCents": 18000000,
		"exemptIncomeCents": 500000,
		"assets": [
			{"description": "Apartamento", "valueCents": 45000000},
			{"description": "Veículo", "valueCents": 8000000}
		],
		"debts": [{"description": "Financiamento imobiliário", "valueCents": 20000000}]
	}`)

	result, err := ParseModelOutput(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identification.FullName != "Ana Souza" {
		t.Fatalf("identification not carried through: %+v", result.Identification)
	}
	if result.Facts.TaxYear != 2024 || len(result.Facts.Assets) != 2 || len(result.Facts.Debts) != 1 {
		t.Fatalf("facts not carried through: %+v", result.Facts)
	}

	assets, debts, net := result.Facts.Totals()
	if assets != 53000000 || debts != 20000000 || net != 33000000 {
		t.Fatalf("unexpected totals: assets=%d debts=%d net=%d", assets, debts, net)
	}
}

func TestParseModelOutput_FencedJSONIsAccepted(t *testing.T) {
	raw := []byte("```json\n{\"identification\": {\"fullName\": \"Bruno Lima\"}, \"taxYear\": 2023}\n```")
	result, err := ParseModelOutput(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identification.FullName != "Bruno Lima" {
		t.Fatalf("fenced output not parsed: %+v", result)
	}
}

func TestParseModelOutput_MissingIdentificationRejected(t *testing.T) {
	raw := []byte(`{
		"identification": {"fullName": "  ", "email": "", "phone": ""},
		"taxYear": 2024,
		"assets": [{"description": "Apartamento", "valueCents": 45000000}]
	}`)
	_, err := ParseModelOutput(raw)
	unprocessable(t, err)
}

func TestParseModelOutput_MalformedRejected(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"identification":`} {
		_, err := ParseModelOutput([]byte(raw))
		unprocessable(t, err)
	}
}

func TestParseModelOutput_ImplausibleValuesRejected(t *testing.T) {
	cases := map[string]string{
		"bad tax year": `{"identification": {"fullName": "X Y"}, "taxYear": 24}`,
		"negative income": `{"identification": {"fullName": "X Y"}, "taxYear": 2024,
			"declaredIncomeCents": -1}`,
		"negative asset": `{"identification": {"fullName": "X Y"}, "taxYear": 2024,
			"assets": [{"description": "a", "valueCents": -5}]}`,
	}
	for name, raw := range cases {
		if _, err := ParseModelOutput([]byte(raw)); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestParseModelOutput_BlankItemsDropped(t *testing.T) {
	raw := []byte(`{
		"identification": {"email": "carla@example.com"},
		"taxYear": 2024,
		"assets": [{"description": "   ", "valueCents": 100}, {"description": "Poupança", "valueCents": 100000}]
	}`)
	result, err := ParseModelOutput(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Facts.Assets) != 1 || result.Facts.Assets[0].Description != "Poupança" {
		t.Fatalf("blank-description items must be dropped: %+v", result.Facts.Assets)
	}
}
