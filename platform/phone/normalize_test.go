package phone

import "testing"

func TestNormalizeMobile_InsertsMobileIndicator(t *testing.T) {
	got, ok := NormalizeMobile("61 8626-6334")
	if !ok {
		t.Fatalf("expected legacy 10-digit number to normalize")
	}
	if got != "+5561986266334" {
		t.Fatalf("expected +5561986266334, got %s", got)
	}
}

func TestNormalizeMobile_LegacyAndModernConverge(t *testing.T) {
	legacy, ok := NormalizeMobile("(61) 8626-6334")
	if !ok {
		t.Fatalf("legacy form did not normalize")
	}
	modern, ok := NormalizeMobile("61 98626-6334")
	if !ok {
		t.Fatalf("modern form did not normalize")
	}
	if legacy != modern {
		t.Fatalf("expected both spellings to converge, got %s vs %s", legacy, modern)
	}
}

func TestNormalizeMobile_Idempotent(t *testing.T) {
	inputs := []string{
		"61 8626-6334",
		"+55 61 98626-6334",
		"55 61 98626 6334",
		"55986266334", // area code 55 without country code
	}
	for _, input := range inputs {
		first, ok := NormalizeMobile(input)
		if !ok {
			t.Fatalf("input %q did not normalize", input)
		}
		second, ok := NormalizeMobile(first)
		if !ok {
			t.Fatalf("canonical form %q did not re-normalize", first)
		}
		if first != second {
			t.Fatalf("normalization not idempotent for %q: %s != %s", input, first, second)
		}
	}
}

func TestNormalizeMobile_StripsCountryCode(t *testing.T) {
	got, ok := NormalizeMobile("+55 61 8626-6334")
	if !ok {
		t.Fatalf("expected country-coded legacy number to normalize")
	}
	if got != "+5561986266334" {
		t.Fatalf("expected +5561986266334, got %s", got)
	}
}

func TestNormalizeMobile_RejectsUnusableInput(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"12345",
		"555-0100",
		"not a phone",
		"6186266",       // too short even for legacy
		"619862663341234", // too long
	}
	for _, input := range inputs {
		if got, ok := NormalizeMobile(input); ok {
			t.Fatalf("expected %q to be rejected, got %s", input, got)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Lead@Example.com "); got != "lead@example.com" {
		t.Fatalf("expected lead@example.com, got %s", got)
	}
}
