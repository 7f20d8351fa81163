// Package extraction turns uploaded tax-declaration PDFs into structured
// facts using the Gemini API. The model output is untrusted input: everything
// it returns is re-validated before it can reach the lead pipeline.
package extraction

import (
	"context"
	"fmt"
	"time"

	"marketingops_backend/internal/leads/domain"
	"marketingops_backend/platform/apperr"
	"marketingops_backend/platform/config"
	"marketingops_backend/platform/logger"

	"google.golang.org/genai"
)

// Identification is the declarant's identity block extracted from the
// document. At least one field must be present; a declaration that cannot
// name its declarant is rejected before any write happens.
type Identification struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// Result is a validated extraction: who the declaration belongs to, and the
// itemized financial facts.
type Result struct {
	Identification Identification          `json:"identification"`
	Facts          domain.DeclarationFacts `json:"facts"`
}

// Client extracts declaration facts via the Gemini API.
type Client struct {
	genai   *genai.Client
	model   string
	timeout time.Duration
	log     *logger.Logger
}

// New creates the extraction client. Returns nil without error when no API
// key is configured; callers treat a nil client as "extraction disabled".
func New(ctx context.Context, cfg config.ExtractionConfig, log *logger.Logger) (*Client, error) {
	if !cfg.IsExtractionEnabled() {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		genai:   client,
		model:   cfg.GetExtractionModel(),
		timeout: cfg.GetExtractionTimeout(),
		log:     log,
	}, nil
}

const extractionPrompt = `You are extracting data from a Brazilian income tax declaration (IRPF) PDF.
Return a single JSON object with this exact shape, amounts in integer cents (BRL):
{
  "identification": {"fullName": string, "email": string, "phone": string},
  "taxYear": int,
  "declaredIncomeCents": int,
  "exemptIncomeCents": int,
  "assets": [{"description": string, "valueCents": int}],
  "debts": [{"description": string, "valueCents": int}]
}
Rules:
- identification comes from the declarant block of the document; use empty strings for fields the document does not show, never invent values.
- assets come from the "Bens e Direitos" section, debts from "Dívidas e Ônus Reais".
- valueCents is the declared value at the end of the tax year.
- Output JSON only, no commentary.`

// Extract runs the model over the PDF and validates its output. The call is
// bounded by the configured timeout.
func (c *Client) Extract(ctx context.Context, pdf []byte, filename string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: pdf}},
			{Text: extractionPrompt},
		},
	}}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, apperr.Internal("document extraction timed out").WithOp("extraction.Extract")
		}
		return Result{}, apperr.Internal(fmt.Sprintf("document extraction failed: %v", err)).WithOp("extraction.Extract")
	}

	result, err := ParseModelOutput([]byte(resp.Text()))
	if err != nil {
		return Result{}, err
	}

	c.log.Info("declaration extracted",
		"filename", filename,
		"taxYear", result.Facts.TaxYear,
		"assets", len(result.Facts.Assets),
		"debts", len(result.Facts.Debts),
		"durationMs", time.Since(started).Milliseconds(),
	)
	return result, nil
}
