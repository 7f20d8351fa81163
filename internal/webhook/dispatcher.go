package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"marketingops_backend/internal/leads/domain"
	"marketingops_backend/internal/leads/service"
	"marketingops_backend/platform/config"
	"marketingops_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const responseBodyLimit = 2048

// DestinationSource lists the active outbound destinations for a tenant.
type DestinationSource interface {
	ListActiveDestinations(ctx context.Context, orgID uuid.UUID) ([]Destination, error)
}

// DeliveryRecorder appends delivery-log rows.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, log DeliveryLog) error
}

// Dispatcher fans pipeline results out to configured destinations. Delivery
// is best-effort: a slow or failing destination never blocks the pipeline
// response, and every attempt leaves exactly one delivery-log row.
type Dispatcher struct {
	source      DestinationSource
	recorder    DeliveryRecorder
	client      *http.Client
	timeout     time.Duration
	concurrency int
	log         *logger.Logger
}

// NewDispatcher creates the outbound dispatcher.
func NewDispatcher(source DestinationSource, recorder DeliveryRecorder, cfg config.DispatchConfig, log *logger.Logger) *Dispatcher {
	concurrency := cfg.GetDispatchConcurrency()
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		source:      source,
		recorder:    recorder,
		client:      &http.Client{Timeout: cfg.GetDispatchTimeout()},
		timeout:     cfg.GetDispatchTimeout(),
		concurrency: concurrency,
		log:         log,
	}
}

// outboundPayload is the wire format delivered to destinations.
type outboundPayload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Lead      leadPayload    `json:"lead"`
	Context   map[string]any `json:"context,omitempty"`
}

// leadPayload is the lead's public projection. Raw per-source snapshots stay
// internal; subscribers get identity and derived classifications only.
type leadPayload struct {
	ID              uuid.UUID `json:"id"`
	OrganizationID  uuid.UUID `json:"organizationId"`
	DisplayName     string    `json:"displayName"`
	Email           *string   `json:"email"`
	Phone           *string   `json:"phone"`
	Qualified       bool      `json:"qualified"`
	EngagementScore int       `json:"engagementScore"`
	PatrimonialTier string    `json:"patrimonialTier,omitempty"`
	RiskProfile     string    `json:"riskProfile,omitempty"`
	NetWorthCents   *int64    `json:"netWorthCents,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Dispatch delivers the event to every subscribed destination concurrently.
// Implements the pipeline's Dispatcher interface; it never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, lead domain.Lead, eventKind string, snapshot map[string]any) []service.DeliveryOutcome {
	destinations, err := d.source.ListActiveDestinations(ctx, lead.OrganizationID)
	if err != nil {
		d.log.DatabaseError("webhook.ListActiveDestinations", err)
		return nil
	}

	var subscribed []Destination
	for _, dest := range destinations {
		if dest.Accepts(eventKind) {
			subscribed = append(subscribed, dest)
		}
	}
	if len(subscribed) == 0 {
		return nil
	}

	body, err := json.Marshal(outboundPayload{
		Event:     eventKind,
		Timestamp: time.Now().UTC(),
		Lead: leadPayload{
			ID:              lead.ID,
			OrganizationID:  lead.OrganizationID,
			DisplayName:     lead.DisplayName,
			Email:           lead.Email,
			Phone:           lead.Phone,
			Qualified:       lead.Qualified,
			EngagementScore: lead.EngagementScore,
			PatrimonialTier: lead.PatrimonialTier,
			RiskProfile:     lead.RiskProfile,
			NetWorthCents:   lead.NetWorthCents,
			CreatedAt:       lead.CreatedAt,
			UpdatedAt:       lead.UpdatedAt,
		},
		Context: snapshot,
	})
	if err != nil {
		d.log.Error("encode outbound payload", "error", err)
		return nil
	}

	outcomes := make([]service.DeliveryOutcome, len(subscribed))
	group := &errgroup.Group{}
	group.SetLimit(d.concurrency)

	for i, dest := range subscribed {
		group.Go(func() error {
			outcomes[i] = d.deliver(ctx, dest, lead.ID, eventKind, body)
			return nil
		})
	}
	_ = group.Wait()

	return outcomes
}

// deliver sends one attempt and records its log row. Each destination gets
// its own timeout so one slow subscriber cannot starve the rest.
func (d *Dispatcher) deliver(ctx context.Context, dest Destination, leadID uuid.UUID, eventKind string, body []byte) service.DeliveryOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome := service.DeliveryOutcome{DestinationID: dest.ID}
	logRow := DeliveryLog{
		DestinationID: dest.ID,
		LeadID:        &leadID,
		EventKind:     eventKind,
		Payload:       body,
	}

	status, responseBody, err := d.send(attemptCtx, dest, eventKind, body)
	switch {
	case err != nil:
		outcome.Error = err.Error()
		logRow.Outcome = DeliveryFailed
		if errors.Is(err, context.DeadlineExceeded) {
			logRow.Outcome = DeliveryTimedOut
		}
		logRow.ResponseBody = err.Error()
		d.log.DeliveryFailure(dest.ID.String(), 0, err)

	case status < 200 || status > 299:
		outcome.HTTPStatus = status
		outcome.Error = http.StatusText(status)
		logRow.HTTPStatus = &status
		logRow.Outcome = DeliveryFailed
		logRow.ResponseBody = responseBody
		d.log.DeliveryFailure(dest.ID.String(), status, nil)

	default:
		outcome.Success = true
		outcome.HTTPStatus = status
		logRow.HTTPStatus = &status
		logRow.Outcome = DeliverySucceeded
		logRow.ResponseBody = responseBody
	}

	// The log row is written with the parent context: an attempt timeout must
	// not also lose its own audit record.
	if err := d.recorder.RecordDelivery(ctx, logRow); err != nil {
		d.log.DatabaseError("webhook.RecordDelivery", err)
	}
	return outcome
}

func (d *Dispatcher) send(ctx context.Context, dest Destination, eventKind string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", eventKind)
	for name, value := range dest.Headers {
		req.Header.Set(name, value)
	}
	if dest.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, dest.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// The client wraps deadline errors in a *url.Error; unwrap so the
		// caller can classify timeouts.
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return 0, "", err
	}
	defer resp.Body.Close()

	limited, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	return resp.StatusCode, string(limited), nil
}

// Sign computes the hex HMAC-SHA256 of the payload under the destination's
// shared secret. Subscribers recompute it to authenticate deliveries.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
