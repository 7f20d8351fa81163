package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"marketingops_backend/internal/events"
	"marketingops_backend/internal/extraction"
	"marketingops_backend/internal/leads/domain"
	"marketingops_backend/internal/leads/service"
	"marketingops_backend/platform/httpkit"
	"marketingops_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errNoOrgContext   = "no organization context"
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"

	// maxDeclarationBytes caps tax-declaration uploads at 15 MB.
	maxDeclarationBytes = 15 << 20
)

// DeclarationExtractor turns an uploaded tax-declaration PDF into structured
// facts plus the declarant's identification block.
type DeclarationExtractor interface {
	Extract(ctx context.Context, pdf []byte, filename string) (extraction.Result, error)
}

// ReviewQueue receives inbound events that carried no usable identifier.
type ReviewQueue interface {
	EnqueueManualReview(ctx context.Context, orgID uuid.UUID, source, correlationID string, rawPayload []byte, reason string) error
}

// Handler handles inbound webhook HTTP requests.
type Handler struct {
	pipeline  *service.Service
	val       *validator.Validator
	extractor DeclarationExtractor
	review    ReviewQueue
	bus       events.Bus
}

// NewHandler creates a new webhook handler. extractor and review may be nil
// when the corresponding backends are not configured.
func NewHandler(pipeline *service.Service, val *validator.Validator, extractor DeclarationExtractor, review ReviewQueue, bus events.Bus) *Handler {
	return &Handler{pipeline: pipeline, val: val, extractor: extractor, review: review, bus: bus}
}

// HandleChatEvent processes a chat-platform activity report.
// POST /api/v1/webhook/chat-events
func (h *Handler) HandleChatEvent(c *gin.Context) {
	orgID, ok := orgIDFromContext(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, errNoOrgContext, nil)
		return
	}

	var req ChatEventRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	h.runPipeline(c, req.toInboundEvent(orgID), req)
}

// HandleCRMSync processes a CRM contact sync.
// POST /api/v1/webhook/crm-sync
func (h *Handler) HandleCRMSync(c *gin.Context) {
	orgID, ok := orgIDFromContext(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, errNoOrgContext, nil)
		return
	}

	var req CRMSyncRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	h.runPipeline(c, req.toInboundEvent(orgID), req)
}

// HandleTaxDeclaration processes an uploaded tax-declaration PDF: extraction
// first, then the regular pipeline with the extracted identification block.
// Form fields may override the extracted identity when the uploader already
// knows who the declarant is.
// POST /api/v1/webhook/tax-declarations (multipart)
func (h *Handler) HandleTaxDeclaration(c *gin.Context) {
	orgID, ok := orgIDFromContext(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, errNoOrgContext, nil)
		return
	}
	if h.extractor == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "document extraction is not configured", nil)
		return
	}

	fileHeader, err := c.FormFile("document")
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "document file is required", nil)
		return
	}
	if fileHeader.Size > maxDeclarationBytes {
		httpkit.Error(c, http.StatusRequestEntityTooLarge, "document exceeds the size limit", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "could not read document", nil)
		return
	}
	defer file.Close()

	pdf, err := io.ReadAll(io.LimitReader(file, maxDeclarationBytes))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "could not read document", nil)
		return
	}

	result, err := h.extractor.Extract(c.Request.Context(), pdf, fileHeader.Filename)
	if httpkit.HandleError(c, err) {
		return
	}

	event := domain.InboundEvent{
		Source:         domain.SourceTaxDeclaration,
		OrganizationID: orgID,
		CorrelationID:  orFallback(c.PostForm("correlationId")),
		RawName:        firstNonEmpty(c.PostForm("name"), result.Identification.FullName),
		RawEmail:       firstNonEmpty(c.PostForm("email"), result.Identification.Email),
		RawPhone:       firstNonEmpty(c.PostForm("phone"), result.Identification.Phone),
		Facts:          result.Facts,
	}

	h.runPipeline(c, event, result)
}

// runPipeline feeds the event through the lead pipeline and writes the
// standard response. Unidentifiable events go to the manual review queue
// instead of being dropped.
func (h *Handler) runPipeline(c *gin.Context, event domain.InboundEvent, rawPayload any) {
	started := time.Now()

	result, err := h.pipeline.Process(c.Request.Context(), event)
	if httpkit.HandleError(c, err) {
		return
	}

	if result.Outcome == service.OutcomeUnidentified {
		h.queueForReview(c.Request.Context(), event, rawPayload)
		c.JSON(http.StatusAccepted, PipelineResponse{
			Success:         true,
			QueuedForReview: true,
			DurationMs:      durationMs(started),
		})
		return
	}

	leadID := result.Lead.ID.String()
	c.JSON(http.StatusOK, PipelineResponse{
		Success:     true,
		LeadID:      &leadID,
		LeadCreated: result.Created(),
		DurationMs:  durationMs(started),
	})
}

func (h *Handler) queueForReview(ctx context.Context, event domain.InboundEvent, rawPayload any) {
	raw, err := json.Marshal(rawPayload)
	if err != nil {
		raw = []byte("{}")
	}

	// Queue unavailability must not fail the inbound call; the event is
	// still acknowledged, and bus observers see it with Enqueued=false so
	// the fallback capture path can pick it up.
	enqueued := false
	if h.review != nil {
		if err := h.review.EnqueueManualReview(ctx, event.OrganizationID, string(event.Source), event.CorrelationID, raw, "no usable identifier"); err == nil {
			enqueued = true
		}
	}

	if h.bus != nil {
		h.bus.Publish(ctx, events.EventQueuedForReview{
			BaseEvent:     events.NewBaseEvent(),
			TenantID:      event.OrganizationID,
			Source:        string(event.Source),
			CorrelationID: event.CorrelationID,
			RawPayload:    raw,
			Reason:        "no usable identifier",
			Enqueued:      enqueued,
		})
	}
}

func (h *Handler) bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return false
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func durationMs(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000
}
