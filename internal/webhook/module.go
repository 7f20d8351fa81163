package webhook

import (
	"marketingops_backend/internal/events"
	apphttp "marketingops_backend/internal/http"
	"marketingops_backend/internal/leads/service"
	"marketingops_backend/platform/config"
	"marketingops_backend/platform/logger"
	"marketingops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler    *Handler
	repo       *Repository
	dispatcher *Dispatcher
}

// NewModule creates and initializes the webhook module. The dispatcher it
// builds must be handed to the leads pipeline by the composition root before
// the pipeline service is constructed, so wiring happens in two steps:
// NewModule builds the dispatcher, SetPipeline attaches the handler.
func NewModule(pool *pgxpool.Pool, cfg config.DispatchConfig, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	return &Module{
		repo:       repo,
		dispatcher: NewDispatcher(repo, repo, cfg, log),
	}
}

// Dispatcher exposes the outbound dispatcher for pipeline wiring.
func (m *Module) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// SetPipeline attaches the lead pipeline and finishes handler construction.
func (m *Module) SetPipeline(pipeline *service.Service, val *validator.Validator, extractor DeclarationExtractor, review ReviewQueue, bus events.Bus) {
	m.handler = NewHandler(pipeline, val, extractor, review, bus)
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the inbound webhook routes. All of them are public
// endpoints behind API-key auth and the webhook rate limiter.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	group.Use(ctx.WebhookRateLimiter.RateLimit())
	group.Use(APIKeyAuthMiddleware(m.repo))
	group.POST("/chat-events", m.handler.HandleChatEvent)
	group.POST("/crm-sync", m.handler.HandleCRMSync)
	group.POST("/tax-declarations", m.handler.HandleTaxDeclaration)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
