// Package leads wires the lead identity resolution and enrichment pipeline
// into the application: repository, resolver, pipeline service, and the read
// API routes.
package leads

import (
	"marketingops_backend/internal/events"
	apphttp "marketingops_backend/internal/http"
	"marketingops_backend/internal/leads/handler"
	"marketingops_backend/internal/leads/repository"
	"marketingops_backend/internal/leads/service"
	"marketingops_backend/internal/webhook"
	"marketingops_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	service     *service.Service
	handler     *handler.Handler
	webhookRepo *webhook.Repository
}

// NewModule creates the leads module. The dispatcher comes from the webhook
// module so outbound delivery and inbound capture share destination config.
func NewModule(pool *pgxpool.Pool, dispatcher service.Dispatcher, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, dispatcher, bus, log)
	webhookRepo := webhook.NewRepository(pool)

	return &Module{
		service:     svc,
		handler:     handler.New(svc, webhookRepo),
		webhookRepo: webhookRepo,
	}
}

// Service exposes the pipeline for the webhook module's handlers.
func (m *Module) Service() *service.Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts the read API. Reads use the same API-key auth as the
// inbound webhook endpoints: sources can check what the pipeline did with
// their events, scoped to their own tenant.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/leads")
	group.Use(webhook.APIKeyAuthMiddleware(m.webhookRepo))
	group.GET("/:leadId", m.handler.HandleGetLead)
	group.GET("/:leadId/events", m.handler.HandleListLeadEvents)
	group.GET("/:leadId/deliveries", m.handler.HandleListLeadDeliveries)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
