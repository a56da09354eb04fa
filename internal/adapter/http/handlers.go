package http

import (
	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/otel"
	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/ws"
	"github.com/victorgrein/magnus-ai-sub001/internal/service"
)

// Handlers bundles the services the HTTP layer exposes.
type Handlers struct {
	auth     *service.AuthService
	clients  *service.ClientService
	contacts *service.ContactService
	agents   *service.AgentService
	mcp      *service.MCPService
	tools    *service.ToolService
	audit    *service.AuditService
	sessions *service.SessionService
	chat     *service.ChatService
	hub      *ws.Hub
	metrics  *otel.Metrics
}

// NewHandlers creates the handler set. hub and metrics may be nil.
func NewHandlers(
	auth *service.AuthService,
	clients *service.ClientService,
	contacts *service.ContactService,
	agents *service.AgentService,
	mcp *service.MCPService,
	tools *service.ToolService,
	audit *service.AuditService,
	sessions *service.SessionService,
	chat *service.ChatService,
	hub *ws.Hub,
	metrics *otel.Metrics,
) *Handlers {
	return &Handlers{
		auth:     auth,
		clients:  clients,
		contacts: contacts,
		agents:   agents,
		mcp:      mcp,
		tools:    tools,
		audit:    audit,
		sessions: sessions,
		chat:     chat,
		hub:      hub,
		metrics:  metrics,
	}
}
