package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/victorgrein/magnus-ai-sub001/internal/config"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/webhook"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. Token auth
// runs as router-level middleware and skips the public paths; the engine
// callback is verified by HMAC instead. authLimiter and idemKV may be nil.
func MountRoutes(r chi.Router, h *Handlers, webhookCfg config.Webhook, authLimiter *middleware.RateLimiter, idemKV jetstream.KeyValue) {
	// Engine callback (outside token auth, HMAC-verified)
	r.Route("/api/v1/chat/webhooks", func(r chi.Router) {
		r.With(middleware.WebhookHMAC(webhookCfg.EngineSecret, webhook.SignatureHeader)).
			Post("/engine", h.EngineCallback)
	})

	// WebSocket event subscription (token via ?token= query param)
	r.Get("/ws", h.WS)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Auth (public endpoints are rate limited per IP)
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if authLimiter != nil {
					r.Use(authLimiter.Handler)
				}
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
				r.Post("/refresh", h.Refresh)
				r.Get("/verify-email", h.VerifyEmail)
				r.Post("/forgot-password", h.ForgotPassword)
				r.Post("/reset-password", h.ResetPassword)
			})

			r.Get("/me", h.Me)
			r.Post("/logout", h.Logout)
			r.Post("/change-password", h.ChangePassword)
			r.Post("/api-keys", h.CreateAPIKey)
			r.Get("/api-keys", h.ListAPIKeys)
			r.Delete("/api-keys/{id}", h.DeleteAPIKey)
		})

		// Users (admin)
		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/", h.CreateUser)
			r.Get("/", h.ListUsers)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)
		})

		// Clients (creation and deletion are admin, reads are scoped)
		r.With(middleware.RequireAdmin).Post("/clients", h.CreateClient)
		r.Get("/clients", h.ListClients)
		r.Get("/clients/{id}", h.GetClient)
		r.Put("/clients/{id}", h.UpdateClient)
		r.With(middleware.RequireAdmin).Delete("/clients/{id}", h.DeleteClient)

		// Contacts (client scoped)
		r.Post("/contacts", h.CreateContact)
		r.Get("/contacts", h.ListContacts)
		r.Get("/contacts/{id}", h.GetContact)
		r.Put("/contacts/{id}", h.UpdateContact)
		r.Delete("/contacts/{id}", h.DeleteContact)

		// Agents (client scoped)
		r.Post("/agents", h.CreateAgent)
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Put("/agents/{id}", h.UpdateAgent)
		r.Delete("/agents/{id}", h.DeleteAgent)
		r.Put("/agents/{id}/folder", h.AssignAgentFolder)

		// Agent folders (client scoped)
		r.Post("/folders", h.CreateFolder)
		r.Get("/folders", h.ListFolders)
		r.Get("/folders/{id}", h.GetFolder)
		r.Put("/folders/{id}", h.UpdateFolder)
		r.Delete("/folders/{id}", h.DeleteFolder)

		// MCP servers (writes are admin, reads and probes are open)
		r.With(middleware.RequireAdmin).Post("/mcp-servers", h.CreateMCPServer)
		r.Get("/mcp-servers", h.ListMCPServers)
		r.Get("/mcp-servers/{id}", h.GetMCPServer)
		r.With(middleware.RequireAdmin).Put("/mcp-servers/{id}", h.UpdateMCPServer)
		r.With(middleware.RequireAdmin).Delete("/mcp-servers/{id}", h.DeleteMCPServer)
		r.Post("/mcp-servers/{id}/test", h.TestMCPServer)
		r.Post("/mcp-servers/test", h.TestMCPServerDefinition)

		// Tools (writes are admin)
		r.With(middleware.RequireAdmin).Post("/tools", h.CreateTool)
		r.Get("/tools", h.ListTools)
		r.Get("/tools/{id}", h.GetTool)
		r.With(middleware.RequireAdmin).Put("/tools/{id}", h.UpdateTool)
		r.With(middleware.RequireAdmin).Delete("/tools/{id}", h.DeleteTool)

		// Audit trail (admin)
		r.With(middleware.RequireAdmin).Get("/audit", h.ListAudit)

		// Sessions
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/{agentID}/{externalID}", h.ListSessions)
		r.Get("/sessions/{agentID}/{externalID}/{id}", h.GetSession)
		r.Delete("/sessions/{agentID}/{externalID}/{id}", h.DeleteSession)
		r.Post("/sessions/{agentID}/{externalID}/{id}/events", h.AppendSessionEvent)

		// Chat
		r.Group(func(r chi.Router) {
			if idemKV != nil {
				r.Use(middleware.Idempotency(idemKV))
			}
			r.Post("/chat", h.Chat)
		})
		r.Post("/chat/stream", h.ChatStream)
	})
}
