// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/agent"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/audit"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/client"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/contact"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/mcp"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/session"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/tool"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
)

// Store is the port interface for database operations.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	ListUsers(ctx context.Context, page, limit int) ([]user.User, int, error)
	UpdateUser(ctx context.Context, u *user.User) error
	DeleteUser(ctx context.Context, id string) error
	CountUsersByClient(ctx context.Context, clientID string) (int, error)
	SetVerificationToken(ctx context.Context, userID, token string, expiry time.Time) error
	ConsumeVerificationToken(ctx context.Context, token string) (*user.User, error)
	SetPasswordResetToken(ctx context.Context, userID, token string, expiry time.Time) error
	ConsumePasswordResetToken(ctx context.Context, token, newHash string) (*user.User, error)

	// Refresh tokens
	CreateRefreshToken(ctx context.Context, rt *user.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*user.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, id string) error
	DeleteRefreshTokensByUser(ctx context.Context, userID string) error
	RotateRefreshToken(ctx context.Context, oldTokenHash string, newRT *user.RefreshToken) error
	PurgeExpiredRefreshTokens(ctx context.Context) (int64, error)

	// Access token revocation
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpiredTokens(ctx context.Context) (int64, error)

	// API keys
	CreateAPIKey(ctx context.Context, key *user.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*user.APIKey, error)
	ListAPIKeysByUser(ctx context.Context, userID string) ([]user.APIKey, error)
	DeleteAPIKey(ctx context.Context, id, userID string) error

	// Clients
	CreateClientWithUser(ctx context.Context, c *client.Client, u *user.User) error
	GetClient(ctx context.Context, id string) (*client.Client, error)
	ListClients(ctx context.Context, page, limit int) ([]client.Client, int, error)
	UpdateClient(ctx context.Context, c *client.Client) error
	DeleteClient(ctx context.Context, id string) error

	// Contacts
	CreateContact(ctx context.Context, c *contact.Contact) error
	GetContact(ctx context.Context, clientID, id string) (*contact.Contact, error)
	ListContacts(ctx context.Context, clientID string, f contact.ListFilter) ([]contact.Contact, int, error)
	UpdateContact(ctx context.Context, c *contact.Contact) error
	DeleteContact(ctx context.Context, clientID, id string) error

	// Agents and folders
	CreateAgent(ctx context.Context, a *agent.Agent) error
	GetAgent(ctx context.Context, clientID, id string) (*agent.Agent, error)
	GetAgentAnyClient(ctx context.Context, id string) (*agent.Agent, error)
	ListAgents(ctx context.Context, clientID string, folderID *string, page, limit int) ([]agent.Agent, int, error)
	UpdateAgent(ctx context.Context, a *agent.Agent) error
	DeleteAgent(ctx context.Context, clientID, id string) error
	CreateFolder(ctx context.Context, f *agent.Folder) error
	GetFolder(ctx context.Context, clientID, id string) (*agent.Folder, error)
	ListFolders(ctx context.Context, clientID string) ([]agent.Folder, error)
	UpdateFolder(ctx context.Context, f *agent.Folder) error
	DeleteFolder(ctx context.Context, clientID, id string) error
	AssignAgentFolder(ctx context.Context, clientID, agentID string, folderID *string) error

	// MCP servers
	CreateMCPServer(ctx context.Context, srv *mcp.Server) error
	GetMCPServer(ctx context.Context, id string) (*mcp.Server, error)
	ListMCPServers(ctx context.Context) ([]mcp.Server, error)
	UpdateMCPServer(ctx context.Context, srv *mcp.Server) error
	DeleteMCPServer(ctx context.Context, id string) error
	UpdateMCPServerStatus(ctx context.Context, id string, status mcp.ServerStatus) error
	UpsertMCPServerTools(ctx context.Context, serverID string, tools []mcp.ServerTool) error
	ListMCPServerTools(ctx context.Context, serverID string) ([]mcp.ServerTool, error)

	// Tools
	CreateTool(ctx context.Context, t *tool.Tool) error
	GetTool(ctx context.Context, id string) (*tool.Tool, error)
	ListTools(ctx context.Context, page, limit int) ([]tool.Tool, int, error)
	UpdateTool(ctx context.Context, t *tool.Tool) error
	DeleteTool(ctx context.Context, id string) error

	// Audit log
	AppendAudit(ctx context.Context, e *audit.Entry) error
	ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error)

	// Sessions
	CreateSession(ctx context.Context, sess *session.Session) error
	GetSession(ctx context.Context, appName, userID, id string, maxEvents int, after *time.Time) (*session.Session, error)
	ListSessions(ctx context.Context, appName, userID string) ([]session.Session, error)
	DeleteSession(ctx context.Context, appName, userID, id string) error
	AppendEvent(ctx context.Context, ev *session.Event) error
}
