package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/agent"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/audit"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/client"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/contact"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/mcp"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/session"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/tool"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
)

// fakeStore is an in-memory database.Store for service tests.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]*user.User
	refreshTokens map[string]*user.RefreshToken // by hash
	revoked       map[string]time.Time
	apiKeys       map[string]*user.APIKey // by hash
	clients       map[string]*client.Client
	contacts      map[string]*contact.Contact
	agents        map[string]*agent.Agent
	folders       map[string]*agent.Folder
	mcpServers    map[string]*mcp.Server
	mcpTools      map[string][]mcp.ServerTool
	tools         map[string]*tool.Tool
	audits        []audit.Entry
	sessions      map[string]*session.Session
	events        map[string][]session.Event
	tokens        map[string]fakeToken // verification and reset tokens

	revocationErr error
}

type fakeToken struct {
	userID string
	expiry time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]*user.User),
		refreshTokens: make(map[string]*user.RefreshToken),
		revoked:       make(map[string]time.Time),
		apiKeys:       make(map[string]*user.APIKey),
		clients:       make(map[string]*client.Client),
		contacts:      make(map[string]*contact.Contact),
		agents:        make(map[string]*agent.Agent),
		folders:       make(map[string]*agent.Folder),
		mcpServers:    make(map[string]*mcp.Server),
		mcpTools:      make(map[string][]mcp.ServerTool),
		tools:         make(map[string]*tool.Tool),
		sessions:      make(map[string]*session.Session),
		events:        make(map[string][]session.Event),
		tokens:        make(map[string]fakeToken),
	}
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
}

func sessionKey(appName, userID, id string) string {
	return appName + "|" + userID + "|" + id
}

// --- Users ---

func (f *fakeStore) CreateUser(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("create user: %w", domain.ErrConflict)
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, notFound("get user")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFound("get user by email")
}

func (f *fakeStore) ListUsers(_ context.Context, _, _ int) ([]user.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]user.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeStore) UpdateUser(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return notFound("update user")
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return notFound("delete user")
	}
	delete(f.users, id)
	return nil
}

func (f *fakeStore) CountUsersByClient(_ context.Context, clientID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.users {
		if u.ClientID != nil && *u.ClientID == clientID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) SetVerificationToken(_ context.Context, userID, token string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return notFound("set verification token")
	}
	f.tokens["verify:"+token] = fakeToken{userID: userID, expiry: expiry}
	return nil
}

func (f *fakeStore) takeToken(key string) (string, bool) {
	t, ok := f.tokens[key]
	if !ok || time.Now().After(t.expiry) {
		return "", false
	}
	delete(f.tokens, key)
	return t.userID, true
}

func (f *fakeStore) ConsumeVerificationToken(_ context.Context, token string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.takeToken("verify:" + token)
	if !ok {
		return nil, notFound("consume verification token")
	}
	u := f.users[userID]
	u.EmailVerified = true
	cp := *u
	return &cp, nil
}

func (f *fakeStore) SetPasswordResetToken(_ context.Context, userID, token string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return notFound("set reset token")
	}
	f.tokens["reset:"+token] = fakeToken{userID: userID, expiry: expiry}
	return nil
}

func (f *fakeStore) ConsumePasswordResetToken(_ context.Context, token, newHash string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.takeToken("reset:" + token)
	if !ok {
		return nil, notFound("consume reset token")
	}
	u := f.users[userID]
	u.PasswordHash = newHash
	u.FailedLogins = 0
	u.LockedUntil = nil
	cp := *u
	return &cp, nil
}

// --- Refresh tokens ---

func (f *fakeStore) CreateRefreshToken(_ context.Context, rt *user.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rt
	f.refreshTokens[rt.TokenHash] = &cp
	return nil
}

func (f *fakeStore) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*user.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.refreshTokens[tokenHash]
	if !ok {
		return nil, notFound("get refresh token")
	}
	cp := *rt
	return &cp, nil
}

func (f *fakeStore) DeleteRefreshToken(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, rt := range f.refreshTokens {
		if rt.ID == id {
			delete(f.refreshTokens, hash)
			return nil
		}
	}
	return notFound("delete refresh token")
}

func (f *fakeStore) DeleteRefreshTokensByUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, rt := range f.refreshTokens {
		if rt.UserID == userID {
			delete(f.refreshTokens, hash)
		}
	}
	return nil
}

func (f *fakeStore) RotateRefreshToken(_ context.Context, oldTokenHash string, newRT *user.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.refreshTokens[oldTokenHash]; !ok {
		return notFound("rotate refresh token")
	}
	delete(f.refreshTokens, oldTokenHash)
	cp := *newRT
	f.refreshTokens[newRT.TokenHash] = &cp
	return nil
}

func (f *fakeStore) PurgeExpiredRefreshTokens(_ context.Context) (int64, error) {
	return 0, nil
}

// --- Token revocation ---

func (f *fakeStore) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = expiresAt
	return nil
}

func (f *fakeStore) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revocationErr != nil {
		return false, f.revocationErr
	}
	_, ok := f.revoked[jti]
	return ok, nil
}

func (f *fakeStore) PurgeExpiredTokens(_ context.Context) (int64, error) {
	return 0, nil
}

// --- API keys ---

func (f *fakeStore) CreateAPIKey(_ context.Context, key *user.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *key
	f.apiKeys[key.KeyHash] = &cp
	return nil
}

func (f *fakeStore) GetAPIKeyByHash(_ context.Context, keyHash string) (*user.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.apiKeys[keyHash]
	if !ok {
		return nil, notFound("get api key")
	}
	cp := *k
	return &cp, nil
}

func (f *fakeStore) ListAPIKeysByUser(_ context.Context, userID string) ([]user.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []user.APIKey
	for _, k := range f.apiKeys {
		if k.UserID == userID {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteAPIKey(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, k := range f.apiKeys {
		if k.ID == id && k.UserID == userID {
			delete(f.apiKeys, hash)
			return nil
		}
	}
	return notFound("delete api key")
}

// --- Clients ---

func (f *fakeStore) CreateClientWithUser(_ context.Context, c *client.Client, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ccp := *c
	ucp := *u
	f.clients[c.ID] = &ccp
	f.users[u.ID] = &ucp
	return nil
}

func (f *fakeStore) GetClient(_ context.Context, id string) (*client.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return nil, notFound("get client")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) ListClients(_ context.Context, _, _ int) ([]client.Client, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]client.Client, 0, len(f.clients))
	for _, c := range f.clients {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (f *fakeStore) UpdateClient(_ context.Context, c *client.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c.ID]; !ok {
		return notFound("update client")
	}
	cp := *c
	f.clients[c.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteClient(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ClientID != nil && *u.ClientID == id {
			return fmt.Errorf("delete client: %w", domain.ErrConflict)
		}
	}
	if _, ok := f.clients[id]; !ok {
		return notFound("delete client")
	}
	delete(f.clients, id)
	return nil
}

// --- Contacts ---

func (f *fakeStore) CreateContact(_ context.Context, c *contact.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.contacts[c.ID] = &cp
	return nil
}

func (f *fakeStore) GetContact(_ context.Context, clientID, id string) (*contact.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[id]
	if !ok || c.ClientID != clientID {
		return nil, notFound("get contact")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) ListContacts(_ context.Context, clientID string, _ contact.ListFilter) ([]contact.Contact, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []contact.Contact
	for _, c := range f.contacts {
		if c.ClientID == clientID {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) UpdateContact(_ context.Context, c *contact.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.contacts[c.ID]
	if !ok || existing.ClientID != c.ClientID {
		return notFound("update contact")
	}
	cp := *c
	f.contacts[c.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteContact(_ context.Context, clientID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[id]
	if !ok || c.ClientID != clientID {
		return notFound("delete contact")
	}
	delete(f.contacts, id)
	return nil
}

// --- Agents and folders ---

func (f *fakeStore) CreateAgent(_ context.Context, a *agent.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.Version = 1
	cp := *a
	f.agents[a.ID] = &cp
	return nil
}

func (f *fakeStore) GetAgent(_ context.Context, clientID, id string) (*agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok || a.ClientID != clientID {
		return nil, notFound("get agent")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) GetAgentAnyClient(_ context.Context, id string) (*agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return nil, notFound("get agent")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ListAgents(_ context.Context, clientID string, _ *string, _, _ int) ([]agent.Agent, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []agent.Agent
	for _, a := range f.agents {
		if a.ClientID == clientID {
			out = append(out, *a)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) UpdateAgent(_ context.Context, a *agent.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.agents[a.ID]
	if !ok {
		return notFound("update agent")
	}
	if existing.Version != a.Version {
		return fmt.Errorf("update agent: stale version: %w", domain.ErrConflict)
	}
	cp := *a
	cp.Version++
	f.agents[a.ID] = &cp
	a.Version = cp.Version
	return nil
}

func (f *fakeStore) DeleteAgent(_ context.Context, clientID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok || a.ClientID != clientID {
		return notFound("delete agent")
	}
	delete(f.agents, id)
	return nil
}

func (f *fakeStore) CreateFolder(_ context.Context, fl *agent.Folder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *fl
	f.folders[fl.ID] = &cp
	return nil
}

func (f *fakeStore) GetFolder(_ context.Context, clientID, id string) (*agent.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.folders[id]
	if !ok || fl.ClientID != clientID {
		return nil, notFound("get folder")
	}
	cp := *fl
	return &cp, nil
}

func (f *fakeStore) ListFolders(_ context.Context, clientID string) ([]agent.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []agent.Folder
	for _, fl := range f.folders {
		if fl.ClientID == clientID {
			out = append(out, *fl)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateFolder(_ context.Context, fl *agent.Folder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.folders[fl.ID]; !ok {
		return notFound("update folder")
	}
	cp := *fl
	f.folders[fl.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteFolder(_ context.Context, clientID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.folders[id]
	if !ok || fl.ClientID != clientID {
		return notFound("delete folder")
	}
	delete(f.folders, id)
	return nil
}

func (f *fakeStore) AssignAgentFolder(_ context.Context, clientID, agentID string, folderID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentID]
	if !ok || a.ClientID != clientID {
		return notFound("assign agent folder")
	}
	a.FolderID = folderID
	return nil
}

// --- MCP servers ---

func (f *fakeStore) CreateMCPServer(_ context.Context, srv *mcp.Server) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *srv
	f.mcpServers[srv.ID] = &cp
	return nil
}

func (f *fakeStore) GetMCPServer(_ context.Context, id string) (*mcp.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	srv, ok := f.mcpServers[id]
	if !ok {
		return nil, notFound("get mcp server")
	}
	cp := *srv
	return &cp, nil
}

func (f *fakeStore) ListMCPServers(_ context.Context) ([]mcp.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []mcp.Server
	for _, srv := range f.mcpServers {
		out = append(out, *srv)
	}
	return out, nil
}

func (f *fakeStore) UpdateMCPServer(_ context.Context, srv *mcp.Server) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.mcpServers[srv.ID]; !ok {
		return notFound("update mcp server")
	}
	cp := *srv
	f.mcpServers[srv.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteMCPServer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.mcpServers[id]; !ok {
		return notFound("delete mcp server")
	}
	delete(f.mcpServers, id)
	delete(f.mcpTools, id)
	return nil
}

func (f *fakeStore) UpdateMCPServerStatus(_ context.Context, id string, status mcp.ServerStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	srv, ok := f.mcpServers[id]
	if !ok {
		return notFound("update mcp status")
	}
	srv.Status = status
	now := time.Now()
	srv.LastHealthCheck = &now
	return nil
}

func (f *fakeStore) UpsertMCPServerTools(_ context.Context, serverID string, tools []mcp.ServerTool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mcpTools[serverID] = tools
	return nil
}

func (f *fakeStore) ListMCPServerTools(_ context.Context, serverID string) ([]mcp.ServerTool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mcpTools[serverID], nil
}

// --- Tools ---

func (f *fakeStore) CreateTool(_ context.Context, t *tool.Tool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tools[t.ID] = &cp
	return nil
}

func (f *fakeStore) GetTool(_ context.Context, id string) (*tool.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tools[id]
	if !ok {
		return nil, notFound("get tool")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListTools(_ context.Context, _, _ int) ([]tool.Tool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tool.Tool
	for _, t := range f.tools {
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (f *fakeStore) UpdateTool(_ context.Context, t *tool.Tool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tools[t.ID]; !ok {
		return notFound("update tool")
	}
	cp := *t
	f.tools[t.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteTool(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tools[id]; !ok {
		return notFound("delete tool")
	}
	delete(f.tools, id)
	return nil
}

// --- Audit ---

func (f *fakeStore) AppendAudit(_ context.Context, e *audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.CreatedAt = time.Now()
	f.audits = append(f.audits, *e)
	return nil
}

func (f *fakeStore) ListAudit(_ context.Context, _ audit.Filter) ([]audit.Entry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audit.Entry, len(f.audits))
	copy(out, f.audits)
	return out, len(out), nil
}

// --- Sessions ---

func (f *fakeStore) CreateSession(_ context.Context, sess *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey(sess.AppName, sess.UserID, sess.ID)
	if _, ok := f.sessions[key]; ok {
		return fmt.Errorf("create session: %w", domain.ErrConflict)
	}
	cp := *sess
	cp.CreateTime = time.Now()
	cp.UpdateTime = cp.CreateTime
	f.sessions[key] = &cp
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, appName, userID, id string, maxEvents int, _ *time.Time) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey(appName, userID, id)
	sess, ok := f.sessions[key]
	if !ok {
		return nil, notFound("get session")
	}
	cp := *sess
	events := f.events[key]
	if maxEvents > 0 && len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	cp.Events = append([]session.Event(nil), events...)
	return &cp, nil
}

func (f *fakeStore) ListSessions(_ context.Context, appName, userID string) ([]session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []session.Session
	for _, sess := range f.sessions {
		if sess.AppName == appName && sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, appName, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey(appName, userID, id)
	if _, ok := f.sessions[key]; !ok {
		return notFound("delete session")
	}
	delete(f.sessions, key)
	delete(f.events, key)
	return nil
}

func (f *fakeStore) AppendEvent(_ context.Context, ev *session.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey(ev.AppName, ev.UserID, ev.SessionID)
	sess, ok := f.sessions[key]
	if !ok {
		return notFound("append event")
	}
	_, _, sessionDelta := session.SplitDelta(ev.Actions.StateDelta)
	sess.State = sess.State.Apply(sessionDelta)
	sess.UpdateTime = time.Now()
	f.events[key] = append(f.events[key], *ev)
	return nil
}
