package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/engine"
	magnushttp "github.com/victorgrein/magnus-ai-sub001/internal/adapter/http"
	"github.com/victorgrein/magnus-ai-sub001/internal/config"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
	agentdom "github.com/victorgrein/magnus-ai-sub001/internal/domain/agent"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/audit"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/chat"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/session"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/database"
	"github.com/victorgrein/magnus-ai-sub001/internal/resilience"
	"github.com/victorgrein/magnus-ai-sub001/internal/service"
)

// mockStore implements the slice of database.Store these endpoint tests
// exercise. The embedded interface panics on anything unimplemented, which
// is exactly what a handler reaching outside its tested path should do.
type mockStore struct {
	database.Store

	users         map[string]*user.User
	refreshTokens map[string]*user.RefreshToken
	agents        map[string]*agentdom.Agent
	sessions      map[string]*session.Session
	events        []session.Event
	audits        []audit.Entry
}

func newMockStore() *mockStore {
	return &mockStore{
		users:         map[string]*user.User{},
		refreshTokens: map[string]*user.RefreshToken{},
		agents:        map[string]*agentdom.Agent{},
		sessions:      map[string]*session.Session{},
	}
}

func sessionKey(appName, userID, id string) string {
	return appName + "|" + userID + "|" + id
}

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("user exists: %w", domain.ErrConflict)
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockStore) GetUser(_ context.Context, id string) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *mockStore) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
}

func (m *mockStore) UpdateUser(_ context.Context, u *user.User) error {
	if _, ok := m.users[u.ID]; !ok {
		return fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockStore) CreateRefreshToken(_ context.Context, rt *user.RefreshToken) error {
	m.refreshTokens[rt.TokenHash] = rt
	return nil
}

func (m *mockStore) IsTokenRevoked(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (m *mockStore) CreateAgent(_ context.Context, a *agentdom.Agent) error {
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *mockStore) GetAgent(_ context.Context, clientID, id string) (*agentdom.Agent, error) {
	a, ok := m.agents[id]
	if !ok || a.ClientID != clientID {
		return nil, fmt.Errorf("agent: %w", domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *mockStore) GetAgentAnyClient(_ context.Context, id string) (*agentdom.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent: %w", domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *mockStore) ListAgents(_ context.Context, clientID string, _ *string, _, _ int) ([]agentdom.Agent, int, error) {
	var out []agentdom.Agent
	for _, a := range m.agents {
		if a.ClientID == clientID {
			out = append(out, *a)
		}
	}
	return out, len(out), nil
}

func (m *mockStore) DeleteAgent(_ context.Context, clientID, id string) error {
	a, ok := m.agents[id]
	if !ok || a.ClientID != clientID {
		return fmt.Errorf("agent: %w", domain.ErrNotFound)
	}
	delete(m.agents, id)
	return nil
}

func (m *mockStore) CreateSession(_ context.Context, s *session.Session) error {
	key := sessionKey(s.AppName, s.UserID, s.ID)
	if _, ok := m.sessions[key]; ok {
		return fmt.Errorf("session: %w", domain.ErrConflict)
	}
	cp := *s
	m.sessions[key] = &cp
	return nil
}

func (m *mockStore) GetSession(_ context.Context, appName, userID, id string, maxEvents int, _ *time.Time) (*session.Session, error) {
	s, ok := m.sessions[sessionKey(appName, userID, id)]
	if !ok {
		return nil, fmt.Errorf("session: %w", domain.ErrNotFound)
	}
	cp := *s
	for _, ev := range m.events {
		if ev.AppName == appName && ev.UserID == userID && ev.SessionID == id {
			cp.Events = append(cp.Events, ev)
		}
	}
	if maxEvents > 0 && len(cp.Events) > maxEvents {
		cp.Events = cp.Events[len(cp.Events)-maxEvents:]
	}
	return &cp, nil
}

func (m *mockStore) AppendEvent(_ context.Context, ev *session.Event) error {
	if _, ok := m.sessions[sessionKey(ev.AppName, ev.UserID, ev.SessionID)]; !ok {
		return fmt.Errorf("session: %w", domain.ErrNotFound)
	}
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockStore) AppendAudit(_ context.Context, e *audit.Entry) error {
	m.audits = append(m.audits, *e)
	return nil
}

func (m *mockStore) ListAudit(_ context.Context, _ audit.Filter) ([]audit.Entry, int, error) {
	return m.audits, len(m.audits), nil
}

// stubEngine satisfies service.EngineClient with a canned reply.
type stubEngine struct {
	reply string
	err   error
}

func (e *stubEngine) Send(context.Context, string, string, string) (*engine.Reply, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &engine.Reply{Message: e.reply}, nil
}

func (e *stubEngine) Stream(_ context.Context, _, _, _ string, fn func(string, json.RawMessage) error) error {
	if e.err != nil {
		return e.err
	}
	return fn(e.reply, nil)
}

const engineCallbackSecret = "cb-secret"

type testEnv struct {
	store  *mockStore
	engine *stubEngine
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMockStore()
	authCfg := &config.Auth{
		JWTSecret:        "0123456789abcdef0123456789abcdef",
		AccessTTL:        time.Minute,
		RefreshTTL:       time.Hour,
		LockoutThreshold: 3,
		LockoutDuration:  time.Hour,
		BcryptCost:       bcrypt.MinCost,
	}

	authSvc := service.NewAuthService(store, authCfg, nil)
	agents := service.NewAgentService(store, nil, 0)
	auditSvc := service.NewAuditService(store)
	sessions := service.NewSessionService(store)
	breaker := resilience.NewBreaker(3, time.Minute)
	eng := &stubEngine{reply: "hello from the agent"}
	chatSvc := service.NewChatService(store, agents, eng, breaker, nil, nil, config.Engine{BaseURL: "http://engine:9000"})

	h := magnushttp.NewHandlers(
		authSvc,
		service.NewClientService(store, bcrypt.MinCost),
		service.NewContactService(store),
		agents,
		service.NewMCPService(store, nil, nil),
		service.NewToolService(store),
		auditSvc,
		sessions,
		chatSvc,
		nil,
		nil,
	)

	r := chi.NewRouter()
	r.Use(middleware.Auth(authSvc))
	magnushttp.MountRoutes(r, h, config.Webhook{EngineSecret: engineCallbackSecret}, nil, nil)

	return &testEnv{store: store, engine: eng, router: r}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

// register creates an account through the public endpoint and logs in,
// returning the access token. With no mailer wired the account starts
// verified.
func (env *testEnv) register(t *testing.T, email string, clientID *string, admin bool) string {
	t.Helper()

	reg := map[string]any{
		"email":    email,
		"name":     "Test User",
		"password": "str0ngpassword",
	}
	if clientID != nil {
		reg["client_id"] = *clientID
	}
	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", reg)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Admin accounts cannot be minted through the public endpoint, flip the
	// flag in the store the way a migration seed would.
	if admin {
		for _, u := range env.store.users {
			if u.Email == email {
				u.IsAdmin = true
				u.ClientID = nil
			}
		}
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "str0ngpassword",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp user.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("login response missing access token")
	}
	return resp.AccessToken
}

func strPtr(s string) *string { return &s }

func TestRegisterLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "alice@example.com", strPtr("client-1"), false)

	rec := env.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", rec.Code, rec.Body.String())
	}
	var me user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if me.Email != "alice@example.com" {
		t.Errorf("me.Email = %q, want alice@example.com", me.Email)
	}
	if me.ClientID == nil || *me.ClientID != "client-1" {
		t.Errorf("me.ClientID = %v, want client-1", me.ClientID)
	}
}

func TestMissingTokenRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/agents", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRegisterCannotMintAdmin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":     "sneaky@example.com",
		"name":      "Sneaky",
		"password":  "str0ngpassword",
		"is_admin":  true,
		"client_id": "client-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}

	for _, u := range env.store.users {
		if u.Email == "sneaky@example.com" && u.IsAdmin {
			t.Fatal("public registration produced an admin account")
		}
	}
}

func TestAdminRouteForbiddenForRegularUser(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "bob@example.com", strPtr("client-1"), false)

	rec := env.do(t, http.MethodGet, "/api/v1/audit", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("audit status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/tools", token, map[string]string{"name": "t"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tool create status = %d, want 403", rec.Code)
	}
}

func TestAgentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "carol@example.com", strPtr("client-1"), false)

	rec := env.do(t, http.MethodPost, "/api/v1/agents", token, map[string]any{
		"name":        "support",
		"type":        "llm",
		"model":       "gpt-4.1",
		"instruction": "be helpful",
		"config":      map[string]any{"api_key": "sk-secret", "tools": []string{"search"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created agentdom.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode agent: %v", err)
	}
	if created.ClientID != "client-1" {
		t.Errorf("ClientID = %q, want client-1", created.ClientID)
	}
	if strings.Contains(string(created.Config), "sk-secret") {
		t.Error("api_key leaked into the create response")
	}

	rec = env.do(t, http.MethodGet, "/api/v1/agents/"+created.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "sk-secret") {
		t.Error("api_key leaked into the read response")
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/agents/"+created.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	var recorded []string
	for _, e := range env.store.audits {
		recorded = append(recorded, e.Action)
	}
	wantActions := map[string]bool{"agent.create": false, "agent.delete": false}
	for _, a := range recorded {
		if _, ok := wantActions[a]; ok {
			wantActions[a] = true
		}
	}
	for action, seen := range wantActions {
		if !seen {
			t.Errorf("audit action %q not recorded, got %v", action, recorded)
		}
	}
}

func TestAgentInvisibleAcrossClients(t *testing.T) {
	env := newTestEnv(t)
	ownerToken := env.register(t, "owner@example.com", strPtr("client-1"), false)
	otherToken := env.register(t, "other@example.com", strPtr("client-2"), false)

	rec := env.do(t, http.MethodPost, "/api/v1/agents", ownerToken, map[string]any{
		"name":        "support",
		"type":        "llm",
		"model":       "gpt-4.1",
		"instruction": "be helpful",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created agentdom.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode agent: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/agents/"+created.ID, otherToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-client get status = %d, want 404", rec.Code)
	}
}

func TestChatTurn(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "dave@example.com", strPtr("client-1"), false)

	rec := env.do(t, http.MethodPost, "/api/v1/agents", token, map[string]any{
		"name":        "support",
		"type":        "llm",
		"model":       "gpt-4.1",
		"instruction": "be helpful",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create agent status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created agentdom.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode agent: %v", err)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/chat", token, chat.Request{
		AgentID:    created.ID,
		ExternalID: "+551199999999",
		Message:    "hi",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp chat.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	wantSession := "+551199999999_" + created.ID
	if resp.SessionID != wantSession {
		t.Errorf("SessionID = %q, want %q", resp.SessionID, wantSession)
	}
	if resp.Message != "hello from the agent" {
		t.Errorf("Message = %q", resp.Message)
	}

	// The turn leaves both sides of the exchange in the session history.
	path := "/api/v1/sessions/" + created.ID + "/+551199999999/" + wantSession
	rec = env.do(t, http.MethodGet, path, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session get status = %d, body %s", rec.Code, rec.Body.String())
	}
	var sess session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(sess.Events) != 2 {
		t.Fatalf("session events = %d, want 2", len(sess.Events))
	}
}

func TestChatValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "erin@example.com", strPtr("client-1"), false)

	rec := env.do(t, http.MethodPost, "/api/v1/chat", token, chat.Request{Message: "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("chat status = %d, want 400", rec.Code)
	}
}

func TestChatEngineStatusMapping(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "grace@example.com", strPtr("client-1"), false)

	rec := env.do(t, http.MethodPost, "/api/v1/agents", token, map[string]any{
		"name":        "support",
		"type":        "llm",
		"model":       "gpt-4.1",
		"instruction": "be helpful",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create agent status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created agentdom.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode agent: %v", err)
	}
	req := chat.Request{AgentID: created.ID, ExternalID: "ext-1", Message: "hi"}

	env.engine.err = fmt.Errorf("engine send: %w", context.DeadlineExceeded)
	rec = env.do(t, http.MethodPost, "/api/v1/chat", token, req)
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("timed-out turn status = %d, want 504", rec.Code)
	}

	env.engine.err = fmt.Errorf("engine send: connection refused")
	rec = env.do(t, http.MethodPost, "/api/v1/chat", token, req)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("failed turn status = %d, want 502", rec.Code)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "frank@example.com", strPtr("client-1"), false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEngineCallbackSignature(t *testing.T) {
	env := newTestEnv(t)

	env.store.sessions[sessionKey("agent-1", "ext-1", "ext-1_agent-1")] = &session.Session{
		AppName: "agent-1",
		UserID:  "ext-1",
		ID:      "ext-1_agent-1",
	}
	body, _ := json.Marshal(session.Event{
		AppName:   "agent-1",
		UserID:    "ext-1",
		SessionID: "ext-1_agent-1",
		Author:    "engine",
	})

	// Unsigned request is rejected before it reaches the handler.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/webhooks/engine", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/chat/webhooks/engine", bytes.NewReader(body))
	req.Header.Set("X-Magnus-Signature-256", middleware.SignHMAC(body, engineCallbackSecret))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signed status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(env.store.events) != 1 {
		t.Fatalf("events = %d, want 1", len(env.store.events))
	}
}
