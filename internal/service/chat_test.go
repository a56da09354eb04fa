package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/engine"
	"github.com/victorgrein/magnus-ai-sub001/internal/config"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
	agentdom "github.com/victorgrein/magnus-ai-sub001/internal/domain/agent"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/chat"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/session"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/messagequeue"
	"github.com/victorgrein/magnus-ai-sub001/internal/resilience"
)

type fakeEngine struct {
	reply   string
	deltas  []string
	err     error
	lastURL string
}

func (f *fakeEngine) Send(_ context.Context, cardURL, _, _ string) (*engine.Reply, error) {
	f.lastURL = cardURL
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Reply{Message: f.reply}, nil
}

func (f *fakeEngine) Stream(_ context.Context, cardURL, _, _ string, fn func(delta string, raw json.RawMessage) error) error {
	f.lastURL = cardURL
	if f.err != nil {
		return f.err
	}
	for _, d := range f.deltas {
		if err := fn(d, nil); err != nil {
			return err
		}
	}
	return nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{published: map[string][][]byte{}}
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

type broadcastCall struct {
	clientID  string
	eventType string
}

type fakeHub struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (h *fakeHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, broadcastCall{eventType: eventType})
}

func (h *fakeHub) BroadcastEventToClient(_ context.Context, clientID, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, broadcastCall{clientID: clientID, eventType: eventType})
}

func (h *fakeHub) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	for i, c := range h.calls {
		out[i] = c.eventType
	}
	return out
}

type chatFixture struct {
	store  *fakeStore
	engine *fakeEngine
	queue  *fakeQueue
	hub    *fakeHub
	svc    *ChatService
	agent  *agentdom.Agent
}

func newChatFixture(t *testing.T, agentConfig string) *chatFixture {
	t.Helper()
	store := newFakeStore()
	eng := &fakeEngine{reply: "hello from the agent"}
	queue := newFakeQueue()
	hub := &fakeHub{}

	a := &agentdom.Agent{
		ID:          "agent-1",
		ClientID:    "client-1",
		Name:        "support",
		Type:        agentdom.TypeLLM,
		Model:       "gpt-4o",
		Instruction: "be helpful",
	}
	if agentConfig != "" {
		a.Config = json.RawMessage(agentConfig)
	}
	if err := store.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}

	agents := NewAgentService(store, nil, 0)
	breaker := resilience.NewBreaker(3, time.Minute)
	svc := NewChatService(store, agents, eng, breaker, queue, hub, config.Engine{
		BaseURL: "http://engine:9000",
	})
	return &chatFixture{store: store, engine: eng, queue: queue, hub: hub, svc: svc, agent: a}
}

func clientClaims(clientID string) *user.TokenClaims {
	return &user.TokenClaims{UserID: "user-1", ClientID: &clientID}
}

func TestSendMessage(t *testing.T) {
	fx := newChatFixture(t, "")

	resp, err := fx.svc.SendMessage(context.Background(), clientClaims("client-1"), &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "+551199999999",
		Message:    "hi",
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	wantSession := "+551199999999_agent-1"
	if resp.SessionID != wantSession {
		t.Errorf("SessionID = %q, want %q", resp.SessionID, wantSession)
	}
	if resp.Message != "hello from the agent" {
		t.Errorf("Message = %q, want %q", resp.Message, "hello from the agent")
	}

	// One session, two events: the user turn and the agent turn.
	sess, err := fx.store.GetSession(context.Background(), "agent-1", "+551199999999", wantSession, 0, nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(sess.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(sess.Events))
	}
	if sess.Events[0].Author != "user" {
		t.Errorf("first event author = %q, want user", sess.Events[0].Author)
	}
	if sess.Events[1].Author != "support" {
		t.Errorf("second event author = %q, want support", sess.Events[1].Author)
	}

	types := fx.hub.eventTypes()
	if len(types) != 1 || types[0] != "chat.done" {
		t.Errorf("broadcasts = %v, want [chat.done]", types)
	}
}

func TestSendMessageReusesSession(t *testing.T) {
	fx := newChatFixture(t, "")
	claims := clientClaims("client-1")

	for i := 0; i < 2; i++ {
		if _, err := fx.svc.SendMessage(context.Background(), claims, &chat.Request{
			AgentID:    "agent-1",
			ExternalID: "ext-1",
			Message:    fmt.Sprintf("turn %d", i),
		}); err != nil {
			t.Fatalf("turn %d: SendMessage() error = %v", i, err)
		}
	}

	sessions, err := fx.store.ListSessions(context.Background(), "agent-1", "ext-1")
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}

	sess, err := fx.store.GetSession(context.Background(), "agent-1", "ext-1", SessionID("ext-1", "agent-1"), 0, nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(sess.Events) != 4 {
		t.Errorf("events = %d, want 4", len(sess.Events))
	}
}

func TestSendMessageForeignClientAgent(t *testing.T) {
	fx := newChatFixture(t, "")

	_, err := fx.svc.SendMessage(context.Background(), clientClaims("client-2"), &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SendMessage() error = %v, want ErrNotFound", err)
	}
}

func TestSendMessageAdminBypassesClientScope(t *testing.T) {
	fx := newChatFixture(t, "")

	if _, err := fx.svc.SendMessage(context.Background(), &user.TokenClaims{UserID: "admin", IsAdmin: true}, &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	}); err != nil {
		t.Errorf("SendMessage() error = %v", err)
	}
}

func TestSendMessageEngineDown(t *testing.T) {
	fx := newChatFixture(t, "")
	fx.engine.err = errors.New("connection refused")

	_, err := fx.svc.SendMessage(context.Background(), clientClaims("client-1"), &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	})
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("SendMessage() error = %v, want ErrEngineUnavailable", err)
	}

	types := fx.hub.eventTypes()
	if len(types) != 1 || types[0] != "chat.error" {
		t.Errorf("broadcasts = %v, want [chat.error]", types)
	}

	// The failed turn is persisted: the user event plus an error event.
	sess, err := fx.store.GetSession(context.Background(), "agent-1", "ext-1", SessionID("ext-1", "agent-1"), 0, nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(sess.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(sess.Events))
	}
	last := sess.Events[1]
	if last.ErrorCode == "" || last.ErrorMessage == "" {
		t.Errorf("error event = %+v, want error_code and error_message set", last)
	}
}

func TestSendMessageEngineTimeout(t *testing.T) {
	fx := newChatFixture(t, "")
	fx.engine.err = fmt.Errorf("engine send: %w", context.DeadlineExceeded)

	_, err := fx.svc.SendMessage(context.Background(), clientClaims("client-1"), &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	})
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("SendMessage() error = %v, want ErrEngineUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("SendMessage() error = %v, want DeadlineExceeded preserved in the chain", err)
	}
}

func TestSendMessageTripsBreaker(t *testing.T) {
	fx := newChatFixture(t, "")
	fx.engine.err = errors.New("connection refused")
	claims := clientClaims("client-1")
	req := &chat.Request{AgentID: "agent-1", ExternalID: "ext-1", Message: "hi"}

	for i := 0; i < 3; i++ {
		if _, err := fx.svc.SendMessage(context.Background(), claims, req); !errors.Is(err, ErrEngineUnavailable) {
			t.Fatalf("attempt %d: error = %v, want ErrEngineUnavailable", i+1, err)
		}
	}

	_, err := fx.svc.SendMessage(context.Background(), claims, req)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("SendMessage() with open breaker error = %v, want ErrCircuitOpen", err)
	}
}

func TestSendMessageEnqueuesWebhook(t *testing.T) {
	fx := newChatFixture(t, `{"webhook_url":"https://example.com/hook"}`)

	if _, err := fx.svc.SendMessage(context.Background(), clientClaims("client-1"), &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	jobs := fx.queue.published[messagequeue.SubjectWebhookDeliver]
	if len(jobs) != 1 {
		t.Fatalf("webhook jobs = %d, want 1", len(jobs))
	}

	var job messagequeue.WebhookDeliverPayload
	if err := json.Unmarshal(jobs[0], &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if job.URL != "https://example.com/hook" {
		t.Errorf("job.URL = %q, want %q", job.URL, "https://example.com/hook")
	}
	if job.AgentID != "agent-1" {
		t.Errorf("job.AgentID = %q, want agent-1", job.AgentID)
	}
	if job.DeliveryID == "" {
		t.Error("job.DeliveryID is empty")
	}
}

func TestSendMessageNoWebhookConfigured(t *testing.T) {
	fx := newChatFixture(t, "")

	if _, err := fx.svc.SendMessage(context.Background(), clientClaims("client-1"), &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if n := len(fx.queue.published[messagequeue.SubjectWebhookDeliver]); n != 0 {
		t.Errorf("webhook jobs = %d, want 0", n)
	}
}

func TestSendMessageValidation(t *testing.T) {
	fx := newChatFixture(t, "")

	_, err := fx.svc.SendMessage(context.Background(), clientClaims("client-1"), &chat.Request{
		AgentID: "agent-1",
		Message: "hi",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("SendMessage() error = %v, want ErrValidation", err)
	}
}

func TestStreamMessage(t *testing.T) {
	fx := newChatFixture(t, "")
	fx.engine.deltas = []string{"hel", "lo ", "there"}

	var frames []chat.Frame
	err := fx.svc.StreamMessage(context.Background(), clientClaims("client-1"), &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	}, func(f chat.Frame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamMessage() error = %v", err)
	}

	if len(frames) != 4 {
		t.Fatalf("frames = %d, want 4", len(frames))
	}
	for i, want := range []string{"hel", "lo ", "there"} {
		if frames[i].Type != chat.FrameMessage || frames[i].Delta != want {
			t.Errorf("frame %d = %+v, want message %q", i, frames[i], want)
		}
	}
	if frames[3].Type != chat.FrameDone {
		t.Errorf("last frame type = %q, want done", frames[3].Type)
	}

	// The accumulated reply is persisted as one agent turn.
	sess, err := fx.store.GetSession(context.Background(), "agent-1", "ext-1", SessionID("ext-1", "agent-1"), 0, nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(sess.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(sess.Events))
	}
	var content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}
	if err := json.Unmarshal(sess.Events[1].Content, &content); err != nil {
		t.Fatalf("unmarshal agent turn: %v", err)
	}
	if len(content.Parts) != 1 || content.Parts[0].Text != "hello there" {
		t.Errorf("agent turn content = %+v, want text %q", content, "hello there")
	}
}

func TestStreamMessageEngineError(t *testing.T) {
	fx := newChatFixture(t, "")
	fx.engine.err = errors.New("stream reset")

	var frames []chat.Frame
	err := fx.svc.StreamMessage(context.Background(), clientClaims("client-1"), &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	}, func(f chat.Frame) error {
		frames = append(frames, f)
		return nil
	})
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("StreamMessage() error = %v, want ErrEngineUnavailable", err)
	}
	if len(frames) != 1 || frames[0].Type != chat.FrameError {
		t.Errorf("frames = %+v, want one error frame", frames)
	}

	sess, err := fx.store.GetSession(context.Background(), "agent-1", "ext-1", SessionID("ext-1", "agent-1"), 0, nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(sess.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(sess.Events))
	}
	if sess.Events[1].ErrorMessage == "" {
		t.Errorf("error event = %+v, want error_message set", sess.Events[1])
	}
}

func TestCardURLDerivation(t *testing.T) {
	fx := newChatFixture(t, "")

	if _, err := fx.svc.SendMessage(context.Background(), clientClaims("client-1"), &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	want := "http://engine:9000/v1/agents/agent-1/.well-known/agent.json"
	if fx.engine.lastURL != want {
		t.Errorf("card URL = %q, want %q", fx.engine.lastURL, want)
	}
}

func TestCardURLExplicitOverride(t *testing.T) {
	fx := newChatFixture(t, "")
	fx.agent.Type = agentdom.TypeA2A
	fx.agent.AgentCardURL = "https://other.example.com/.well-known/agent.json"
	fx.store.mu.Lock()
	fx.store.agents["agent-1"] = fx.agent
	fx.store.mu.Unlock()

	if _, err := fx.svc.SendMessage(context.Background(), clientClaims("client-1"), &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if fx.engine.lastURL != fx.agent.AgentCardURL {
		t.Errorf("card URL = %q, want %q", fx.engine.lastURL, fx.agent.AgentCardURL)
	}
}

func TestHandleEngineCallback(t *testing.T) {
	fx := newChatFixture(t, "")
	claims := clientClaims("client-1")

	if _, err := fx.svc.SendMessage(context.Background(), claims, &chat.Request{
		AgentID:    "agent-1",
		ExternalID: "ext-1",
		Message:    "hi",
	}); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	sessionID := SessionID("ext-1", "agent-1")
	ev := &session.Event{
		AppName:   "agent-1",
		UserID:    "ext-1",
		SessionID: sessionID,
		Author:    "support",
		Content:   json.RawMessage(`{"role":"model","parts":[{"text":"follow-up"}]}`),
		Timestamp: time.Now().UTC(),
	}
	if err := fx.svc.HandleEngineCallback(context.Background(), ev); err != nil {
		t.Fatalf("HandleEngineCallback() error = %v", err)
	}
	if ev.ID == "" {
		t.Error("callback event got no ID assigned")
	}

	sess, err := fx.store.GetSession(context.Background(), "agent-1", "ext-1", sessionID, 0, nil)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(sess.Events) != 3 {
		t.Errorf("events = %d, want 3", len(sess.Events))
	}
}
