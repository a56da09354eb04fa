package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/engine"
	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/ws"
	"github.com/victorgrein/magnus-ai-sub001/internal/config"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
	agentdom "github.com/victorgrein/magnus-ai-sub001/internal/domain/agent"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/chat"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/session"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/broadcast"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/database"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/messagequeue"
	"github.com/victorgrein/magnus-ai-sub001/internal/resilience"
)

// ErrEngineUnavailable marks a failure of the engine call itself, as opposed
// to a local error before or after dispatch.
var ErrEngineUnavailable = errors.New("engine unavailable")

// EngineClient dispatches chat turns over the A2A protocol.
type EngineClient interface {
	Send(ctx context.Context, cardURL, sessionID, text string) (*engine.Reply, error)
	Stream(ctx context.Context, cardURL, sessionID, text string, fn func(delta string, raw json.RawMessage) error) error
}

// ChatService forwards chat turns to the engine, persists the conversation,
// and fans the results out to webhooks and WebSocket subscribers.
type ChatService struct {
	store   database.Store
	agents  *AgentService
	engine  EngineClient
	breaker *resilience.Breaker
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	cfg     config.Engine
}

// NewChatService creates a new chat service. queue and hub may be nil.
func NewChatService(store database.Store, agents *AgentService, eng EngineClient, breaker *resilience.Breaker, queue messagequeue.Queue, hub broadcast.Broadcaster, cfg config.Engine) *ChatService {
	return &ChatService{
		store:   store,
		agents:  agents,
		engine:  eng,
		breaker: breaker,
		queue:   queue,
		hub:     hub,
		cfg:     cfg,
	}
}

// SessionID derives the stable session identifier for one external user
// talking to one agent.
func SessionID(externalID, agentID string) string {
	return externalID + "_" + agentID
}

// SendMessage runs one blocking chat turn: resolve the agent, make sure the
// session exists, record the user turn, call the engine, record the reply.
func (s *ChatService) SendMessage(ctx context.Context, claims *user.TokenClaims, req *chat.Request) (*chat.Response, error) {
	a, sessionID, err := s.prepare(ctx, claims, req)
	if err != nil {
		return nil, err
	}

	var reply *engine.Reply
	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		r, sendErr := s.engine.Send(ctx, s.cardURL(a), sessionID, req.Message)
		if sendErr != nil {
			return fmt.Errorf("%w: %w", ErrEngineUnavailable, sendErr)
		}
		reply = r
		return nil
	})
	if err != nil {
		s.recordErrorTurn(ctx, a, req.ExternalID, sessionID, err)
		s.broadcastDone(ctx, a, sessionID, "", err)
		return nil, err
	}

	s.recordAgentTurn(ctx, a, req.ExternalID, sessionID, reply.Message)
	s.enqueueWebhook(ctx, a, sessionID, reply)
	s.broadcastDone(ctx, a, sessionID, reply.Message, nil)

	return &chat.Response{
		SessionID: sessionID,
		Message:   reply.Message,
		Raw:       reply.Raw,
	}, nil
}

// StreamMessage runs a streaming chat turn, invoking fn once per frame.
// The accumulated reply is persisted as a single event once the stream ends.
func (s *ChatService) StreamMessage(ctx context.Context, claims *user.TokenClaims, req *chat.Request, fn func(chat.Frame) error) error {
	a, sessionID, err := s.prepare(ctx, claims, req)
	if err != nil {
		return err
	}

	if s.cfg.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StreamTimeout)
		defer cancel()
	}

	var full strings.Builder
	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		streamErr := s.engine.Stream(ctx, s.cardURL(a), sessionID, req.Message, func(delta string, raw json.RawMessage) error {
			full.WriteString(delta)
			if s.hub != nil {
				s.hub.BroadcastEventToClient(ctx, a.ClientID, ws.EventChatDelta, ws.ChatDeltaEvent{
					SessionID: sessionID,
					AgentID:   a.ID,
					Delta:     delta,
				})
			}
			return fn(chat.Frame{Type: chat.FrameMessage, SessionID: sessionID, Delta: delta, Raw: raw})
		})
		if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
			return fmt.Errorf("%w: %w", ErrEngineUnavailable, streamErr)
		}
		return streamErr
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.recordErrorTurn(ctx, a, req.ExternalID, sessionID, err)
		}
		s.broadcastDone(ctx, a, sessionID, "", err)
		_ = fn(chat.Frame{Type: chat.FrameError, SessionID: sessionID, Error: err.Error()})
		return err
	}

	message := full.String()
	s.recordAgentTurn(ctx, a, req.ExternalID, sessionID, message)
	s.enqueueWebhook(ctx, a, sessionID, &engine.Reply{Message: message})
	s.broadcastDone(ctx, a, sessionID, message, nil)

	return fn(chat.Frame{Type: chat.FrameDone, SessionID: sessionID})
}

// HandleEngineCallback appends an engine-originated event to its session and
// broadcasts it. Used by the inbound engine webhook.
func (s *ChatService) HandleEngineCallback(ctx context.Context, ev *session.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		return err
	}

	if s.hub != nil {
		if a, err := s.agents.GetForDispatch(ctx, ev.AppName); err == nil {
			s.hub.BroadcastEventToClient(ctx, a.ClientID, ws.EventChatDone, ws.ChatDoneEvent{
				SessionID: ev.SessionID,
				AgentID:   ev.AppName,
			})
		}
	}
	return nil
}

// prepare resolves and authorizes the agent, then makes sure the session
// exists and carries the user turn.
func (s *ChatService) prepare(ctx context.Context, claims *user.TokenClaims, req *chat.Request) (*agentdom.Agent, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	a, err := s.agents.GetForDispatch(ctx, req.AgentID)
	if err != nil {
		return nil, "", err
	}
	// An agent of another client is indistinguishable from a missing one.
	if claims != nil && !claims.CanAccessClient(a.ClientID) {
		return nil, "", fmt.Errorf("get agent %s: %w", req.AgentID, domain.ErrNotFound)
	}

	sessionID := SessionID(req.ExternalID, req.AgentID)
	if err := s.ensureSession(ctx, a.ID, req.ExternalID, sessionID); err != nil {
		return nil, "", err
	}

	userContent, _ := json.Marshal(map[string]any{
		"role":  "user",
		"parts": []map[string]string{{"text": req.Message}},
	})
	ev := &session.Event{
		ID:        uuid.NewString(),
		AppName:   a.ID,
		UserID:    req.ExternalID,
		SessionID: sessionID,
		Author:    "user",
		Content:   userContent,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		return nil, "", fmt.Errorf("record user turn: %w", err)
	}
	return a, sessionID, nil
}

func (s *ChatService) ensureSession(ctx context.Context, agentID, externalID, sessionID string) error {
	_, err := s.store.GetSession(ctx, agentID, externalID, sessionID, 0, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	sess := &session.Session{
		AppName: agentID,
		UserID:  externalID,
		ID:      sessionID,
	}
	if createErr := s.store.CreateSession(ctx, sess); createErr != nil {
		// A concurrent turn may have created it first.
		if errors.Is(createErr, domain.ErrConflict) {
			return nil
		}
		return createErr
	}
	return nil
}

// recordAgentTurn appends the agent reply to the session. Persistence
// failures are logged, the reply was already produced.
func (s *ChatService) recordAgentTurn(ctx context.Context, a *agentdom.Agent, externalID, sessionID, message string) {
	content, _ := json.Marshal(map[string]any{
		"role":  "model",
		"parts": []map[string]string{{"text": message}},
	})
	turnComplete := true
	ev := &session.Event{
		ID:           uuid.NewString(),
		AppName:      a.ID,
		UserID:       externalID,
		SessionID:    sessionID,
		Author:       a.Name,
		Content:      content,
		TurnComplete: &turnComplete,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		slog.Error("failed to record agent turn", "session_id", sessionID, "error", err)
	}
}

// recordErrorTurn appends an error event so the failed turn stays visible in
// the session history.
func (s *ChatService) recordErrorTurn(ctx context.Context, a *agentdom.Agent, externalID, sessionID string, turnErr error) {
	ev := &session.Event{
		ID:           uuid.NewString(),
		AppName:      a.ID,
		UserID:       externalID,
		SessionID:    sessionID,
		Author:       a.Name,
		ErrorCode:    "engine_error",
		ErrorMessage: turnErr.Error(),
		Timestamp:    time.Now().UTC(),
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		slog.Error("failed to record error turn", "session_id", sessionID, "error", err)
	}
}

// enqueueWebhook publishes a delivery job when the agent has a webhook URL
// configured.
func (s *ChatService) enqueueWebhook(ctx context.Context, a *agentdom.Agent, sessionID string, reply *engine.Reply) {
	if s.queue == nil {
		return
	}
	doc, err := a.ParseConfig()
	if err != nil || doc.WebhookURL == "" {
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"agent_id":   a.ID,
		"session_id": sessionID,
		"message":    reply.Message,
	})
	job := messagequeue.WebhookDeliverPayload{
		DeliveryID: uuid.NewString(),
		AgentID:    a.ID,
		SessionID:  sessionID,
		URL:        doc.WebhookURL,
		Payload:    payload,
	}
	data, _ := json.Marshal(job)
	if err := s.queue.Publish(ctx, messagequeue.SubjectWebhookDeliver, data); err != nil {
		slog.Error("failed to enqueue webhook delivery", "agent_id", a.ID, "error", err)
	}
}

func (s *ChatService) broadcastDone(ctx context.Context, a *agentdom.Agent, sessionID, message string, err error) {
	if s.hub == nil {
		return
	}
	ev := ws.ChatDoneEvent{SessionID: sessionID, AgentID: a.ID, Message: message}
	eventType := ws.EventChatDone
	if err != nil {
		ev.Error = err.Error()
		eventType = ws.EventChatError
	}
	s.hub.BroadcastEventToClient(ctx, a.ClientID, eventType, ev)
}

// cardURL picks the agent card endpoint: an explicit card URL on the agent
// wins, everything else resolves through the engine.
func (s *ChatService) cardURL(a *agentdom.Agent) string {
	if a.AgentCardURL != "" {
		return a.AgentCardURL
	}
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/v1/agents/" + a.ID + "/.well-known/agent.json"
}
