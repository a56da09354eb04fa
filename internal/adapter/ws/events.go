package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventChatDelta        = "chat.delta"
	EventChatDone         = "chat.done"
	EventChatError        = "chat.error"
	EventWebhookDelivered = "webhook.delivered"
	EventWebhookFailed    = "webhook.failed"
	EventMCPStatus        = "mcp.status"
)

// ChatDeltaEvent is broadcast for each streamed chunk of an agent response.
type ChatDeltaEvent struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Delta     string `json:"delta"`
}

// ChatDoneEvent is broadcast when an agent turn completes.
type ChatDoneEvent struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WebhookDeliveryEvent is broadcast when an outbound webhook delivery
// succeeds or exhausts its retries.
type WebhookDeliveryEvent struct {
	DeliveryID string `json:"delivery_id"`
	AgentID    string `json:"agent_id"`
	URL        string `json:"url"`
	Attempt    int    `json:"attempt"`
	Error      string `json:"error,omitempty"`
}

// MCPStatusEvent is broadcast when an MCP server's status changes.
type MCPStatusEvent struct {
	ServerID string `json:"server_id"`
	Status   string `json:"status"`
}

// BroadcastEventToClient marshals a typed event and sends it to one client's
// connections (plus admins).
func (h *Hub) BroadcastEventToClient(ctx context.Context, clientID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToClient(ctx, clientID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

// BroadcastEvent marshals a typed event and broadcasts it to everyone.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
