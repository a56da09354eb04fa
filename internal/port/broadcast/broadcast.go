// Package broadcast defines the port for pushing real-time events to
// connected clients.
package broadcast

import "context"

// Broadcaster fans typed events out over WebSocket connections.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to every connection.
	BroadcastEvent(ctx context.Context, eventType string, payload any)

	// BroadcastEventToClient sends a typed event to the connections of one
	// client, plus admin connections.
	BroadcastEventToClient(ctx context.Context, clientID, eventType string, payload any)
}
