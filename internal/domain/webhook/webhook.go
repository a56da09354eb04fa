// Package webhook defines the outbound webhook delivery job.
package webhook

import (
	"encoding/json"
	"time"
)

// Delivery is one queued webhook POST. Jobs are serialized onto the message
// queue and consumed by the dispatcher.
type Delivery struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agent_id"`
	SessionID string          `json:"session_id"`
	URL       string          `json:"url"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// SignatureHeader carries the HMAC-SHA256 signature of the payload,
// hex-encoded with a "sha256=" prefix.
const SignatureHeader = "X-Magnus-Signature-256"
