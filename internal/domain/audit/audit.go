// Package audit defines the append-only audit trail for administrative actions.
package audit

import (
	"encoding/json"
	"time"
)

// Entry is one recorded administrative action.
type Entry struct {
	ID           string          `json:"id"`
	UserID       *string         `json:"user_id,omitempty"` // nil for system actions
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Filter narrows audit log listings. Zero values are ignored.
type Filter struct {
	UserID       string
	Action       string
	ResourceType string
	Since        time.Time
	Until        time.Time
	Page         int
	Limit        int
}
