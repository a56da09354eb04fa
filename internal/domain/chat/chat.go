// Package chat defines the request/response types for agent execution.
package chat

import (
	"encoding/json"
	"fmt"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
)

// Request is the body for both the blocking and streaming chat endpoints.
type Request struct {
	AgentID    string `json:"agent_id"`
	ExternalID string `json:"external_id"`
	Message    string `json:"message"`
}

// Validate checks that the Request has all required fields.
func (r *Request) Validate() error {
	if r.AgentID == "" {
		return fmt.Errorf("%w: agent_id is required", domain.ErrValidation)
	}
	if r.ExternalID == "" {
		return fmt.Errorf("%w: external_id is required", domain.ErrValidation)
	}
	if r.Message == "" {
		return fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	return nil
}

// Response is the final result of a blocking chat turn.
type Response struct {
	SessionID string          `json:"session_id"`
	Message   string          `json:"message"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// FrameType labels a streaming frame.
type FrameType string

const (
	FrameMessage FrameType = "message"
	FrameDone    FrameType = "done"
	FrameError   FrameType = "error"
)

// Frame is one unit of a streamed chat response.
type Frame struct {
	Type      FrameType       `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Delta     string          `json:"delta,omitempty"`
	Error     string          `json:"error,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}
