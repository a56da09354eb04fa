// Package mcp defines domain types for the Model Context Protocol server
// registry: server definitions, cached tool descriptions, and lifecycle
// states, independent of any transport.
package mcp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
)

// TransportType identifies the communication transport for an MCP server.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportSSE   TransportType = "sse"
)

// validTransports is the set of recognized transport types.
var validTransports = map[TransportType]bool{
	TransportStdio: true,
	TransportSSE:   true,
}

// ServerStatus represents the lifecycle state of an MCP server.
type ServerStatus string

const (
	ServerStatusRegistered   ServerStatus = "registered"
	ServerStatusConnected    ServerStatus = "connected"
	ServerStatusDisconnected ServerStatus = "disconnected"
	ServerStatusError        ServerStatus = "error"
)

// Server describes a registered MCP server.
type Server struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	Transport       TransportType     `json:"transport"`
	Command         string            `json:"command,omitempty"`
	Args            []string          `json:"args,omitempty"`
	URL             string            `json:"url,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Enabled         bool              `json:"enabled"`
	Status          ServerStatus      `json:"status"`
	LastHealthCheck *time.Time        `json:"last_health_check,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ServerTool describes a tool discovered on an MCP server.
type ServerTool struct {
	ServerID    string          `json:"server_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// TestResult is the outcome of a live connectivity probe.
type TestResult struct {
	Status     ServerStatus `json:"status"`
	ToolCount  int          `json:"tool_count"`
	Tools      []ServerTool `json:"tools,omitempty"`
	Error      string       `json:"error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

// Validate checks that the Server has all required fields and consistent
// transport-specific configuration. Returns a domain.ErrValidation-wrapped
// error on failure.
func (s *Server) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}

	if s.Transport == "" {
		return fmt.Errorf("%w: transport is required", domain.ErrValidation)
	}

	if !validTransports[s.Transport] {
		return fmt.Errorf("%w: invalid transport %q (must be \"stdio\" or \"sse\")", domain.ErrValidation, s.Transport)
	}

	switch s.Transport {
	case TransportStdio:
		if s.Command == "" {
			return fmt.Errorf("%w: command is required for stdio transport", domain.ErrValidation)
		}
	case TransportSSE:
		if s.URL == "" {
			return fmt.Errorf("%w: url is required for sse transport", domain.ErrValidation)
		}
	}

	return nil
}
