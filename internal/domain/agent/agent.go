// Package agent defines the Agent domain entity and its per-type validation.
package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
)

// Type identifies how an agent executes.
type Type string

const (
	TypeLLM        Type = "llm"
	TypeA2A        Type = "a2a"
	TypeSequential Type = "sequential"
	TypeParallel   Type = "parallel"
	TypeLoop       Type = "loop"
	TypeWorkflow   Type = "workflow"
	TypeTask       Type = "task"
)

// ValidTypes is the set of recognized agent types.
var ValidTypes = map[Type]bool{
	TypeLLM:        true,
	TypeA2A:        true,
	TypeSequential: true,
	TypeParallel:   true,
	TypeLoop:       true,
	TypeWorkflow:   true,
	TypeTask:       true,
}

// composite types require sub-agents in their config.
var compositeTypes = map[Type]bool{
	TypeSequential: true,
	TypeParallel:   true,
	TypeLoop:       true,
	TypeWorkflow:   true,
}

// Agent represents a configured agent owned by a client.
type Agent struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Type         Type            `json:"type"`
	Model        string          `json:"model,omitempty"`
	Instruction  string          `json:"instruction,omitempty"`
	AgentCardURL string          `json:"agent_card_url,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	FolderID     *string         `json:"folder_id,omitempty"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ConfigDoc is the parsed shape of an agent's config JSON. Unknown fields are
// preserved in storage; this struct only names the keys the backend reads.
type ConfigDoc struct {
	APIKey     string            `json:"api_key,omitempty"`
	Tools      []string          `json:"tools,omitempty"`
	SubAgents  []string          `json:"sub_agents,omitempty"`
	MCPServers []MCPBinding      `json:"mcp_servers,omitempty"`
	WebhookURL string            `json:"webhook_url,omitempty"`
	Custom     map[string]string `json:"custom,omitempty"`
}

// MCPBinding references a registered MCP server plus the subset of its tools
// the agent may use.
type MCPBinding struct {
	ServerID string   `json:"server_id"`
	Tools    []string `json:"tools,omitempty"`
}

// ParseConfig decodes the raw config JSON. A nil config yields a zero doc.
func (a *Agent) ParseConfig() (ConfigDoc, error) {
	var doc ConfigDoc
	if len(a.Config) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(a.Config, &doc); err != nil {
		return doc, fmt.Errorf("%w: malformed agent config: %v", domain.ErrValidation, err)
	}
	return doc, nil
}

// Validate enforces the per-type required fields.
func (a *Agent) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if a.ClientID == "" {
		return fmt.Errorf("%w: client_id is required", domain.ErrValidation)
	}
	if !ValidTypes[a.Type] {
		return fmt.Errorf("%w: invalid agent type %q", domain.ErrValidation, a.Type)
	}

	doc, err := a.ParseConfig()
	if err != nil {
		return err
	}

	switch {
	case a.Type == TypeLLM:
		if a.Model == "" {
			return fmt.Errorf("%w: model is required for llm agents", domain.ErrValidation)
		}
		if a.Instruction == "" {
			return fmt.Errorf("%w: instruction is required for llm agents", domain.ErrValidation)
		}
	case a.Type == TypeA2A:
		if a.AgentCardURL == "" {
			return fmt.Errorf("%w: agent_card_url is required for a2a agents", domain.ErrValidation)
		}
	case compositeTypes[a.Type]:
		if len(doc.SubAgents) == 0 {
			return fmt.Errorf("%w: %s agents require at least one sub-agent", domain.ErrValidation, a.Type)
		}
	}
	return nil
}

// Sanitized returns a copy with secret config fields elided. Used on every
// read path so API keys never leave the service.
func (a *Agent) Sanitized() Agent {
	out := *a
	if len(a.Config) == 0 {
		return out
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(a.Config, &raw); err != nil {
		return out
	}
	if _, ok := raw["api_key"]; !ok {
		return out
	}
	delete(raw, "api_key")
	if clean, err := json.Marshal(raw); err == nil {
		out.Config = clean
	}
	return out
}

// Folder groups agents for listing purposes.
type Folder struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateFolderRequest is the input for creating an agent folder.
type CreateFolderRequest struct {
	ClientID    string `json:"client_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Validate checks that the CreateFolderRequest has all required fields.
func (r *CreateFolderRequest) Validate() error {
	if r.ClientID == "" {
		return fmt.Errorf("%w: client_id is required", domain.ErrValidation)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	return nil
}
