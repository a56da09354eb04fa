// Package tool defines the standalone tool registry domain model.
package tool

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
)

// Tool represents a reusable tool definition agents can reference by name.
type Tool struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	Environments json.RawMessage `json:"environments,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Validate checks required fields and that JSON blobs are well formed.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(t.Config) > 0 && !json.Valid(t.Config) {
		return fmt.Errorf("%w: config must be valid JSON", domain.ErrValidation)
	}
	if len(t.Environments) > 0 && !json.Valid(t.Environments) {
		return fmt.Errorf("%w: environments must be valid JSON", domain.ErrValidation)
	}
	return nil
}
