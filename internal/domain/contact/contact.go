// Package contact defines the contact domain model. A contact is an end user
// of a client's agents, identified by a client-supplied external ID.
package contact

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
)

// Contact represents an end user reachable through a client's agents.
type Contact struct {
	ID         string          `json:"id"`
	ClientID   string          `json:"client_id"`
	ExternalID string          `json:"ext_id"`
	Name       string          `json:"name"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CreateRequest is the input for creating a contact.
type CreateRequest struct {
	ClientID   string          `json:"client_id"`
	ExternalID string          `json:"ext_id"`
	Name       string          `json:"name"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.ClientID == "" {
		return fmt.Errorf("%w: client_id is required", domain.ErrValidation)
	}
	if r.ExternalID == "" {
		return fmt.Errorf("%w: ext_id is required", domain.ErrValidation)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	return nil
}

// UpdateRequest is the input for updating a contact. Nil fields are unchanged.
type UpdateRequest struct {
	ExternalID *string         `json:"ext_id,omitempty"`
	Name       *string         `json:"name,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}

// ListFilter narrows contact listings.
type ListFilter struct {
	Search string
	Page   int
	Limit  int
}
