package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/contact"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/database"
)

// ContactService manages a client's contacts.
type ContactService struct {
	store database.Store
}

// NewContactService creates a new contact service.
func NewContactService(store database.Store) *ContactService {
	return &ContactService{store: store}
}

// Create registers a contact under its client.
func (s *ContactService) Create(ctx context.Context, req *contact.CreateRequest) (*contact.Contact, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c := &contact.Contact{
		ID:         uuid.NewString(),
		ClientID:   req.ClientID,
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Meta:       req.Meta,
	}
	if err := s.store.CreateContact(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a contact scoped to its client.
func (s *ContactService) Get(ctx context.Context, clientID, id string) (*contact.Contact, error) {
	return s.store.GetContact(ctx, clientID, id)
}

// List returns a filtered page of a client's contacts.
func (s *ContactService) List(ctx context.Context, clientID string, f contact.ListFilter) ([]contact.Contact, int, error) {
	return s.store.ListContacts(ctx, clientID, f)
}

// Update applies the non-nil fields of req to the contact.
func (s *ContactService) Update(ctx context.Context, clientID, id string, req *contact.UpdateRequest) (*contact.Contact, error) {
	c, err := s.store.GetContact(ctx, clientID, id)
	if err != nil {
		return nil, err
	}

	if req.ExternalID != nil {
		c.ExternalID = *req.ExternalID
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if len(req.Meta) > 0 {
		c.Meta = req.Meta
	}

	if err := s.store.UpdateContact(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a contact scoped to its client.
func (s *ContactService) Delete(ctx context.Context, clientID, id string) error {
	return s.store.DeleteContact(ctx, clientID, id)
}
