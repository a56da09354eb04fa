package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/client"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/database"
)

// ClientService manages client (tenant) provisioning and lifecycle.
type ClientService struct {
	store      database.Store
	bcryptCost int
}

// NewClientService creates a new client service.
func NewClientService(store database.Store, bcryptCost int) *ClientService {
	return &ClientService{store: store, bcryptCost: bcryptCost}
}

// Create provisions a client together with its initial user. Both are
// created in one transaction so a half-provisioned client never exists.
func (s *ClientService) Create(ctx context.Context, req *client.CreateRequest) (*client.Client, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	c := &client.Client{
		ID:    uuid.NewString(),
		Name:  req.Name,
		Email: req.Email,
	}
	u := &user.User{
		ID:            uuid.NewString(),
		Email:         req.Email,
		Name:          req.Name,
		PasswordHash:  string(hash),
		ClientID:      &c.ID,
		EmailVerified: true,
		Active:        true,
	}

	if err := s.store.CreateClientWithUser(ctx, c, u); err != nil {
		return nil, fmt.Errorf("provision client: %w", err)
	}
	return c, nil
}

// Get returns a client by ID.
func (s *ClientService) Get(ctx context.Context, id string) (*client.Client, error) {
	return s.store.GetClient(ctx, id)
}

// List returns a page of clients with the total count.
func (s *ClientService) List(ctx context.Context, page, limit int) ([]client.Client, int, error) {
	return s.store.ListClients(ctx, page, limit)
}

// Update applies the non-nil fields of req to the client.
func (s *ClientService) Update(ctx context.Context, id string, req *client.UpdateRequest) (*client.Client, error) {
	c, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Email != nil {
		c.Email = *req.Email
	}

	if err := s.store.UpdateClient(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a client. The store rejects the delete while users still
// reference the client.
func (s *ClientService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteClient(ctx, id)
}
