package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/tool"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/database"
)

// ToolService manages the shared tool registry.
type ToolService struct {
	store database.Store
}

// NewToolService creates a new tool service.
func NewToolService(store database.Store) *ToolService {
	return &ToolService{store: store}
}

// Create registers a tool definition.
func (s *ToolService) Create(ctx context.Context, t *tool.Tool) (*tool.Tool, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.ID = uuid.NewString()
	if err := s.store.CreateTool(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns a tool by ID.
func (s *ToolService) Get(ctx context.Context, id string) (*tool.Tool, error) {
	return s.store.GetTool(ctx, id)
}

// List returns a page of tools ordered by name.
func (s *ToolService) List(ctx context.Context, page, limit int) ([]tool.Tool, int, error) {
	return s.store.ListTools(ctx, page, limit)
}

// Update replaces the mutable fields of a tool.
func (s *ToolService) Update(ctx context.Context, id string, t *tool.Tool) (*tool.Tool, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.GetTool(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = t.Name
	existing.Description = t.Description
	existing.Config = t.Config
	existing.Environments = t.Environments

	if err := s.store.UpdateTool(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes a tool definition.
func (s *ToolService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteTool(ctx, id)
}
