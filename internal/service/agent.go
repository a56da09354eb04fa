package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/cache"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/agent"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/database"
)

// AgentService manages agent definitions and folders. Reads on the chat hot
// path go through the cache; every write invalidates.
type AgentService struct {
	store    database.Store
	cache    cache.Cache
	cacheTTL time.Duration
	group    singleflight.Group
}

// NewAgentService creates a new agent service. c may be nil to disable
// caching.
func NewAgentService(store database.Store, c cache.Cache, cacheTTL time.Duration) *AgentService {
	return &AgentService{store: store, cache: c, cacheTTL: cacheTTL}
}

func agentCacheKey(id string) string { return "agent:" + id }

// Create validates and stores a new agent.
func (s *AgentService) Create(ctx context.Context, a *agent.Agent) (*agent.Agent, error) {
	a.ID = uuid.NewString()
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateAgent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns an agent scoped to its client. The returned agent carries the
// full config; callers serving it over the API sanitize first.
func (s *AgentService) Get(ctx context.Context, clientID, id string) (*agent.Agent, error) {
	return s.store.GetAgent(ctx, clientID, id)
}

// GetForDispatch returns an agent by ID regardless of client, consulting
// the cache first. Used by chat dispatch and webhook delivery, which already
// hold an authorization decision. Concurrent misses on the same agent are
// collapsed into one store read.
func (s *AgentService) GetForDispatch(ctx context.Context, id string) (*agent.Agent, error) {
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, agentCacheKey(id)); err == nil && ok {
			var a agent.Agent
			if err := json.Unmarshal(data, &a); err == nil {
				return &a, nil
			}
		}
	}

	v, err, _ := s.group.Do(agentCacheKey(id), func() (any, error) {
		a, err := s.store.GetAgentAnyClient(ctx, id)
		if err != nil {
			return nil, err
		}

		if s.cache != nil {
			if data, err := json.Marshal(a); err == nil {
				if err := s.cache.Set(ctx, agentCacheKey(id), data, s.cacheTTL); err != nil {
					slog.Debug("agent cache set failed", "agent_id", id, "error", err)
				}
			}
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*agent.Agent), nil
}

// List returns a page of a client's agents, optionally filtered by folder.
func (s *AgentService) List(ctx context.Context, clientID string, folderID *string, page, limit int) ([]agent.Agent, int, error) {
	return s.store.ListAgents(ctx, clientID, folderID, page, limit)
}

// Update validates and stores the agent, pinned on its version for
// optimistic concurrency, then drops the cached copy.
func (s *AgentService) Update(ctx context.Context, a *agent.Agent) (*agent.Agent, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAgent(ctx, a); err != nil {
		return nil, err
	}
	s.invalidate(ctx, a.ID)
	return a, nil
}

// Delete removes an agent and drops the cached copy.
func (s *AgentService) Delete(ctx context.Context, clientID, id string) error {
	if err := s.store.DeleteAgent(ctx, clientID, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *AgentService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, agentCacheKey(id)); err != nil {
		slog.Debug("agent cache invalidation failed", "agent_id", id, "error", err)
	}
}

// CreateFolder creates an agent folder for a client.
func (s *AgentService) CreateFolder(ctx context.Context, req *agent.CreateFolderRequest) (*agent.Folder, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f := &agent.Folder{
		ID:          uuid.NewString(),
		ClientID:    req.ClientID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.store.CreateFolder(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// GetFolder returns a folder scoped to its client.
func (s *AgentService) GetFolder(ctx context.Context, clientID, id string) (*agent.Folder, error) {
	return s.store.GetFolder(ctx, clientID, id)
}

// ListFolders returns all folders of a client.
func (s *AgentService) ListFolders(ctx context.Context, clientID string) ([]agent.Folder, error) {
	return s.store.ListFolders(ctx, clientID)
}

// UpdateFolder stores the folder's mutable fields.
func (s *AgentService) UpdateFolder(ctx context.Context, f *agent.Folder) (*agent.Folder, error) {
	if err := s.store.UpdateFolder(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// DeleteFolder removes a folder; agents in it fall back to no folder.
func (s *AgentService) DeleteFolder(ctx context.Context, clientID, id string) error {
	return s.store.DeleteFolder(ctx, clientID, id)
}

// AssignFolder moves an agent into a folder, or out of all folders when
// folderID is nil.
func (s *AgentService) AssignFolder(ctx context.Context, clientID, agentID string, folderID *string) error {
	if err := s.store.AssignAgentFolder(ctx, clientID, agentID, folderID); err != nil {
		return err
	}
	s.invalidate(ctx, agentID)
	return nil
}
