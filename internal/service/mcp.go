package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/victorgrein/magnus-ai-sub001/internal/adapter/ws"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/mcp"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/broadcast"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/database"
)

// MCPProber runs live connectivity checks against MCP servers.
type MCPProber interface {
	Probe(ctx context.Context, srv *mcp.Server) (*mcp.TestResult, error)
}

// MCPService manages the MCP server registry: definitions, connectivity
// probes, and the cached tool catalogs probes discover.
type MCPService struct {
	store  database.Store
	prober MCPProber
	hub    broadcast.Broadcaster
}

// NewMCPService creates a new MCP registry service. hub may be nil.
func NewMCPService(store database.Store, prober MCPProber, hub broadcast.Broadcaster) *MCPService {
	return &MCPService{store: store, prober: prober, hub: hub}
}

// Create registers an MCP server definition.
func (s *MCPService) Create(ctx context.Context, srv *mcp.Server) (*mcp.Server, error) {
	if err := srv.Validate(); err != nil {
		return nil, err
	}
	srv.ID = uuid.NewString()
	srv.Status = mcp.ServerStatusRegistered
	if err := s.store.CreateMCPServer(ctx, srv); err != nil {
		return nil, err
	}
	return srv, nil
}

// Get returns a server with its cached tool catalog.
func (s *MCPService) Get(ctx context.Context, id string) (*mcp.Server, []mcp.ServerTool, error) {
	srv, err := s.store.GetMCPServer(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	tools, err := s.store.ListMCPServerTools(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return srv, tools, nil
}

// List returns all registered servers.
func (s *MCPService) List(ctx context.Context) ([]mcp.Server, error) {
	return s.store.ListMCPServers(ctx)
}

// Update replaces a server definition.
func (s *MCPService) Update(ctx context.Context, id string, srv *mcp.Server) (*mcp.Server, error) {
	if err := srv.Validate(); err != nil {
		return nil, err
	}
	existing, err := s.store.GetMCPServer(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = srv.Name
	existing.Description = srv.Description
	existing.Transport = srv.Transport
	existing.Command = srv.Command
	existing.Args = srv.Args
	existing.URL = srv.URL
	existing.Env = srv.Env
	existing.Headers = srv.Headers
	existing.Enabled = srv.Enabled

	if err := s.store.UpdateMCPServer(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes a server; its cached tools cascade.
func (s *MCPService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteMCPServer(ctx, id)
}

// Test probes a registered server, persists the resulting status and tool
// catalog, and broadcasts the status change.
func (s *MCPService) Test(ctx context.Context, id string) (*mcp.TestResult, error) {
	srv, err := s.store.GetMCPServer(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.prober.Probe(ctx, srv)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", srv.Name, err)
	}

	if err := s.store.UpdateMCPServerStatus(ctx, id, result.Status); err != nil {
		slog.Warn("failed to persist mcp status", "server_id", id, "error", err)
	}
	if result.Status == mcp.ServerStatusConnected && len(result.Tools) > 0 {
		if err := s.store.UpsertMCPServerTools(ctx, id, result.Tools); err != nil {
			slog.Warn("failed to persist mcp tool catalog", "server_id", id, "error", err)
		}
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventMCPStatus, ws.MCPStatusEvent{
			ServerID: id,
			Status:   string(result.Status),
		})
	}
	return result, nil
}

// TestDefinition probes an unsaved server definition without touching the
// registry. Used to validate configuration before registering.
func (s *MCPService) TestDefinition(ctx context.Context, srv *mcp.Server) (*mcp.TestResult, error) {
	return s.prober.Probe(ctx, srv)
}
