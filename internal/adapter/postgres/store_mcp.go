package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/mcp"
)

const mcpCols = `id, name, description, transport, command, args, url, env, headers,
	enabled, status, last_health_check, created_at, updated_at`

// CreateMCPServer inserts a new MCP server definition.
func (s *Store) CreateMCPServer(ctx context.Context, srv *mcp.Server) error {
	argsJSON, err := json.Marshal(srv.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	envJSON, err := json.Marshal(srv.Env)
	if err != nil {
		return fmt.Errorf("marshal env: %w", err)
	}
	headersJSON, err := json.Marshal(srv.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO mcp_servers
			(id, name, description, transport, command, args, url, env, headers, enabled, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		srv.ID, srv.Name, srv.Description, string(srv.Transport), srv.Command,
		argsJSON, srv.URL, envJSON, headersJSON, srv.Enabled, string(srv.Status),
	).Scan(&srv.CreatedAt, &srv.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create mcp server")
	}
	return nil
}

// GetMCPServer retrieves an MCP server by ID.
func (s *Store) GetMCPServer(ctx context.Context, id string) (*mcp.Server, error) {
	srv, err := scanMCPServer(s.pool.QueryRow(ctx,
		`SELECT `+mcpCols+` FROM mcp_servers WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get mcp server %s", id)
	}
	return &srv, nil
}

// ListMCPServers returns all registered MCP servers.
func (s *Store) ListMCPServers(ctx context.Context) ([]mcp.Server, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+mcpCols+` FROM mcp_servers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list mcp servers: %w", err)
	}
	defer rows.Close()

	var result []mcp.Server
	for rows.Next() {
		srv, err := scanMCPServer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, srv)
	}
	return orEmpty(result), rows.Err()
}

// UpdateMCPServer updates an existing MCP server definition.
func (s *Store) UpdateMCPServer(ctx context.Context, srv *mcp.Server) error {
	argsJSON, err := json.Marshal(srv.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	envJSON, err := json.Marshal(srv.Env)
	if err != nil {
		return fmt.Errorf("marshal env: %w", err)
	}
	headersJSON, err := json.Marshal(srv.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE mcp_servers SET
			name = $2, description = $3, transport = $4, command = $5, args = $6,
			url = $7, env = $8, headers = $9, enabled = $10, updated_at = now()
		WHERE id = $1`,
		srv.ID, srv.Name, srv.Description, string(srv.Transport), srv.Command,
		argsJSON, srv.URL, envJSON, headersJSON, srv.Enabled,
	)
	return execExpectOne(tag, err, "update mcp server %s", srv.ID)
}

// DeleteMCPServer deletes an MCP server; cached tools cascade.
func (s *Store) DeleteMCPServer(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mcp_servers WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete mcp server %s", id)
}

// UpdateMCPServerStatus updates the status and last health check timestamp.
func (s *Store) UpdateMCPServerStatus(ctx context.Context, id string, status mcp.ServerStatus) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE mcp_servers SET status = $2, last_health_check = $3, updated_at = now()
		WHERE id = $1`,
		id, string(status), now,
	)
	return execExpectOne(tag, err, "update mcp server status %s", id)
}

// UpsertMCPServerTools replaces all cached tools for an MCP server.
func (s *Store) UpsertMCPServerTools(ctx context.Context, serverID string, tools []mcp.ServerTool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM mcp_server_tools WHERE server_id = $1`, serverID); err != nil {
		return fmt.Errorf("delete old tools: %w", err)
	}

	for _, t := range tools {
		_, err := tx.Exec(ctx, `
			INSERT INTO mcp_server_tools (server_id, name, description, input_schema)
			VALUES ($1, $2, $3, $4)`,
			serverID, t.Name, t.Description, t.InputSchema,
		)
		if err != nil {
			return fmt.Errorf("insert tool %s: %w", t.Name, err)
		}
	}

	return tx.Commit(ctx)
}

// ListMCPServerTools returns all cached tools for an MCP server.
func (s *Store) ListMCPServerTools(ctx context.Context, serverID string) ([]mcp.ServerTool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT server_id, name, description, input_schema
		FROM mcp_server_tools WHERE server_id = $1 ORDER BY name`, serverID)
	if err != nil {
		return nil, fmt.Errorf("list mcp server tools %s: %w", serverID, err)
	}
	defer rows.Close()

	var result []mcp.ServerTool
	for rows.Next() {
		var t mcp.ServerTool
		var schemaJSON []byte
		if err := rows.Scan(&t.ServerID, &t.Name, &t.Description, &schemaJSON); err != nil {
			return nil, err
		}
		t.InputSchema = schemaJSON
		result = append(result, t)
	}
	return orEmpty(result), rows.Err()
}

func scanMCPServer(row scannable) (mcp.Server, error) {
	var srv mcp.Server
	var argsJSON, envJSON, headersJSON []byte
	err := row.Scan(
		&srv.ID, &srv.Name, &srv.Description, &srv.Transport, &srv.Command,
		&argsJSON, &srv.URL, &envJSON, &headersJSON, &srv.Enabled, &srv.Status,
		&srv.LastHealthCheck, &srv.CreatedAt, &srv.UpdatedAt,
	)
	if err != nil {
		return srv, err
	}
	if argsJSON != nil {
		if err := json.Unmarshal(argsJSON, &srv.Args); err != nil {
			return srv, fmt.Errorf("unmarshal args: %w", err)
		}
	}
	if envJSON != nil {
		if err := json.Unmarshal(envJSON, &srv.Env); err != nil {
			return srv, fmt.Errorf("unmarshal env: %w", err)
		}
	}
	if headersJSON != nil {
		if err := json.Unmarshal(headersJSON, &srv.Headers); err != nil {
			return srv, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	return srv, nil
}
