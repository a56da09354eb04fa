package postgres

import (
	"context"
	"fmt"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/agent"
)

const agentCols = `id, client_id, name, description, type, model, instruction,
	agent_card_url, config, folder_id, version, created_at, updated_at`

func scanAgent(row scannable) (agent.Agent, error) {
	var a agent.Agent
	err := row.Scan(&a.ID, &a.ClientID, &a.Name, &a.Description, &a.Type, &a.Model,
		&a.Instruction, &a.AgentCardURL, &a.Config, &a.FolderID, &a.Version,
		&a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	a.Version = 1
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agents (id, client_id, name, description, type, model, instruction,
			agent_card_url, config, folder_id, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		a.ID, a.ClientID, a.Name, a.Description, a.Type, a.Model, a.Instruction,
		a.AgentCardURL, a.Config, a.FolderID, a.Version,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create agent")
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, clientID, id string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentCols+` FROM agents WHERE id = $1 AND client_id = $2`, id, clientID)

	a, err := scanAgent(row)
	if err != nil {
		return nil, notFoundWrap(err, "get agent %s", id)
	}
	return &a, nil
}

// GetAgentAnyClient fetches an agent without client scoping. Reserved for
// internal callers (chat dispatch, webhook delivery) that already hold a
// verified agent reference.
func (s *Store) GetAgentAnyClient(ctx context.Context, id string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentCols+` FROM agents WHERE id = $1`, id)

	a, err := scanAgent(row)
	if err != nil {
		return nil, notFoundWrap(err, "get agent %s", id)
	}
	return &a, nil
}

func (s *Store) ListAgents(ctx context.Context, clientID string, folderID *string, page, limit int) ([]agent.Agent, int, error) {
	page, limit = pageClamp(page, limit)

	where := `WHERE client_id = $1`
	args := []any{clientID}
	if folderID != nil {
		where += ` AND folder_id = $2`
		args = append(args, *folderID)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM agents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count agents: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM agents %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		agentCols, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return orEmpty(agents), total, rows.Err()
}

// UpdateAgent writes the agent and bumps its version. The WHERE clause pins
// the version the caller read, so concurrent updates lose with ErrConflict
// rather than silently overwriting each other.
func (s *Store) UpdateAgent(ctx context.Context, a *agent.Agent) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE agents SET name = $3, description = $4, type = $5, model = $6,
			instruction = $7, agent_card_url = $8, config = $9, folder_id = $10,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND client_id = $2 AND version = $11
		RETURNING version, updated_at`,
		a.ID, a.ClientID, a.Name, a.Description, a.Type, a.Model, a.Instruction,
		a.AgentCardURL, a.Config, a.FolderID, a.Version,
	).Scan(&a.Version, &a.UpdatedAt)
	if err != nil {
		// No row means either the agent is gone or the version moved on.
		// Disambiguate so callers can report a stale write as a conflict.
		var exists bool
		if checkErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM agents WHERE id = $1 AND client_id = $2)`,
			a.ID, a.ClientID).Scan(&exists); checkErr == nil && exists {
			return fmt.Errorf("update agent %s: stale version: %w", a.ID, domain.ErrConflict)
		}
		return notFoundWrap(err, "update agent %s", a.ID)
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, clientID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM agents WHERE id = $1 AND client_id = $2`, id, clientID)
	return execExpectOne(tag, err, "delete agent %s", id)
}

const folderCols = `id, client_id, name, description, created_at, updated_at`

func scanFolder(row scannable) (agent.Folder, error) {
	var f agent.Folder
	err := row.Scan(&f.ID, &f.ClientID, &f.Name, &f.Description, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (s *Store) CreateFolder(ctx context.Context, f *agent.Folder) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agent_folders (id, client_id, name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		f.ID, f.ClientID, f.Name, f.Description,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create folder")
	}
	return nil
}

func (s *Store) GetFolder(ctx context.Context, clientID, id string) (*agent.Folder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+folderCols+` FROM agent_folders WHERE id = $1 AND client_id = $2`, id, clientID)

	f, err := scanFolder(row)
	if err != nil {
		return nil, notFoundWrap(err, "get folder %s", id)
	}
	return &f, nil
}

func (s *Store) ListFolders(ctx context.Context, clientID string) ([]agent.Folder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+folderCols+` FROM agent_folders WHERE client_id = $1 ORDER BY name`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var folders []agent.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return orEmpty(folders), rows.Err()
}

func (s *Store) UpdateFolder(ctx context.Context, f *agent.Folder) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agent_folders SET name = $3, description = $4, updated_at = now()
		WHERE id = $1 AND client_id = $2`,
		f.ID, f.ClientID, f.Name, f.Description)
	return execExpectOne(tag, err, "update folder %s", f.ID)
}

// DeleteFolder removes a folder; agents inside it fall back to no folder
// (folder_id is SET NULL by the schema).
func (s *Store) DeleteFolder(ctx context.Context, clientID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM agent_folders WHERE id = $1 AND client_id = $2`, id, clientID)
	return execExpectOne(tag, err, "delete folder %s", id)
}

// AssignAgentFolder moves an agent into a folder (or out, with nil).
func (s *Store) AssignAgentFolder(ctx context.Context, clientID, agentID string, folderID *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET folder_id = $3, updated_at = now()
		WHERE id = $1 AND client_id = $2`,
		agentID, clientID, folderID)
	if err != nil {
		return restrictWrap(err, "assign agent %s folder", agentID)
	}
	return execExpectOne(tag, nil, "assign agent %s folder", agentID)
}
