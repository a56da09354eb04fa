package postgres

import (
	"context"
	"fmt"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/tool"
)

const toolCols = `id, name, description, config, environments, created_at, updated_at`

func scanTool(row scannable) (tool.Tool, error) {
	var t tool.Tool
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Config, &t.Environments, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) CreateTool(ctx context.Context, t *tool.Tool) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tools (id, name, description, config, environments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Description, t.Config, t.Environments,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create tool")
	}
	return nil
}

func (s *Store) GetTool(ctx context.Context, id string) (*tool.Tool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+toolCols+` FROM tools WHERE id = $1`, id)

	t, err := scanTool(row)
	if err != nil {
		return nil, notFoundWrap(err, "get tool %s", id)
	}
	return &t, nil
}

func (s *Store) ListTools(ctx context.Context, page, limit int) ([]tool.Tool, int, error) {
	page, limit = pageClamp(page, limit)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tools`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tools: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+toolCols+` FROM tools ORDER BY name LIMIT $1 OFFSET $2`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var tools []tool.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tool: %w", err)
		}
		tools = append(tools, t)
	}
	return orEmpty(tools), total, rows.Err()
}

func (s *Store) UpdateTool(ctx context.Context, t *tool.Tool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tools SET name = $2, description = $3, config = $4, environments = $5, updated_at = now()
		WHERE id = $1`,
		t.ID, t.Name, t.Description, t.Config, t.Environments)
	if err != nil {
		return conflictWrap(err, "update tool %s", t.ID)
	}
	return execExpectOne(tag, nil, "update tool %s", t.ID)
}

func (s *Store) DeleteTool(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tools WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete tool %s", id)
}
