package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/client"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
)

const clientCols = `id, name, email, created_at, updated_at`

func scanClient(row scannable) (client.Client, error) {
	var c client.Client
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateClientWithUser provisions a client and its initial client user in a
// single transaction.
func (s *Store) CreateClientWithUser(ctx context.Context, c *client.Client, u *user.User) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO clients (id, name, email) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Email,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create client")
	}

	u.ClientID = &c.ID
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, is_admin, client_id, email_verified, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6, TRUE, $7, $8)`,
		u.ID, u.Email, u.Name, u.PasswordHash, c.ID, u.EmailVerified, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return conflictWrap(err, "create client user")
	}

	return tx.Commit(ctx)
}

func (s *Store) GetClient(ctx context.Context, id string) (*client.Client, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+clientCols+` FROM clients WHERE id = $1`, id)

	c, err := scanClient(row)
	if err != nil {
		return nil, notFoundWrap(err, "get client %s", id)
	}
	return &c, nil
}

func (s *Store) ListClients(ctx context.Context, page, limit int) ([]client.Client, int, error) {
	page, limit = pageClamp(page, limit)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM clients`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+clientCols+` FROM clients ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []client.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return orEmpty(clients), total, rows.Err()
}

func (s *Store) UpdateClient(ctx context.Context, c *client.Client) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE clients SET name = $2, email = $3, updated_at = now() WHERE id = $1`,
		c.ID, c.Name, c.Email)
	return execExpectOne(tag, err, "update client %s", c.ID)
}

// DeleteClient removes a client. Foreign keys RESTRICT while contacts,
// agents, or users still reference the client; that surfaces as ErrConflict.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return restrictWrap(err, "delete client %s", id)
	}
	return execExpectOne(tag, nil, "delete client %s", id)
}
