package postgres

import (
	"context"
	"fmt"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/contact"
)

const contactCols = `id, client_id, ext_id, name, meta, created_at, updated_at`

func scanContact(row scannable) (contact.Contact, error) {
	var c contact.Contact
	err := row.Scan(&c.ID, &c.ClientID, &c.ExternalID, &c.Name, &c.Meta, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) CreateContact(ctx context.Context, c *contact.Contact) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO contacts (id, client_id, ext_id, name, meta)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		c.ID, c.ClientID, c.ExternalID, c.Name, c.Meta,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create contact")
	}
	return nil
}

// GetContact fetches a contact scoped to its client. A contact belonging to
// another client is indistinguishable from a missing one.
func (s *Store) GetContact(ctx context.Context, clientID, id string) (*contact.Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE id = $1 AND client_id = $2`, id, clientID)

	c, err := scanContact(row)
	if err != nil {
		return nil, notFoundWrap(err, "get contact %s", id)
	}
	return &c, nil
}

func (s *Store) ListContacts(ctx context.Context, clientID string, f contact.ListFilter) ([]contact.Contact, int, error) {
	page, limit := pageClamp(f.Page, f.Limit)

	where := `WHERE client_id = $1`
	args := []any{clientID}
	if f.Search != "" {
		where += ` AND (name ILIKE $2 OR ext_id ILIKE $2)`
		args = append(args, "%"+f.Search+"%")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM contacts `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM contacts %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		contactCols, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []contact.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return orEmpty(contacts), total, rows.Err()
}

func (s *Store) UpdateContact(ctx context.Context, c *contact.Contact) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE contacts SET ext_id = $3, name = $4, meta = $5, updated_at = now()
		WHERE id = $1 AND client_id = $2`,
		c.ID, c.ClientID, c.ExternalID, c.Name, c.Meta)
	if err != nil {
		return conflictWrap(err, "update contact %s", c.ID)
	}
	return execExpectOne(tag, nil, "update contact %s", c.ID)
}

func (s *Store) DeleteContact(ctx context.Context, clientID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM contacts WHERE id = $1 AND client_id = $2`, id, clientID)
	return execExpectOne(tag, err, "delete contact %s", id)
}
