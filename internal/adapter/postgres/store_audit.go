package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/audit"
)

// AppendAudit records an audit entry. The log is append-only; there are no
// update or delete paths.
func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO audit_log (id, user_id, action, resource_type, resource_id, payload, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID, e.Payload, e.IPAddress, e.UserAgent,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns a filtered, paginated slice of the audit log, newest first.
func (s *Store) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	page, limit := pageClamp(f.Page, f.Limit)

	var conditions []string
	var args []any
	argIdx := 1

	addCond := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argIdx))
		args = append(args, val)
		argIdx++
	}

	if f.UserID != "" {
		addCond("user_id = $%d", f.UserID)
	}
	if f.Action != "" {
		addCond("action = $%d", f.Action)
	}
	if f.ResourceType != "" {
		addCond("resource_type = $%d", f.ResourceType)
	}
	if !f.Since.IsZero() {
		addCond("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		addCond("created_at <= $%d", f.Until)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countSQL := fmt.Sprintf(`SELECT count(*) FROM audit_log %s`, where)
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, action, resource_type, resource_id, payload, ip_address, user_agent, created_at
		FROM audit_log %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Payload, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return orEmpty(entries), total, rows.Err()
}
