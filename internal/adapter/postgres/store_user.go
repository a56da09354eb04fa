package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
)

const userCols = `id, email, name, password_hash, is_admin, client_id, email_verified, active, failed_logins, locked_until, created_at, updated_at`

func scanUser(row scannable) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsAdmin, &u.ClientID,
		&u.EmailVerified, &u.Active, &u.FailedLogins, &u.LockedUntil, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, is_admin, client_id, email_verified, active, failed_logins, locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.IsAdmin, u.ClientID,
		u.EmailVerified, u.Active, u.FailedLogins, u.LockedUntil, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return conflictWrap(err, "create user")
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundWrap(err, "get user %s", id)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email)

	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundWrap(err, "get user by email")
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, page, limit int) ([]user.User, int, error) {
	page, limit = pageClamp(page, limit)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY created_at LIMIT $1 OFFSET $2`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return orEmpty(users), total, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	u.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET email = $2, name = $3, password_hash = $4, is_admin = $5,
			email_verified = $6, active = $7, failed_logins = $8, locked_until = $9, updated_at = $10
		WHERE id = $1`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.IsAdmin,
		u.EmailVerified, u.Active, u.FailedLogins, u.LockedUntil, u.UpdatedAt,
	)
	if err != nil {
		return conflictWrap(err, "update user %s", u.ID)
	}
	return execExpectOne(tag, nil, "update user %s", u.ID)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete user %s", id)
}

// CountUsersByClient returns how many non-admin users reference a client.
func (s *Store) CountUsersByClient(ctx context.Context, clientID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM users WHERE client_id = $1`, clientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users by client: %w", err)
	}
	return n, nil
}

// SetVerificationToken stores a fresh email verification token.
func (s *Store) SetVerificationToken(ctx context.Context, userID, token string, expiry time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET verification_token = $2, verification_expiry = $3, updated_at = now() WHERE id = $1`,
		userID, token, expiry)
	return execExpectOne(tag, err, "set verification token for %s", userID)
}

// ConsumeVerificationToken marks the matching user verified and clears the
// token. Returns the user, or ErrNotFound for unknown/expired tokens.
func (s *Store) ConsumeVerificationToken(ctx context.Context, token string) (*user.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET email_verified = TRUE, verification_token = NULL, verification_expiry = NULL, updated_at = now()
		WHERE verification_token = $1 AND verification_expiry > now()
		RETURNING `+userCols, token)

	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundWrap(err, "consume verification token")
	}
	return &u, nil
}

// SetPasswordResetToken stores a fresh password reset token.
func (s *Store) SetPasswordResetToken(ctx context.Context, userID, token string, expiry time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_reset_token = $2, password_reset_expiry = $3, updated_at = now() WHERE id = $1`,
		userID, token, expiry)
	return execExpectOne(tag, err, "set password reset token for %s", userID)
}

// ConsumePasswordResetToken sets the new password hash for the matching user
// and clears the token. Returns ErrNotFound for unknown/expired tokens.
func (s *Store) ConsumePasswordResetToken(ctx context.Context, token, newHash string) (*user.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET password_hash = $2, password_reset_token = NULL, password_reset_expiry = NULL,
			failed_logins = 0, locked_until = NULL, updated_at = now()
		WHERE password_reset_token = $1 AND password_reset_expiry > now()
		RETURNING `+userCols, token, newHash)

	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundWrap(err, "consume password reset token")
	}
	return &u, nil
}
