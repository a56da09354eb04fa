// Package user defines the user domain model for authentication and authorization.
package user

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
)

// User represents a registered account. Non-admin users belong to exactly
// one client; admin users have no client binding.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	PasswordHash  string     `json:"-"` // never serialized
	IsAdmin       bool       `json:"is_admin"`
	ClientID      *string    `json:"client_id,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	Active        bool       `json:"active"`
	FailedLogins  int        `json:"-"`
	LockedUntil   *time.Time `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Locked reports whether the account is currently locked out.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// CreateRequest is the input for registering a new user.
type CreateRequest struct {
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Password string  `json:"password"` //nolint:gosec // request field, not a hardcoded secret
	IsAdmin  bool    `json:"is_admin,omitempty"`
	ClientID *string `json:"client_id,omitempty"`
	// Verified pre-verifies the account, skipping the email round trip.
	// Only honored for admin-initiated creation.
	Verified bool `json:"verified,omitempty"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("%w: invalid email format", domain.ErrValidation)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(r.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	}
	if !r.IsAdmin && (r.ClientID == nil || *r.ClientID == "") {
		return fmt.Errorf("%w: non-admin users require a client_id", domain.ErrValidation)
	}
	if r.IsAdmin && r.ClientID != nil {
		return fmt.Errorf("%w: admin users cannot have a client_id", domain.ErrValidation)
	}
	return nil
}

// UpdateRequest is the input for updating an existing user.
// Nil fields are left unchanged.
type UpdateRequest struct {
	Email   *string `json:"email,omitempty"`
	Name    *string `json:"name,omitempty"`
	Active  *bool   `json:"active,omitempty"`
	IsAdmin *bool   `json:"is_admin,omitempty"`
}

// LoginRequest is the input for user authentication.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks that the LoginRequest has all required fields.
func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	return nil
}

// LoginResponse is returned after successful authentication.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // response field, not a hardcoded secret
	RefreshToken string `json:"refresh_token"` //nolint:gosec // response field, not a hardcoded secret
	ExpiresIn    int    `json:"expires_in"`    // seconds until access token expires
	User         User   `json:"user"`
}

// TokenClaims is the decoded JWT payload carried through request context.
type TokenClaims struct {
	UserID   string  `json:"sub"`
	Email    string  `json:"email"`
	IsAdmin  bool    `json:"is_admin"`
	ClientID *string `json:"client_id,omitempty"`
	JTI      string  `json:"jti"`
	IssuedAt int64   `json:"iat"`
	Expiry   int64   `json:"exp"`
}

// CanAccessClient reports whether these claims may act on resources owned by
// clientID. Admins may act on any client, other users only on their own.
func (c *TokenClaims) CanAccessClient(clientID string) bool {
	if c.IsAdmin {
		return true
	}
	return c.ClientID != nil && *c.ClientID == clientID
}

// RefreshToken is a stored refresh token. Only the SHA-256 hash of the
// opaque token value is persisted.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
