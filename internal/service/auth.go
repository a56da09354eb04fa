// Package service implements the application services between the HTTP
// layer and the adapters.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/victorgrein/magnus-ai-sub001/internal/config"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
	"github.com/victorgrein/magnus-ai-sub001/internal/port/database"
)

const (
	jwtIssuer   = "magnus-api"
	jwtAudience = "magnus"
)

// MailSender delivers the account emails. Implemented by the email adapter;
// a nil sender disables outbound mail.
type MailSender interface {
	Enabled() bool
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
	SendAccountLocked(ctx context.Context, to string) error
}

// AuthService handles authentication, JWT tokens, API keys, and user
// management.
type AuthService struct {
	store  database.Store
	cfg    *config.Auth
	secret []byte
	mailer MailSender
}

// NewAuthService creates a new authentication service. mailer may be nil.
func NewAuthService(store database.Store, cfg *config.Auth, mailer MailSender) *AuthService {
	return &AuthService{
		store:  store,
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
		mailer: mailer,
	}
}

// Register creates a new user with a bcrypt-hashed password. Unless the
// request is pre-verified, a verification email is sent when mail is
// configured; otherwise the account starts verified.
func (s *AuthService) Register(ctx context.Context, req *user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	mailVerification := !req.Verified && s.mailer != nil && s.mailer.Enabled()
	u := &user.User{
		ID:            uuid.NewString(),
		Email:         req.Email,
		Name:          req.Name,
		PasswordHash:  string(hash),
		IsAdmin:       req.IsAdmin,
		ClientID:      req.ClientID,
		EmailVerified: !mailVerification,
		Active:        true,
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if mailVerification {
		token, err := generateRandomToken(32)
		if err != nil {
			return nil, fmt.Errorf("generate verification token: %w", err)
		}
		expiry := time.Now().Add(s.cfg.VerificationTTL)
		if err := s.store.SetVerificationToken(ctx, u.ID, hashSHA256(token), expiry); err != nil {
			return nil, fmt.Errorf("store verification token: %w", err)
		}
		if err := s.mailer.SendVerification(ctx, u.Email, token); err != nil {
			slog.Warn("verification email failed", "user_id", u.ID, "error", err)
		}
	}
	return u, nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	u, err := s.store.ConsumeVerificationToken(ctx, hashSHA256(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid or expired verification token", domain.ErrUnauthorized)
		}
		return nil, err
	}
	return u, nil
}

// Login authenticates a user and returns an access token plus the raw
// refresh token. Failed attempts count toward the lockout threshold.
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*user.LoginResponse, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	u, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	now := time.Now()
	switch {
	case !u.Active:
		return nil, "", fmt.Errorf("%w: account is disabled", domain.ErrUnauthorized)
	case u.Locked(now):
		return nil, "", fmt.Errorf("%w: account is locked, try again later", domain.ErrUnauthorized)
	case !u.EmailVerified:
		return nil, "", fmt.Errorf("%w: email not verified", domain.ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.recordFailedLogin(ctx, u, now)
		return nil, "", fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}

	if u.FailedLogins > 0 || u.LockedUntil != nil {
		u.FailedLogins = 0
		u.LockedUntil = nil
		if err := s.store.UpdateUser(ctx, u); err != nil {
			slog.Warn("failed to reset login counter", "user_id", u.ID, "error", err)
		}
	}

	return s.issueTokens(ctx, u)
}

// recordFailedLogin bumps the failure counter and locks the account once the
// threshold is crossed.
func (s *AuthService) recordFailedLogin(ctx context.Context, u *user.User, now time.Time) {
	u.FailedLogins++
	if u.FailedLogins >= s.cfg.LockoutThreshold {
		until := now.Add(s.cfg.LockoutDuration)
		u.LockedUntil = &until
		u.FailedLogins = 0
		slog.Warn("account locked after repeated failed logins", "user_id", u.ID)
		if s.mailer != nil && s.mailer.Enabled() {
			if err := s.mailer.SendAccountLocked(ctx, u.Email); err != nil {
				slog.Warn("lockout email failed", "user_id", u.ID, "error", err)
			}
		}
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		slog.Warn("failed to record failed login", "user_id", u.ID, "error", err)
	}
}

// issueTokens signs an access token and stores a fresh refresh token.
func (s *AuthService) issueTokens(ctx context.Context, u *user.User) (*user.LoginResponse, string, error) {
	accessToken, err := s.signJWT(u)
	if err != nil {
		return nil, "", fmt.Errorf("sign jwt: %w", err)
	}

	rawToken, err := generateRandomToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}

	rt := &user.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashSHA256(rawToken),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTTL),
	}
	if err := s.store.CreateRefreshToken(ctx, rt); err != nil {
		return nil, "", fmt.Errorf("store refresh token: %w", err)
	}

	resp := &user.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTTL.Seconds()),
		User:        *u,
	}
	return resp, rawToken, nil
}

// RefreshTokens validates a refresh token, atomically rotates it, and issues
// a new access token.
func (s *AuthService) RefreshTokens(ctx context.Context, rawToken string) (*user.LoginResponse, string, error) {
	tokenHash := hashSHA256(rawToken)

	rt, err := s.store.GetRefreshTokenByHash(ctx, tokenHash)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid refresh token", domain.ErrUnauthorized)
	}

	if time.Now().After(rt.ExpiresAt) {
		_ = s.store.DeleteRefreshToken(ctx, rt.ID)
		return nil, "", fmt.Errorf("%w: refresh token expired", domain.ErrUnauthorized)
	}

	u, err := s.store.GetUser(ctx, rt.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("get user: %w", err)
	}
	if !u.Active {
		return nil, "", fmt.Errorf("%w: account is disabled", domain.ErrUnauthorized)
	}

	accessToken, err := s.signJWT(u)
	if err != nil {
		return nil, "", fmt.Errorf("sign jwt: %w", err)
	}

	newRawToken, err := generateRandomToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	newRT := &user.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashSHA256(newRawToken),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTTL),
	}
	if err := s.store.RotateRefreshToken(ctx, tokenHash, newRT); err != nil {
		return nil, "", fmt.Errorf("rotate refresh token: %w", err)
	}

	resp := &user.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTTL.Seconds()),
		User:        *u,
	}
	return resp, newRawToken, nil
}

// Logout deletes all refresh tokens for a user and revokes the current
// access token by JTI. Pass empty jti to skip revocation.
func (s *AuthService) Logout(ctx context.Context, userID, jti string, tokenExpiry time.Time) error {
	if jti != "" {
		if err := s.store.RevokeToken(ctx, jti, tokenExpiry); err != nil {
			slog.Warn("failed to revoke access token on logout", "jti", jti, "error", err)
		}
	}
	return s.store.DeleteRefreshTokensByUser(ctx, userID)
}

// ForgotPassword stores a reset token and emails it. Unknown addresses are
// not an error, the response never reveals whether an account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	u, err := s.store.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	token, err := generateRandomToken(32)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	expiry := time.Now().Add(s.cfg.ResetTTL)
	if err := s.store.SetPasswordResetToken(ctx, u.ID, hashSHA256(token), expiry); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if s.mailer != nil && s.mailer.Enabled() {
		if err := s.mailer.SendPasswordReset(ctx, u.Email, token); err != nil {
			slog.Warn("password reset email failed", "user_id", u.ID, "error", err)
		}
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password. All
// refresh tokens for the user are dropped.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.ConsumePasswordResetToken(ctx, hashSHA256(token), string(hash))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: invalid or expired reset token", domain.ErrUnauthorized)
		}
		return err
	}
	return s.store.DeleteRefreshTokensByUser(ctx, u.ID)
}

// ChangePassword verifies the old password and sets the new one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)); err != nil {
		return fmt.Errorf("%w: current password is incorrect", domain.ErrUnauthorized)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return s.store.DeleteRefreshTokensByUser(ctx, userID)
}

// AdminResetPassword sets a user's password directly, bypassing the token
// flow. Used by the admin CLI; clears any lockout and drops refresh tokens.
func (s *AuthService) AdminResetPassword(ctx context.Context, emailAddr, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	}

	u, err := s.store.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	u.FailedLogins = 0
	u.LockedUntil = nil

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return s.store.DeleteRefreshTokensByUser(ctx, u.ID)
}

// ValidateAccessToken verifies a JWT and returns the claims. Revocation is
// checked for tokens carrying a JTI, failing closed on store errors.
func (s *AuthService) ValidateAccessToken(ctx context.Context, tokenStr string) (*user.TokenClaims, error) {
	claims, err := s.verifyJWT(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	if claims.JTI != "" {
		revoked, dbErr := s.store.IsTokenRevoked(ctx, claims.JTI)
		if dbErr != nil {
			slog.Error("token revocation check failed, denying token", "jti", claims.JTI, "error", dbErr)
			return nil, fmt.Errorf("%w: unable to verify token status", domain.ErrUnauthorized)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token has been revoked", domain.ErrUnauthorized)
		}
	}
	return claims, nil
}

// ValidateAPIKey looks up an API key by its SHA-256 hash and returns claims
// built from the owning user.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*user.TokenClaims, *user.APIKey, error) {
	apiKey, err := s.store.GetAPIKeyByHash(ctx, hashSHA256(rawKey))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid api key", domain.ErrUnauthorized)
	}
	if !apiKey.ExpiresAt.IsZero() && time.Now().After(apiKey.ExpiresAt) {
		return nil, nil, fmt.Errorf("%w: api key expired", domain.ErrUnauthorized)
	}

	u, err := s.store.GetUser(ctx, apiKey.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	if !u.Active {
		return nil, nil, fmt.Errorf("%w: account is disabled", domain.ErrUnauthorized)
	}

	claims := &user.TokenClaims{
		UserID:   u.ID,
		Email:    u.Email,
		IsAdmin:  u.IsAdmin,
		ClientID: u.ClientID,
	}
	return claims, apiKey, nil
}

// CreateAPIKey generates a new API key for a user. The plain key is only
// returned once.
func (s *AuthService) CreateAPIKey(ctx context.Context, userID string, req user.CreateAPIKeyRequest) (*user.CreateAPIKeyResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rawKey, err := generateRandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	plainKey := user.APIKeyPrefix + rawKey

	var expiresAt time.Time
	if req.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	key := &user.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      req.Name,
		Prefix:    plainKey[:len(user.APIKeyPrefix)+8],
		KeyHash:   hashSHA256(plainKey),
		ExpiresAt: expiresAt,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	return &user.CreateAPIKeyResponse{APIKey: *key, PlainKey: plainKey}, nil
}

// ListAPIKeys returns all API keys for a user.
func (s *AuthService) ListAPIKeys(ctx context.Context, userID string) ([]user.APIKey, error) {
	return s.store.ListAPIKeysByUser(ctx, userID)
}

// DeleteAPIKey removes an API key owned by userID.
func (s *AuthService) DeleteAPIKey(ctx context.Context, id, userID string) error {
	return s.store.DeleteAPIKey(ctx, id, userID)
}

// ListUsers returns a page of users with the total count.
func (s *AuthService) ListUsers(ctx context.Context, page, limit int) ([]user.User, int, error) {
	return s.store.ListUsers(ctx, page, limit)
}

// GetUser returns a user by ID.
func (s *AuthService) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.store.GetUser(ctx, id)
}

// UpdateUser applies the non-nil fields of req to the user. An email change
// drops the verified flag until the new address is confirmed.
func (s *AuthService) UpdateUser(ctx context.Context, id string, req user.UpdateRequest) (*user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != u.Email {
		u.Email = *req.Email
		if s.mailer != nil && s.mailer.Enabled() {
			u.EmailVerified = false
			token, err := generateRandomToken(32)
			if err != nil {
				return nil, fmt.Errorf("generate verification token: %w", err)
			}
			expiry := time.Now().Add(s.cfg.VerificationTTL)
			if err := s.store.SetVerificationToken(ctx, u.ID, hashSHA256(token), expiry); err != nil {
				return nil, fmt.Errorf("store verification token: %w", err)
			}
			if err := s.mailer.SendVerification(ctx, u.Email, token); err != nil {
				slog.Warn("verification email failed", "user_id", u.ID, "error", err)
			}
		}
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if req.IsAdmin != nil {
		// Promotion clears the client binding, demotion requires one to be
		// assigned separately before the user can act again.
		u.IsAdmin = *req.IsAdmin
		if u.IsAdmin {
			u.ClientID = nil
		}
	}

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser removes a user; their refresh tokens and API keys cascade.
func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	return s.store.DeleteUser(ctx, id)
}

// SeedDefaultAdmin creates the configured admin account if it does not
// exist yet. Without a configured password the seed is skipped.
func (s *AuthService) SeedDefaultAdmin(ctx context.Context) error {
	if s.cfg.AdminEmail == "" || s.cfg.AdminPassword == "" {
		slog.Info("admin seed skipped, no admin credentials configured")
		return nil
	}

	_, err := s.store.GetUserByEmail(ctx, s.cfg.AdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("check admin user: %w", err)
	}

	_, err = s.Register(ctx, &user.CreateRequest{
		Email:    s.cfg.AdminEmail,
		Name:     "Admin",
		Password: s.cfg.AdminPassword,
		IsAdmin:  true,
		Verified: true,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	slog.Info("seeded default admin user", "email", s.cfg.AdminEmail)
	return nil
}

// StartTokenCleanup starts a background goroutine that periodically purges
// expired revoked and refresh tokens. It stops when ctx is cancelled.
func (s *AuthService) StartTokenCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.store.PurgeExpiredTokens(ctx); err != nil {
					slog.Warn("failed to purge revoked tokens", "error", err)
				} else if n > 0 {
					slog.Info("purged expired revoked tokens", "count", n)
				}
				if n, err := s.store.PurgeExpiredRefreshTokens(ctx); err != nil {
					slog.Warn("failed to purge refresh tokens", "error", err)
				} else if n > 0 {
					slog.Info("purged expired refresh tokens", "count", n)
				}
			}
		}
	}()
}

// --- JWT ---

type jwtClaims struct {
	Email    string  `json:"email"`
	IsAdmin  bool    `json:"is_admin"`
	ClientID *string `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

func (s *AuthService) signJWT(u *user.User) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		Email:    u.Email,
		IsAdmin:  u.IsAdmin,
		ClientID: u.ClientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    jwtIssuer,
			Audience:  jwt.ClaimStrings{jwtAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *AuthService) verifyJWT(tokenStr string) (*user.TokenClaims, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithAudience(jwtAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	out := &user.TokenClaims{
		UserID:   claims.Subject,
		Email:    claims.Email,
		IsAdmin:  claims.IsAdmin,
		ClientID: claims.ClientID,
		JTI:      claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		out.Expiry = claims.ExpiresAt.Unix()
	}
	return out, nil
}

// --- Helpers ---

func hashSHA256(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
