package http

import (
	"net/http"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
)

// Register creates a new user account. Self-service registrations are never
// admin and start unverified when mail is configured.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.CreateRequest](w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || !claims.IsAdmin {
		// Only admins may mint admin or pre-verified accounts.
		req.IsAdmin = false
		req.Verified = false
	}

	u, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}

	h.audit.Record(r.Context(), claims, "user.register", "user", u.ID, nil, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusCreated, u)
}

// VerifyEmail consumes the token from the verification link.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeDomainError(w, err, "token not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Login authenticates with email and password.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r)
	if !ok {
		return
	}

	resp, refresh, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.audit.Record(r.Context(), nil, "auth.login_failed", "user", req.Email, nil, clientIP(r), r.UserAgent())
		writeDomainError(w, err, "user not found")
		return
	}
	resp.RefreshToken = refresh

	writeJSON(w, http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh token and issues a new access token.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[refreshRequest](w, r)
	if !ok {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	resp, refresh, err := h.auth.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		writeDomainError(w, err, "token not found")
		return
	}
	resp.RefreshToken = refresh

	writeJSON(w, http.StatusOK, resp)
}

// Logout revokes the current access token and drops all refresh tokens.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.auth.Logout(r.Context(), claims.UserID, claims.JTI, time.Unix(claims.Expiry, 0)); err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	u, err := h.auth.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword sends a reset email. The response never reveals whether the
// address has an account.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[forgotPasswordRequest](w, r)
	if !ok {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "if the account exists, an email was sent"})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword consumes a reset token.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[resetPasswordRequest](w, r)
	if !ok {
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeDomainError(w, err, "token not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword verifies the current password and sets the new one.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	req, ok := readJSON[changePasswordRequest](w, r)
	if !ok {
		return
	}

	if err := h.auth.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateAPIKey mints a new API key for the authenticated user.
func (h *Handlers) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	req, ok := readJSON[user.CreateAPIKeyRequest](w, r)
	if !ok {
		return
	}

	resp, err := h.auth.CreateAPIKey(r.Context(), claims.UserID, req)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}

	h.audit.Record(r.Context(), claims, "apikey.create", "api_key", resp.APIKey.ID, nil, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusCreated, resp)
}

// ListAPIKeys returns the authenticated user's API keys.
func (h *Handlers) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	keys, err := h.auth.ListAPIKeys(r.Context(), claims.UserID)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// DeleteAPIKey removes one of the authenticated user's API keys.
func (h *Handlers) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := urlParam(r, "id")
	if err := h.auth.DeleteAPIKey(r.Context(), id, claims.UserID); err != nil {
		writeDomainError(w, err, "api key not found")
		return
	}

	h.audit.Record(r.Context(), claims, "apikey.delete", "api_key", id, nil, clientIP(r), r.UserAgent())
	w.WriteHeader(http.StatusNoContent)
}
