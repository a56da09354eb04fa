package http

import (
	"net/http"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
)

// CreateUser registers a user on behalf of an admin. Unlike public
// registration, is_admin and verified are honored as given.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.CreateRequest](w, r)
	if !ok {
		return
	}

	u, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "user.create", "user", u.ID, nil, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusCreated, u)
}

// ListUsers returns a page of users. Admin only.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	users, total, err := h.auth.ListUsers(r.Context(), page, limit)
	if err != nil {
		writeDomainError(w, err, "users not found")
		return
	}
	writeJSON(w, http.StatusOK, pageResponse[user.User]{Items: users, Total: total, Page: page, Limit: limit})
}

// GetUser returns one user. Admin only.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.GetUser(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateUser applies a partial update. Admin only.
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.UpdateRequest](w, r)
	if !ok {
		return
	}

	id := urlParam(r, "id")
	u, err := h.auth.UpdateUser(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "user.update", "user", id, req, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusOK, u)
}

// DeleteUser removes a user. Admin only; self-deletion is rejected.
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	id := urlParam(r, "id")
	if claims != nil && claims.UserID == id {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	if err := h.auth.DeleteUser(r.Context(), id); err != nil {
		writeDomainError(w, err, "user not found")
		return
	}

	h.audit.Record(r.Context(), claims, "user.delete", "user", id, nil, clientIP(r), r.UserAgent())
	w.WriteHeader(http.StatusNoContent)
}
