package http

import (
	"net/http"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/client"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
)

// CreateClient provisions a client plus its initial user. Admin only.
func (h *Handlers) CreateClient(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[client.CreateRequest](w, r)
	if !ok {
		return
	}

	c, err := h.clients.Create(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "client not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "client.create", "client", c.ID, map[string]string{"name": c.Name}, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusCreated, c)
}

// GetClient returns a client. Non-admin users only see their own.
func (h *Handlers) GetClient(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	id := urlParam(r, "id")
	if claims != nil && !claims.CanAccessClient(id) {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}

	c, err := h.clients.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListClients returns a page of clients. Non-admin users get only their own.
func (h *Handlers) ListClients(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	page, limit := pagination(r)

	if claims != nil && !claims.IsAdmin {
		if claims.ClientID == nil {
			writeJSON(w, http.StatusOK, pageResponse[client.Client]{Items: []client.Client{}, Page: page, Limit: limit})
			return
		}
		c, err := h.clients.Get(r.Context(), *claims.ClientID)
		if err != nil {
			writeDomainError(w, err, "client not found")
			return
		}
		writeJSON(w, http.StatusOK, pageResponse[client.Client]{Items: []client.Client{*c}, Total: 1, Page: page, Limit: limit})
		return
	}

	clients, total, err := h.clients.List(r.Context(), page, limit)
	if err != nil {
		writeDomainError(w, err, "clients not found")
		return
	}
	writeJSON(w, http.StatusOK, pageResponse[client.Client]{Items: clients, Total: total, Page: page, Limit: limit})
}

// UpdateClient applies a partial update. Admins may update any client,
// other users only their own.
func (h *Handlers) UpdateClient(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	id := urlParam(r, "id")
	if claims != nil && !claims.CanAccessClient(id) {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}

	req, ok := readJSON[client.UpdateRequest](w, r)
	if !ok {
		return
	}

	c, err := h.clients.Update(r.Context(), id, &req)
	if err != nil {
		writeDomainError(w, err, "client not found")
		return
	}

	h.audit.Record(r.Context(), claims, "client.update", "client", id, req, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusOK, c)
}

// DeleteClient removes a client. Admin only.
func (h *Handlers) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.clients.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "client not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "client.delete", "client", id, nil, clientIP(r), r.UserAgent())
	w.WriteHeader(http.StatusNoContent)
}
