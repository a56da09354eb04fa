package http

import (
	"net/http"
	"strconv"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/contact"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
)

// CreateContact registers a contact under the caller's client scope.
func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[contact.CreateRequest](w, r)
	if !ok {
		return
	}
	req.ClientID = clientID

	c, err := h.contacts.Create(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "contact not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "contact.create", "contact", c.ID, nil, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusCreated, c)
}

// GetContact returns a contact in the caller's client scope.
func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	c, err := h.contacts.Get(r.Context(), clientID, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListContacts returns a filtered page of the client's contacts.
func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	f := contact.ListFilter{
		Search: r.URL.Query().Get("search"),
		Page:   page,
		Limit:  limit,
	}

	contacts, total, err := h.contacts.List(r.Context(), clientID, f)
	if err != nil {
		writeDomainError(w, err, "contacts not found")
		return
	}
	writeJSON(w, http.StatusOK, pageResponse[contact.Contact]{Items: contacts, Total: total, Page: f.Page, Limit: f.Limit})
}

// UpdateContact applies a partial update within the caller's client scope.
func (h *Handlers) UpdateContact(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[contact.UpdateRequest](w, r)
	if !ok {
		return
	}

	id := urlParam(r, "id")
	c, err := h.contacts.Update(r.Context(), clientID, id, &req)
	if err != nil {
		writeDomainError(w, err, "contact not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "contact.update", "contact", id, nil, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusOK, c)
}

// DeleteContact removes a contact in the caller's client scope.
func (h *Handlers) DeleteContact(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	id := urlParam(r, "id")
	if err := h.contacts.Delete(r.Context(), clientID, id); err != nil {
		writeDomainError(w, err, "contact not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "contact.delete", "contact", id, nil, clientIP(r), r.UserAgent())
	w.WriteHeader(http.StatusNoContent)
}
