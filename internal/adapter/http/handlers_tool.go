package http

import (
	"net/http"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/tool"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
)

// CreateTool registers a tool definition. Admin only.
func (h *Handlers) CreateTool(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tool.Tool](w, r)
	if !ok {
		return
	}

	t, err := h.tools.Create(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "tool not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "tool.create", "tool", t.ID, map[string]string{"name": t.Name}, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusCreated, t)
}

// GetTool returns a tool definition.
func (h *Handlers) GetTool(w http.ResponseWriter, r *http.Request) {
	t, err := h.tools.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "tool not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListTools returns a page of the tool registry.
func (h *Handlers) ListTools(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	tools, total, err := h.tools.List(r.Context(), page, limit)
	if err != nil {
		writeDomainError(w, err, "tools not found")
		return
	}
	writeJSON(w, http.StatusOK, pageResponse[tool.Tool]{Items: tools, Total: total, Page: page, Limit: limit})
}

// UpdateTool replaces a tool definition. Admin only.
func (h *Handlers) UpdateTool(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tool.Tool](w, r)
	if !ok {
		return
	}

	id := urlParam(r, "id")
	t, err := h.tools.Update(r.Context(), id, &req)
	if err != nil {
		writeDomainError(w, err, "tool not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "tool.update", "tool", id, nil, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusOK, t)
}

// DeleteTool removes a tool definition. Admin only.
func (h *Handlers) DeleteTool(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.tools.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "tool not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "tool.delete", "tool", id, nil, clientIP(r), r.UserAgent())
	w.WriteHeader(http.StatusNoContent)
}
