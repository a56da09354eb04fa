package http

import (
	"net/http"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/agent"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
)

// CreateAgent registers an agent under the caller's client scope.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[agent.Agent](w, r)
	if !ok {
		return
	}
	req.ClientID = clientID

	a, err := h.agents.Create(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "agent.create", "agent", a.ID, map[string]string{"name": a.Name, "type": string(a.Type)}, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusCreated, a.Sanitized())
}

// GetAgent returns an agent with secret config fields elided.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	a, err := h.agents.Get(r.Context(), clientID, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a.Sanitized())
}

// ListAgents returns a page of the client's agents, optionally filtered by
// folder_id.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	var folderID *string
	if f := r.URL.Query().Get("folder_id"); f != "" {
		folderID = &f
	}
	page, limit := pagination(r)

	agents, total, err := h.agents.List(r.Context(), clientID, folderID, page, limit)
	if err != nil {
		writeDomainError(w, err, "agents not found")
		return
	}

	out := make([]agent.Agent, len(agents))
	for i := range agents {
		out[i] = agents[i].Sanitized()
	}
	writeJSON(w, http.StatusOK, pageResponse[agent.Agent]{Items: out, Total: total, Page: page, Limit: limit})
}

// UpdateAgent replaces an agent definition, pinned on its version.
func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[agent.Agent](w, r)
	if !ok {
		return
	}
	req.ID = urlParam(r, "id")
	req.ClientID = clientID

	// The update runs against the caller's copy of the agent; a foreign ID
	// surfaces as not found.
	if _, err := h.agents.Get(r.Context(), clientID, req.ID); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	a, err := h.agents.Update(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "agent.update", "agent", a.ID, nil, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusOK, a.Sanitized())
}

// DeleteAgent removes an agent in the caller's client scope.
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	id := urlParam(r, "id")
	if err := h.agents.Delete(r.Context(), clientID, id); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "agent.delete", "agent", id, nil, clientIP(r), r.UserAgent())
	w.WriteHeader(http.StatusNoContent)
}

// CreateFolder creates an agent folder.
func (h *Handlers) CreateFolder(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[agent.CreateFolderRequest](w, r)
	if !ok {
		return
	}
	req.ClientID = clientID

	f, err := h.agents.CreateFolder(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "folder not found")
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// GetFolder returns a folder in the caller's client scope.
func (h *Handlers) GetFolder(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	f, err := h.agents.GetFolder(r.Context(), clientID, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "folder not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// ListFolders returns all folders of the caller's client.
func (h *Handlers) ListFolders(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	folders, err := h.agents.ListFolders(r.Context(), clientID)
	if err != nil {
		writeDomainError(w, err, "folders not found")
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

// UpdateFolder renames a folder.
func (h *Handlers) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	id := urlParam(r, "id")
	existing, err := h.agents.GetFolder(r.Context(), clientID, id)
	if err != nil {
		writeDomainError(w, err, "folder not found")
		return
	}

	req, ok := readJSON[agent.CreateFolderRequest](w, r)
	if !ok {
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	existing.Description = req.Description

	f, err := h.agents.UpdateFolder(r.Context(), existing)
	if err != nil {
		writeDomainError(w, err, "folder not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteFolder removes a folder; its agents fall back to no folder.
func (h *Handlers) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	if err := h.agents.DeleteFolder(r.Context(), clientID, urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "folder not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignFolderRequest struct {
	FolderID *string `json:"folder_id"`
}

// AssignAgentFolder moves an agent into a folder, or out with a null
// folder_id.
func (h *Handlers) AssignAgentFolder(w http.ResponseWriter, r *http.Request) {
	clientID, ok := scopeClientID(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[assignFolderRequest](w, r)
	if !ok {
		return
	}

	if err := h.agents.AssignFolder(r.Context(), clientID, urlParam(r, "id"), req.FolderID); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
