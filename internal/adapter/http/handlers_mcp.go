package http

import (
	"net/http"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/mcp"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
)

// CreateMCPServer registers an MCP server definition. Admin only.
func (h *Handlers) CreateMCPServer(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[mcp.Server](w, r)
	if !ok {
		return
	}

	srv, err := h.mcp.Create(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "mcp server not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "mcp.create", "mcp_server", srv.ID, map[string]string{"name": srv.Name}, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusCreated, srv)
}

type mcpServerResponse struct {
	mcp.Server
	Tools []mcp.ServerTool `json:"tools"`
}

// GetMCPServer returns a server with its cached tool catalog.
func (h *Handlers) GetMCPServer(w http.ResponseWriter, r *http.Request) {
	srv, tools, err := h.mcp.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "mcp server not found")
		return
	}
	if tools == nil {
		tools = []mcp.ServerTool{}
	}
	writeJSON(w, http.StatusOK, mcpServerResponse{Server: *srv, Tools: tools})
}

// ListMCPServers returns all registered servers.
func (h *Handlers) ListMCPServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.mcp.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "mcp servers not found")
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

// UpdateMCPServer replaces a server definition. Admin only.
func (h *Handlers) UpdateMCPServer(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[mcp.Server](w, r)
	if !ok {
		return
	}

	id := urlParam(r, "id")
	srv, err := h.mcp.Update(r.Context(), id, &req)
	if err != nil {
		writeDomainError(w, err, "mcp server not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "mcp.update", "mcp_server", id, nil, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusOK, srv)
}

// DeleteMCPServer removes a server. Admin only.
func (h *Handlers) DeleteMCPServer(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.mcp.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "mcp server not found")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	h.audit.Record(r.Context(), claims, "mcp.delete", "mcp_server", id, nil, clientIP(r), r.UserAgent())
	w.WriteHeader(http.StatusNoContent)
}

// TestMCPServer runs a live connectivity probe against a registered server.
func (h *Handlers) TestMCPServer(w http.ResponseWriter, r *http.Request) {
	result, err := h.mcp.Test(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "mcp server not found")
		return
	}
	if h.metrics != nil {
		h.metrics.MCPProbes.Add(r.Context(), 1)
	}
	writeJSON(w, http.StatusOK, result)
}

// TestMCPServerDefinition probes an unsaved definition without registering it.
func (h *Handlers) TestMCPServerDefinition(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[mcp.Server](w, r)
	if !ok {
		return
	}

	result, err := h.mcp.TestDefinition(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "mcp server not found")
		return
	}
	if h.metrics != nil {
		h.metrics.MCPProbes.Add(r.Context(), 1)
	}
	writeJSON(w, http.StatusOK, result)
}
