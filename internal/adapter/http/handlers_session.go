package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/session"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
)

// authorizeSessionAccess checks that the caller may touch sessions of the
// given agent. A foreign agent surfaces as not found.
func (h *Handlers) authorizeSessionAccess(w http.ResponseWriter, r *http.Request, agentID string) bool {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return false
	}

	a, err := h.agents.GetForDispatch(r.Context(), agentID)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return false
	}
	if !claims.CanAccessClient(a.ClientID) {
		writeError(w, http.StatusNotFound, "agent not found")
		return false
	}
	return true
}

// CreateSession starts a session explicitly. Chat creates sessions lazily,
// this endpoint exists for pre-seeding state.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[session.Session](w, r)
	if !ok {
		return
	}
	if req.AppName == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "app_name and user_id are required")
		return
	}
	if !h.authorizeSessionAccess(w, r, req.AppName) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if err := h.sessions.Create(r.Context(), &req); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// GetSession returns a session with its merged state view. max_events limits
// history to the newest N events; after filters events by timestamp.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")
	externalID := urlParam(r, "externalID")
	if !h.authorizeSessionAccess(w, r, agentID) {
		return
	}

	maxEvents, _ := strconv.Atoi(r.URL.Query().Get("max_events"))
	var after *time.Time
	if v := r.URL.Query().Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be RFC 3339")
			return
		}
		after = &t
	}

	sess, err := h.sessions.Get(r.Context(), agentID, externalID, urlParam(r, "id"), maxEvents, after)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ListSessions returns an external user's sessions with an agent.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")
	externalID := urlParam(r, "externalID")
	if !h.authorizeSessionAccess(w, r, agentID) {
		return
	}

	sessions, err := h.sessions.List(r.Context(), agentID, externalID)
	if err != nil {
		writeDomainError(w, err, "sessions not found")
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// DeleteSession removes a session and its events. Shared app/user state
// survives.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")
	externalID := urlParam(r, "externalID")
	if !h.authorizeSessionAccess(w, r, agentID) {
		return
	}

	if err := h.sessions.Delete(r.Context(), agentID, externalID, urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AppendSessionEvent appends one event to a session, applying its state
// delta across scopes.
func (h *Handlers) AppendSessionEvent(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "agentID")
	externalID := urlParam(r, "externalID")
	if !h.authorizeSessionAccess(w, r, agentID) {
		return
	}

	ev, ok := readJSON[session.Event](w, r)
	if !ok {
		return
	}
	ev.AppName = agentID
	ev.UserID = externalID
	ev.SessionID = urlParam(r, "id")
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}

	if err := h.sessions.AppendEvent(r.Context(), &ev); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	if h.metrics != nil {
		h.metrics.EventsAppended.Add(r.Context(), 1)
	}
	writeJSON(w, http.StatusCreated, ev)
}
