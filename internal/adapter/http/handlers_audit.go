package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/audit"
)

// ListAudit returns a filtered page of the audit trail. Admin only.
func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	f := audit.Filter{
		UserID:       q.Get("user_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		Page:         page,
		Limit:        limit,
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be RFC 3339")
			return
		}
		f.Until = t
	}

	entries, total, err := h.audit.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, err, "audit entries not found")
		return
	}
	writeJSON(w, http.StatusOK, pageResponse[audit.Entry]{Items: entries, Total: total, Page: f.Page, Limit: f.Limit})
}
