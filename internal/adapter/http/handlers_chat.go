package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/chat"
	"github.com/victorgrein/magnus-ai-sub001/internal/domain/session"
	"github.com/victorgrein/magnus-ai-sub001/internal/middleware"
)

// Chat runs one blocking chat turn against the engine.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[chat.Request](w, r)
	if !ok {
		return
	}

	start := time.Now()
	claims := middleware.ClaimsFromContext(r.Context())
	resp, err := h.chat.SendMessage(r.Context(), claims, &req)
	if h.metrics != nil {
		h.metrics.ChatRequests.Add(r.Context(), 1)
		h.metrics.ChatDuration.Record(r.Context(), time.Since(start).Seconds())
		if err != nil {
			h.metrics.ChatFailures.Add(r.Context(), 1)
		}
	}
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChatStream runs a streaming chat turn, emitting frames as server-sent
// events. Each frame goes out as one data: line and is flushed immediately.
func (h *Handlers) ChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[chat.Request](w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	start := time.Now()
	claims := middleware.ClaimsFromContext(r.Context())
	wroteFrame := false
	err := h.chat.StreamMessage(r.Context(), claims, &req, func(f chat.Frame) error {
		data, marshalErr := json.Marshal(f)
		if marshalErr != nil {
			return marshalErr
		}
		if _, writeErr := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Type, data); writeErr != nil {
			return writeErr
		}
		wroteFrame = true
		flusher.Flush()
		return nil
	})
	if h.metrics != nil {
		h.metrics.ChatRequests.Add(r.Context(), 1)
		h.metrics.ChatDuration.Record(r.Context(), time.Since(start).Seconds())
		if err != nil {
			h.metrics.ChatFailures.Add(r.Context(), 1)
		}
	}
	// Errors raised before the first frame can still use a JSON status; after
	// that the stream already carries an error frame.
	if err != nil && !wroteFrame {
		writeDomainError(w, err, "agent not found")
	}
}

// EngineCallback ingests an asynchronous event from the engine. The route is
// public but HMAC-verified by middleware.
func (h *Handlers) EngineCallback(w http.ResponseWriter, r *http.Request) {
	ev, ok := readJSON[session.Event](w, r)
	if !ok {
		return
	}
	if ev.AppName == "" || ev.UserID == "" || ev.SessionID == "" {
		writeError(w, http.StatusBadRequest, "app_name, user_id and session_id are required")
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if err := h.chat.HandleEngineCallback(r.Context(), &ev); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	if h.metrics != nil {
		h.metrics.EventsAppended.Add(r.Context(), 1)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// WS upgrades to a WebSocket subscription on the caller's client events.
func (h *Handlers) WS(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "websocket hub not running")
		return
	}
	h.hub.HandleWS(w, r)
}
