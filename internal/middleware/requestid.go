// Package middleware provides HTTP middleware for the magnus API.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/victorgrein/magnus-ai-sub001/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with an id for log correlation. An incoming
// X-Request-ID is trusted as-is so ids survive proxy hops; otherwise a fresh
// one is minted. The id lands in the request context and on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = newRequestID()
		}

		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

func newRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
