package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/user"
)

type claimsCtxKey struct{}
type apiKeyCtxKey struct{}

// TokenValidator validates bearer tokens and API keys into token claims.
// Implemented by service.AuthService.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*user.TokenClaims, error)
	ValidateAPIKey(ctx context.Context, key string) (*user.TokenClaims, *user.APIKey, error)
}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/healthz":                     true,
	"/readyz":                      true,
	"/api/v1/auth/login":           true,
	"/api/v1/auth/register":        true,
	"/api/v1/auth/refresh":         true,
	"/api/v1/auth/verify-email":    true,
	"/api/v1/auth/forgot-password": true,
	"/api/v1/auth/reset-password":  true,
	"/api/v1/chat/webhooks/engine": true, // HMAC-verified separately
}

// Auth returns middleware that validates JWT or API key credentials and
// stores the resulting claims in the request context.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			// WebSocket clients cannot set headers; accept ?token= there.
			if r.URL.Path == "/ws" {
				tokenParam := r.URL.Query().Get("token")
				if tokenParam == "" {
					http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
					return
				}
				claims, err := validator.ValidateAccessToken(r.Context(), tokenParam)
				if err != nil {
					http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
					return
				}
				ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// X-API-Key header first.
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				claims, key, err := validator.ValidateAPIKey(r.Context(), apiKey)
				if err != nil {
					http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
					return
				}
				ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
				ctx = context.WithValue(ctx, apiKeyCtxKey{}, key)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// Authorization: Bearer <token>.
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateAccessToken(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the authenticated claims from the request context.
func ClaimsFromContext(ctx context.Context) *user.TokenClaims {
	claims, _ := ctx.Value(claimsCtxKey{}).(*user.TokenClaims)
	return claims
}

// APIKeyFromContext returns the API key used for authentication, or nil for JWT auth.
func APIKeyFromContext(ctx context.Context) *user.APIKey {
	key, _ := ctx.Value(apiKeyCtxKey{}).(*user.APIKey)
	return key
}

// WithClaims injects claims into a context. Exported for handler tests.
func WithClaims(ctx context.Context, claims *user.TokenClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}
