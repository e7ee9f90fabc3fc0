package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/windfall/speech_portal/pkg/response"
)

type contextKey string

const TokenKey contextKey = "bearer_token"

// TokenVerifier authenticates bearer tokens.
type TokenVerifier interface {
	AuthEnabled() bool
	Verify(ctx context.Context, token string) (bool, error)
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" when absent or malformed.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// APIKeyAuth rejects requests without a valid bearer key. It lets everything
// through when authentication is disabled.
func APIKeyAuth(verifier TokenVerifier, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.AuthEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") == "" {
				response.Unauthorized(w, "missing authorization header")
				return
			}
			token := BearerToken(r)
			if token == "" {
				response.Unauthorized(w, "invalid authorization format")
				return
			}

			ok, err := verifier.Verify(r.Context(), token)
			if err != nil {
				log.Error().Err(err).Str("path", r.URL.Path).Msg("API key verification failed")
				response.InternalError(w, "failed to verify api key")
				return
			}
			if !ok {
				response.Unauthorized(w, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), TokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaticBearer guards a route group with a single shared key. With an empty
// key the whole group answers 404.
func StaticBearer(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				response.NotFound(w, "endpoint not enabled")
				return
			}
			token := BearerToken(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				response.Unauthorized(w, "Invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), TokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetToken extracts the authenticated bearer token from the request context.
func GetToken(ctx context.Context) string {
	if t, ok := ctx.Value(TokenKey).(string); ok {
		return t
	}
	return ""
}
