package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	domain "github.com/kzhama/todoauth/internal/domain/auth"
	"github.com/kzhama/todoauth/internal/domain/user"
	"github.com/kzhama/todoauth/internal/secret"
)

const DefaultAccessCookie = "access_token"

type ctxUserKey struct{}

// UserFromContext returns the user the middleware resolved for the request.
func UserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(ctxUserKey{}).(*user.User)
	return u, ok
}

// TokenFromRequest extracts the access token from the named cookie or the
// Authorization Bearer header. The cookie takes precedence when both are
// present.
func TokenFromRequest(r *http.Request, cookieName string) (secret.String, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return secret.New(c.Value), true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return secret.String{}, false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return secret.String{}, false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return secret.String{}, false
	}
	return secret.New(token), true
}

// Middleware guards a handler with session resolution. Missing, invalid and
// expired tokens, inactive users and locked accounts all produce the same
// response, so an unauthenticated caller learns nothing about account
// state.
func (s *Service) Middleware(cookieName string) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultAccessCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := TokenFromRequest(r, cookieName)
			if !ok {
				writeUnauthorized(w)
				return
			}
			u, err := s.ResolveSession(r.Context(), token)
			if errors.Is(err, domain.ErrUnauthorized) {
				writeUnauthorized(w)
				return
			}
			if err != nil {
				// Store failure, not an auth outcome.
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, u)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"messages":["unauthorized"]}`))
}
