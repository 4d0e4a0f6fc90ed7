package session

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	CookieName = "omaope_session"
	HeaderName = "X-Session-ID"
)

type contextKey struct{}

// IDFromContext extracts the session id placed by Middleware.
func IDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(string); ok {
		return v
	}
	return ""
}

// WithID returns a context carrying the session id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Middleware resolves the caller's session id from the X-Session-ID header or
// the session cookie, issuing a new one when neither holds a valid id. The
// id is echoed in the response header so non-browser clients can reuse it.
func Middleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := idFromRequest(r)
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
					Secure:   secure,
				})
			}
			w.Header().Set(HeaderName, id)
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}

func idFromRequest(r *http.Request) string {
	if id := r.Header.Get(HeaderName); isValidID(id) {
		return id
	}
	if c, err := r.Cookie(CookieName); err == nil && isValidID(c.Value) {
		return c.Value
	}
	return ""
}

func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return id != "" && err == nil
}
