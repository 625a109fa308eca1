package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/marks/internal/auth"
	"github.com/dukerupert/marks/internal/store"
)

// Cookie names match what the exchange endpoint sets; page scripts read
// them directly, so they are deliberately not HTTP-only.
const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
)

// RequireAuth restores the session named by the access token cookie and
// attaches it to the request context. Requests with no live session get a
// 401; the root page is not behind this — an anonymous visitor still sees
// the sign-in screen.
func RequireAuth(sessions *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AccessTokenCookie)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			sess, err := sessions.GetByAccessToken(cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w)
				return
			}

			ctx := auth.WithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
