package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dukerupert/marks/internal/bus"
	"github.com/dukerupert/marks/internal/identity"
	"github.com/dukerupert/marks/internal/middleware"
	"github.com/dukerupert/marks/internal/model"
	"github.com/dukerupert/marks/internal/reconciler"
	"github.com/dukerupert/marks/internal/store"
)

const sessionCookieMaxAge = 7 * 24 * 60 * 60 // 7 days

type AuthHandler struct {
	identity   identity.Client
	sessions   *store.SessionStore
	bus        *bus.Bus
	reconciler *reconciler.Reconciler
	production bool
	logger     *slog.Logger
}

func NewAuthHandler(idc identity.Client, sessions *store.SessionStore, b *bus.Bus, rec *reconciler.Reconciler, production bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity:   idc,
		sessions:   sessions,
		bus:        b,
		reconciler: rec,
		production: production,
		logger:     logger,
	}
}

// Login sends the browser to the identity provider.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.identity.AuthCodeURL(uuid.NewString()), http.StatusSeeOther)
}

// Callback is the dedicated exchange endpoint. It redeems the one-time
// authorization code, persists the resulting token pair as two
// script-readable cookies, and redirects to the root. Any exchange failure
// redirects with an error flag and sets nothing — that flag is the only
// signal the user gets.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	sess, err := h.identity.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("code exchange failed", "error", err)
		http.Redirect(w, r, "/?error=auth_failed", http.StatusSeeOther)
		return
	}

	if err := h.sessions.Create(sess); err != nil {
		h.logger.Error("persist session", "error", err)
		http.Redirect(w, r, "/?error=auth_failed", http.StatusSeeOther)
		return
	}

	h.setSessionCookies(w, sess)
	h.bus.PublishAuth(model.AuthEvent{Kind: model.AuthSignedIn, UserID: sess.UserID, Session: sess})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type tokenRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Token establishes a session from raw fragment-delivered tokens. The page
// script strips the fragment from the visible URL before posting here, so
// the credentials never survive in history.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	sess, err := h.identity.SessionFromTokens(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		h.logger.Warn("fragment session establishment failed", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid tokens"})
		return
	}

	if err := h.sessions.Create(sess); err != nil {
		h.logger.Error("persist session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	h.setSessionCookies(w, sess)
	h.bus.PublishAuth(model.AuthEvent{Kind: model.AuthSignedIn, UserID: sess.UserID, Session: sess})
	writeJSON(w, http.StatusOK, map[string]string{
		"state":   string(reconciler.StateAuthenticated),
		"user_id": sess.UserID,
	})
}

// Refresh swaps the cookie session for a fresh token pair and pushes a
// token_refreshed event so open views replace their session wholesale.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	current := h.sessionFromCookies(r)
	if current == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}

	next, err := h.identity.Refresh(r.Context(), current)
	if err != nil {
		h.logger.Warn("token refresh failed", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh failed"})
		return
	}

	if err := h.sessions.Replace(current.AccessToken, next); err != nil {
		h.logger.Error("replace session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	h.setSessionCookies(w, next)
	h.bus.PublishAuth(model.AuthEvent{Kind: model.AuthTokenRefreshed, UserID: next.UserID, Session: next})
	writeJSON(w, http.StatusOK, map[string]string{
		"state":   string(reconciler.StateAuthenticated),
		"user_id": next.UserID,
	})
}

// Signout terminates the backend session, clears both cookies, and sends
// the browser back to the root, where resolution lands on unauthenticated.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	if sess := h.sessionFromCookies(r); sess != nil {
		if err := h.sessions.DeleteByAccessToken(sess.AccessToken); err != nil {
			h.logger.Error("delete session", "error", err)
		}
		h.bus.PublishAuth(model.AuthEvent{Kind: model.AuthSignedOut, UserID: sess.UserID})
	}

	h.clearSessionCookies(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Session reports the current resolution for the page script.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	out := h.reconciler.Resolve(r.Context(), reconciler.Input{
		AccessToken:  cookieValue(r, middleware.AccessTokenCookie),
		RefreshToken: cookieValue(r, middleware.RefreshTokenCookie),
		Host:         r.Host,
	})

	resp := map[string]string{"state": string(out.State)}
	if out.Session != nil {
		resp["user_id"] = out.Session.UserID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) sessionFromCookies(r *http.Request) *model.Session {
	token := cookieValue(r, middleware.AccessTokenCookie)
	if token == "" {
		return nil
	}
	sess, err := h.sessions.GetByAccessToken(token)
	if err != nil {
		h.logger.Error("restore session", "error", err)
		return nil
	}
	return sess
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, sess *model.Session) {
	for name, value := range map[string]string{
		middleware.AccessTokenCookie:  sess.AccessToken,
		middleware.RefreshTokenCookie: sess.RefreshToken,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   sessionCookieMaxAge,
			SameSite: http.SameSiteLaxMode,
			Secure:   h.production,
			HttpOnly: false, // the page script reads these to restore sessions
		})
	}
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessTokenCookie, middleware.RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:   name,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
