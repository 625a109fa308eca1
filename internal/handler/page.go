package handler

import (
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/dukerupert/marks/internal/middleware"
	"github.com/dukerupert/marks/internal/reconciler"
)

//go:embed page.html
var pageHTML string

// PageHandler serves the single page. The server resolves what it can see
// (cookies, the code query parameter); fragment tokens never reach the
// server, so the page script handles that shape — it strips the fragment
// from the URL and posts the tokens to /auth/token.
type PageHandler struct {
	reconciler *reconciler.Reconciler
	template   *template.Template
	logger     *slog.Logger
}

func NewPageHandler(rec *reconciler.Reconciler, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		reconciler: rec,
		template:   template.Must(template.New("page").Parse(pageHTML)),
		logger:     logger,
	}
}

func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	out := h.reconciler.Resolve(r.Context(), reconciler.Input{
		AccessToken:  cookieValue(r, middleware.AccessTokenCookie),
		RefreshToken: cookieValue(r, middleware.RefreshTokenCookie),
		Code:         r.URL.Query().Get("code"),
		Host:         r.Host,
	})

	if out.RedirectURL != "" {
		http.Redirect(w, r, out.RedirectURL, http.StatusSeeOther)
		return
	}

	data := map[string]any{
		"State":      string(out.State),
		"AuthFailed": r.URL.Query().Get("error") == "auth_failed",
	}
	if out.Session != nil {
		data["UserID"] = out.Session.UserID
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, data); err != nil {
		h.logger.Error("render page", "error", err)
	}
}
