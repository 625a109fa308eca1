package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/marks/internal/bus"
	"github.com/dukerupert/marks/internal/config"
	"github.com/dukerupert/marks/internal/handler"
	"github.com/dukerupert/marks/internal/identity"
	"github.com/dukerupert/marks/internal/middleware"
	"github.com/dukerupert/marks/internal/reconciler"
	"github.com/dukerupert/marks/internal/store"
	ws "github.com/dukerupert/marks/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	bus           *bus.Bus
	reconciler    *reconciler.Reconciler
	pageH         *handler.PageHandler
	authH         *handler.AuthHandler
	bookmarkH     *handler.BookmarkHandler
	bookmarkStore *store.BookmarkStore
	sessionStore  *store.SessionStore
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, idc identity.Client, b *bus.Bus, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	bookmarkStore := store.NewBookmarkStore(db)
	sessionStore := store.NewSessionStore(db)

	rec := reconciler.New(idc, sessionStore, b, cfg.BaseURL, cfg.ForeignOrigin, logger.With("component", "reconciler"))

	return &Server{
		db:            db,
		hub:           hub,
		bus:           b,
		reconciler:    rec,
		pageH:         handler.NewPageHandler(rec, logger.With("component", "page")),
		authH:         handler.NewAuthHandler(idc, sessionStore, b, rec, cfg.Production(), logger.With("component", "auth")),
		bookmarkH:     handler.NewBookmarkHandler(bookmarkStore, b, logger.With("component", "bookmark")),
		bookmarkStore: bookmarkStore,
		sessionStore:  sessionStore,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes. The root page and the auth endpoints read session
	// cookies themselves, so they work for signed-out visitors too.
	mux.HandleFunc("GET /{$}", s.pageH.Index)
	mux.HandleFunc("GET /auth/login", s.authH.Login)
	mux.HandleFunc("GET /auth/callback", s.rateLimitedHandler(s.authH.Callback))
	mux.HandleFunc("POST /auth/token", s.rateLimitedHandler(s.authH.Token))
	mux.HandleFunc("POST /auth/refresh", s.rateLimitedHandler(s.authH.Refresh))
	mux.HandleFunc("POST /auth/signout", s.authH.Signout)
	mux.HandleFunc("GET /api/session", s.authH.Session)
	mux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes require a known, unexpired session.
	requireAuth := middleware.RequireAuth(s.sessionStore)
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/bookmarks", s.bookmarkH.List)
	protected.HandleFunc("POST /api/bookmarks", s.bookmarkH.Create)
	protected.HandleFunc("DELETE /api/bookmarks/{id}", s.bookmarkH.Delete)
	protected.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.bookmarkStore, s.bus, s.reconciler))
	mux.Handle("/api/bookmarks", requireAuth(protected))
	mux.Handle("/api/bookmarks/{id}", requireAuth(protected))
	mux.Handle("/ws", requireAuth(protected))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}
