package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/marks/internal/auth"
	"github.com/dukerupert/marks/internal/bookmarks"
	"github.com/dukerupert/marks/internal/bus"
	"github.com/dukerupert/marks/internal/reconciler"
	"github.com/dukerupert/marks/internal/store"
)

// HandleWebSocket upgrades an authenticated request and runs it as a live
// sync client: an initial bookmark snapshot, a fresh one after every change
// notification, and auth frames until sign-out closes the socket.
func HandleWebSocket(hub *Hub, bookmarkStore *store.BookmarkStore, b *bus.Bus, rec *reconciler.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := auth.SessionFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		vm := bookmarks.New(sess.UserID, bookmarkStore, b, hub.logger.With("user", sess.UserID))
		client := NewClient(hub, conn, sess, vm, rec)
		client.Run(r.Context())
	}
}
