package websocket

import (
	"context"
	"encoding/json"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/marks/internal/bookmarks"
	"github.com/dukerupert/marks/internal/model"
	"github.com/dukerupert/marks/internal/reconciler"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client is a single WebSocket connection bound to one authenticated user.
// It owns a bookmark view-model (the fetch-on-mount plus change
// subscription) and an auth watch for the lifetime of the socket.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	send   chan []byte
	userID string

	vm   *bookmarks.ViewModel
	rec  *reconciler.Reconciler
	sess *model.Session
}

// NewClient creates a Client for the given session.
func NewClient(hub *Hub, conn *ws.Conn, sess *model.Session, vm *bookmarks.ViewModel, rec *reconciler.Reconciler) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: sess.UserID,
		vm:     vm,
		rec:    rec,
		sess:   sess,
	}
}

// Run registers the client, starts the sync and write pumps, and blocks on
// the read pump until the connection closes. Both subscriptions are
// released exactly once on return.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handle := c.rec.Watch(ctx, c.sess, func(state reconciler.State, _ *model.Session) {
		c.enqueue(Message{Type: "auth", Kind: string(stateKind(state))})
		if state == reconciler.StateUnauthenticated {
			// Signed out elsewhere: this socket is done.
			cancel()
		}
	})
	defer handle.Stop()

	go c.vm.Run(ctx, func(list []model.Bookmark) {
		c.enqueue(Message{Type: "bookmarks", Bookmarks: list})
	})

	go c.writePump(ctx)
	c.readPump(ctx)
}

func stateKind(state reconciler.State) model.AuthEventKind {
	if state == reconciler.StateUnauthenticated {
		return model.AuthSignedOut
	}
	return model.AuthTokenRefreshed
}

// enqueue marshals and queues a frame, dropping it if the client is not
// draining fast enough.
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("marshal frame", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		// Client buffer full — drop rather than block; the next snapshot
		// supersedes this one anyway
	}
}

// readPump reads and discards all incoming messages. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
	}
}

// writePump drains the send channel onto the socket and pings periodically
// to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
