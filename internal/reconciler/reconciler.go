// Package reconciler resolves the three redirect shapes an OAuth provider
// can return control with — a restored cookie session, a ?code= query
// parameter, or raw tokens in the URL fragment — into exactly one
// authenticated session or "unauthenticated", and keeps that value current
// against the auth state change stream.
package reconciler

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/dukerupert/marks/internal/bus"
	"github.com/dukerupert/marks/internal/identity"
	"github.com/dukerupert/marks/internal/model"
	"github.com/dukerupert/marks/internal/store"
)

// State is the reconciler's resolution state. There is no terminal state;
// the machine lives as long as the page.
type State string

const (
	// StateLoading holds before the first resolution completes, and after a
	// fragment-token failure (which yields no definitive signal).
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
)

// Input is everything one page load can carry: the persisted cookie pair,
// an authorization code from the query string, fragment-delivered tokens,
// and the host the page was actually served from. On a given load only one
// source will logically match, but all are attempted in order.
type Input struct {
	AccessToken  string
	RefreshToken string

	Code string

	FragmentAccessToken  string
	FragmentRefreshToken string

	Host string
}

// Outcome is the single authoritative resolution. A non-empty RedirectURL
// means resolution continues after a full navigation (the code exchange
// round trip); StrippedFragment means credentials were removed from the
// visible URL and must not be re-parsed.
type Outcome struct {
	State            State
	Session          *model.Session
	RedirectURL      string
	StrippedFragment bool
}

// Reconciler resolves sessions against the identity backend and the
// server-side session index.
type Reconciler struct {
	identity identity.Client
	sessions *store.SessionStore
	bus      *bus.Bus

	// canonicalBase is the origin the provider was configured to redirect
	// to; foreignHost reports hosts known to be wrong deployment origins.
	canonicalBase string
	foreignHost   func(host string) bool

	logger *slog.Logger
}

func New(idc identity.Client, sessions *store.SessionStore, b *bus.Bus, canonicalBase string, foreignHost func(string) bool, logger *slog.Logger) *Reconciler {
	if foreignHost == nil {
		foreignHost = func(string) bool { return false }
	}
	return &Reconciler{
		identity:      idc,
		sessions:      sessions,
		bus:           b,
		canonicalBase: strings.TrimSuffix(canonicalBase, "/"),
		foreignHost:   foreignHost,
		logger:        logger,
	}
}

// Resolve runs the full branch enumeration for one page load.
//
// Priority: restored session, then authorization code (which always defers
// to a dedicated exchange endpoint via redirect, because the code is
// single-use), then fragment tokens. Anything else is unauthenticated.
func (r *Reconciler) Resolve(ctx context.Context, in Input) Outcome {
	// Previously persisted session: present tokens that still resolve win
	// outright, with no network redirect.
	if in.AccessToken != "" {
		sess, err := r.sessions.GetByAccessToken(in.AccessToken)
		if err != nil {
			r.logger.Error("restore session", "error", err)
		}
		if sess != nil {
			return Outcome{State: StateAuthenticated, Session: sess}
		}
	}

	// One-time authorization code. Never exchanged here: the exchange is
	// the dedicated endpoint's job, and a code that landed on a wrong
	// deployment origin must travel to the canonical one intact.
	if in.Code != "" {
		target := "/auth/callback?code=" + url.QueryEscape(in.Code)
		if r.foreignHost(in.Host) {
			target = r.canonicalBase + target
		}
		return Outcome{State: StateLoading, RedirectURL: target}
	}

	// Raw fragment tokens. The fragment is stripped from the visible URL no
	// matter what happens next, so credentials never sit in history.
	if in.FragmentAccessToken != "" || in.FragmentRefreshToken != "" {
		out := Outcome{StrippedFragment: true}

		sess, err := r.identity.SessionFromTokens(ctx, in.FragmentAccessToken, in.FragmentRefreshToken)
		if err != nil {
			// No definitive signal either way: stay loading rather than
			// flashing a signed-out view at someone mid sign-in.
			r.logger.Warn("fragment session establishment failed", "error", err)
			out.State = StateLoading
			return out
		}

		if err := r.sessions.Create(sess); err != nil {
			r.logger.Error("persist fragment session", "error", err)
			out.State = StateLoading
			return out
		}
		r.bus.PublishAuth(model.AuthEvent{Kind: model.AuthSignedIn, UserID: sess.UserID, Session: sess})
		out.State = StateAuthenticated
		out.Session = sess
		return out
	}

	return Outcome{State: StateUnauthenticated}
}

// Handle is one live view's session value, replaced atomically by every
// auth state change event until released.
type Handle struct {
	mu      sync.RWMutex
	state   State
	session *model.Session
	stop    func()
}

// Current returns the handle's state and session.
func (h *Handle) Current() (State, *model.Session) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state, h.session
}

// Stop releases the underlying subscription. Safe to call more than once.
func (h *Handle) Stop() { h.stop() }

// Watch subscribes to the auth state change stream for the session's user
// and keeps the returned handle current until ctx ends or Stop is called.
// Every event replaces the session value wholesale; an event carrying no
// session means signed out. onChange, if non-nil, fires after each
// replacement.
func (r *Reconciler) Watch(ctx context.Context, initial *model.Session, onChange func(State, *model.Session)) *Handle {
	h := &Handle{state: StateAuthenticated, session: initial}

	events, cancel := r.bus.SubscribeAuth(initial.UserID)
	h.stop = cancel

	go func() {
		defer cancel()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				h.mu.Lock()
				if ev.Session == nil {
					h.state = StateUnauthenticated
					h.session = nil
				} else {
					h.state = StateAuthenticated
					h.session = ev.Session
				}
				state, sess := h.state, h.session
				h.mu.Unlock()
				if onChange != nil {
					onChange(state, sess)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return h
}
