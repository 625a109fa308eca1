// Package identitytest provides an in-memory identity.Client for tests.
package identitytest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dukerupert/marks/internal/model"
)

var ErrBadCode = errors.New("identitytest: unknown or redeemed code")

// Fake is a deterministic identity backend. Register codes and token pairs
// up front; every failure path can be forced via the Err fields.
type Fake struct {
	mu sync.Mutex

	// Codes maps a one-time authorization code to the session it redeems
	// into. A code is removed on first exchange.
	Codes map[string]*model.Session

	// Tokens maps an access token to the session it belongs to, for the
	// fragment flow.
	Tokens map[string]*model.Session

	ExchangeErr error
	TokensErr   error
	RefreshErr  error

	// Exchanged records every code presented for exchange, in order.
	Exchanged []string
}

func New() *Fake {
	return &Fake{
		Codes:  make(map[string]*model.Session),
		Tokens: make(map[string]*model.Session),
	}
}

// Grant registers a code and token pair for the given user and returns the
// session they resolve to.
func (f *Fake) Grant(code, accessToken, refreshToken, userID string) *model.Session {
	sess := &model.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       userID,
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if code != "" {
		f.Codes[code] = sess
	}
	f.Tokens[accessToken] = sess
	return sess
}

func (f *Fake) AuthCodeURL(state string) string {
	return "https://idp.test/authorize?state=" + state
}

func (f *Fake) Exchange(ctx context.Context, code string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Exchanged = append(f.Exchanged, code)
	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	sess, ok := f.Codes[code]
	if !ok {
		return nil, ErrBadCode
	}
	delete(f.Codes, code) // single-use
	return sess, nil
}

func (f *Fake) SessionFromTokens(ctx context.Context, accessToken, refreshToken string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TokensErr != nil {
		return nil, f.TokensErr
	}
	sess, ok := f.Tokens[accessToken]
	if !ok || sess.RefreshToken != refreshToken {
		return nil, errors.New("identitytest: unknown token pair")
	}
	return sess, nil
}

func (f *Fake) Refresh(ctx context.Context, sess *model.Session) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	next := *sess
	next.AccessToken = sess.AccessToken + "-r"
	next.ExpiresAt = time.Now().Add(time.Hour).UTC()
	f.Tokens[next.AccessToken] = &next
	return &next, nil
}
