// Package broker owns the session's OAuth2 tokens. It performs the
// authorization-code and refresh-token exchanges against the identity
// provider, caches the resulting access/refresh/ID tokens in memory, mirrors
// the refresh token into the persisted store, and serializes token resolution
// so that at most one refresh is in flight at a time.
//
// Refresh tokens are frequently single-use. Two concurrent refreshes with the
// same token can invalidate each other and log the user out, so every path
// that may refresh runs behind one gate held across the network call and the
// store write.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"

	"github.com/cognitechbridge/ctb-session/internal/kvstore"
	"github.com/cognitechbridge/ctb-session/internal/tokencheck"
)

// TokenSet is the token triple produced by a successful exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// IsZero reports whether the set holds no tokens at all.
func (ts TokenSet) IsZero() bool {
	return ts == TokenSet{}
}

// Config describes the identity provider client.
type Config struct {
	ClientID    string
	TokenURL    string
	AuthURL     string
	RedirectURL string
	Audience    string
	Scopes      []string

	// OnTokenChange is called after every replacement of the cached
	// TokenSet, including the empty set on logout or refresh failure. It runs
	// while token resolution is serialized and must not call back into the
	// Broker.
	OnTokenChange func(TokenSet)
}

// Broker is the sole owner of the session's tokens. Construct with New; the
// zero value is not usable. Safe for concurrent use.
type Broker struct {
	oauth      *oauth2.Config
	audience   string
	httpClient *http.Client
	store      kvstore.Store
	logger     *slog.Logger
	onChange   func(TokenSet)

	// nowFunc is the clock used for expiry checks. Tests override it.
	nowFunc func() time.Time

	// gate serializes resolve/exchange/logout. A weighted semaphore rather
	// than a mutex so waiters can give up when their context ends.
	gate *semaphore.Weighted

	mu     sync.RWMutex
	tokens TokenSet
}

// New creates a Broker. httpClient is used for all identity provider calls;
// nil means http.DefaultClient.
func New(cfg Config, store kvstore.Store, httpClient *http.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Broker{
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams, // public client: client_id in the form body
			},
		},
		audience:   cfg.Audience,
		httpClient: httpClient,
		store:      store,
		logger:     logger,
		onChange:   cfg.OnTokenChange,
		nowFunc:    time.Now,
		gate:       semaphore.NewWeighted(1),
	}
}

// Token returns a usable access token, refreshing it if needed. It returns
// ErrUnauthenticated when no refresh token exists, and an *ExchangeError when
// a refresh was attempted and failed (the refresh token is then discarded).
//
// Concurrent callers queue behind a single resolution: when the cached token
// has expired, exactly one refresh reaches the network and every waiter
// observes its outcome.
func (b *Broker) Token(ctx context.Context) (string, error) {
	if err := b.acquire(ctx); err != nil {
		return "", err
	}
	defer b.gate.Release(1)

	return b.resolveLocked(ctx, false)
}

// Exchange trades an authorization code and its PKCE verifier for tokens.
// On failure the cached tokens are left untouched.
func (b *Broker) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	return b.exchange(ctx, b.oauth, code, verifier)
}

// Refresh performs a refresh-token exchange with the given token. Failure is
// treated as revocation: the persisted refresh token is erased and the cached
// tokens are cleared.
func (b *Broker) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.gate.Release(1)

	return b.refreshLocked(ctx, refreshToken)
}

// HasAnyAccessToken reports whether a valid access token is cached or a
// refresh token is persisted. It never touches the network.
func (b *Broker) HasAnyAccessToken(ctx context.Context) bool {
	if b.valid(b.snapshot().AccessToken) {
		return true
	}

	rt, err := b.loadRefreshToken(ctx)
	if err != nil {
		b.logger.Warn("reading refresh token failed", slog.String("error", err.Error()))
		return false
	}

	return rt != ""
}

// IDToken returns a valid ID token, refreshing the token set if the cached one
// has expired.
func (b *Broker) IDToken(ctx context.Context) (string, error) {
	if cur := b.snapshot(); b.valid(cur.IDToken) {
		return cur.IDToken, nil
	}

	if err := b.acquire(ctx); err != nil {
		return "", err
	}
	defer b.gate.Release(1)

	if _, err := b.resolveLocked(ctx, true); err != nil {
		return "", err
	}

	return b.snapshot().IDToken, nil
}

// Email returns the email claim of the current ID token, or "" when no ID
// token can be obtained.
func (b *Broker) Email(ctx context.Context) string {
	id, err := b.IDToken(ctx)
	if err != nil {
		b.logger.Debug("no id token for email lookup", slog.String("error", err.Error()))
		return ""
	}

	return tokencheck.Email(id)
}

// Logout clears the cached tokens and erases the persisted refresh token. It
// waits for any in-flight resolution so a late refresh cannot resurrect the
// session.
func (b *Broker) Logout(ctx context.Context) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.gate.Release(1)

	b.replace(TokenSet{})

	if err := b.store.Delete(ctx, kvstore.KeyRefreshToken); err != nil {
		return fmt.Errorf("broker: erasing refresh token: %w", err)
	}

	if err := b.store.Save(ctx); err != nil {
		return fmt.Errorf("broker: saving store: %w", err)
	}

	b.notify(TokenSet{})
	b.logger.Info("logged out, tokens cleared")

	return nil
}

// acquire takes the gate, giving up if ctx ends first.
func (b *Broker) acquire(ctx context.Context) error {
	if err := b.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("broker: waiting for token resolution: %w", err)
	}

	return nil
}

// resolveLocked returns the cached access token if it is valid (and, when
// needID is set, the ID token too); otherwise it refreshes. Caller holds gate.
func (b *Broker) resolveLocked(ctx context.Context, needID bool) (string, error) {
	cur := b.snapshot()
	if b.valid(cur.AccessToken) && (!needID || b.valid(cur.IDToken)) {
		return cur.AccessToken, nil
	}

	rt := cur.RefreshToken
	if rt == "" {
		loaded, err := b.loadRefreshToken(ctx)
		if err != nil {
			return "", err
		}

		rt = loaded

		b.mu.Lock()
		b.tokens.RefreshToken = rt
		b.mu.Unlock()
	}

	if rt == "" {
		return "", ErrUnauthenticated
	}

	ts, err := b.refreshLocked(ctx, rt)
	if err != nil {
		return "", err
	}

	return ts.AccessToken, nil
}

// refreshLocked performs the refresh-token grant. Caller holds gate.
func (b *Broker) refreshLocked(ctx context.Context, refreshToken string) (*TokenSet, error) {
	b.logger.Debug("refreshing access token")

	// An access-token-less seed forces the oauth2 token source to refresh.
	src := b.oauth.TokenSource(b.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		// The caller gave up; the refresh token was not rejected.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		exErr := newExchangeError(grantRefreshToken, err)
		b.logger.Warn("refresh token rejected, discarding it",
			slog.Int("status", exErr.StatusCode),
			slog.String("code", exErr.Code),
		)

		b.replace(TokenSet{})

		if perr := b.persistRefreshToken(ctx, ""); perr != nil {
			b.logger.Warn("failed to erase refresh token", slog.String("error", perr.Error()))
		}

		b.notify(TokenSet{})

		return nil, exErr
	}

	ts := tokenSetFrom(tok)
	if err := b.commit(ctx, ts); err != nil {
		return nil, err
	}

	return &ts, nil
}

// exchange performs the authorization-code grant with cfg.
func (b *Broker) exchange(ctx context.Context, cfg *oauth2.Config, code, verifier string) (*TokenSet, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.gate.Release(1)

	b.logger.Info("exchanging authorization code for tokens")

	tok, err := cfg.Exchange(b.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		exErr := newExchangeError(grantAuthorizationCode, err)
		b.logger.Warn("authorization code exchange failed",
			slog.Int("status", exErr.StatusCode),
			slog.String("code", exErr.Code),
		)

		return nil, exErr
	}

	ts := tokenSetFrom(tok)
	if err := b.commit(ctx, ts); err != nil {
		return nil, err
	}

	return &ts, nil
}

// commit replaces the cached tokens, then persists the refresh token, then
// notifies. The caller releases the gate only after commit returns, so any
// caller that sees the new access token also sees the persisted refresh token.
func (b *Broker) commit(ctx context.Context, ts TokenSet) error {
	b.replace(ts)

	if err := b.persistRefreshToken(ctx, ts.RefreshToken); err != nil {
		return err
	}

	b.notify(ts)

	exp, _ := tokencheck.Expiry(ts.AccessToken)
	b.logger.Info("tokens updated",
		slog.Time("access_expiry", exp),
		slog.Bool("has_id_token", ts.IDToken != ""),
	)

	return nil
}

func (b *Broker) persistRefreshToken(ctx context.Context, rt string) error {
	if err := b.store.Set(ctx, kvstore.KeyRefreshToken, rt); err != nil {
		return fmt.Errorf("broker: storing refresh token: %w", err)
	}

	if err := b.store.Save(ctx); err != nil {
		return fmt.Errorf("broker: saving store: %w", err)
	}

	return nil
}

func (b *Broker) loadRefreshToken(ctx context.Context) (string, error) {
	var rt string
	if _, err := b.store.Get(ctx, kvstore.KeyRefreshToken, &rt); err != nil {
		return "", fmt.Errorf("broker: loading refresh token: %w", err)
	}

	return rt, nil
}

// clientContext carries the broker's HTTP client into the oauth2 package.
func (b *Broker) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
}

func (b *Broker) valid(token string) bool {
	return token != "" && tokencheck.Valid(token, b.nowFunc())
}

func (b *Broker) snapshot() TokenSet {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.tokens
}

func (b *Broker) replace(ts TokenSet) {
	b.mu.Lock()
	b.tokens = ts
	b.mu.Unlock()
}

func (b *Broker) notify(ts TokenSet) {
	if b.onChange != nil {
		b.onChange(ts)
	}
}

// tokenSetFrom extracts the triple from an oauth2 token response.
func tokenSetFrom(tok *oauth2.Token) TokenSet {
	id, _ := tok.Extra("id_token").(string)

	return TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      id,
	}
}
