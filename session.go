package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cognitechbridge/ctb-session/internal/bridgecli"
	"github.com/cognitechbridge/ctb-session/internal/broker"
	"github.com/cognitechbridge/ctb-session/internal/config"
	"github.com/cognitechbridge/ctb-session/internal/custody"
	"github.com/cognitechbridge/ctb-session/internal/directory"
	"github.com/cognitechbridge/ctb-session/internal/keywrap"
	"github.com/cognitechbridge/ctb-session/internal/kvstore"
)

// Session holds the wired components for one command invocation: the
// persisted store, the token broker, the directory client, the key
// collaborator and the custody service on top of them.
type Session struct {
	Store     kvstore.Store
	Broker    *broker.Broker
	Directory *directory.Client
	Keys      *bridgecli.Client
	Custody   *custody.Service

	logger    *slog.Logger
	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// NewSession opens the store named by cfg and builds every component on top
// of it. The caller must Close the session.
func NewSession(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*Session, error) {
	store, err := kvstore.Open(ctx, cfg.Store.Backend, cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	logger.Debug("session store opened",
		slog.String("backend", cfg.Store.Backend),
		slog.String("path", cfg.Store.Path),
	)

	email := custody.NewEmailSignal()
	httpClient := &http.Client{Timeout: cfg.DirectoryTimeout()}

	b := broker.New(broker.Config{
		ClientID:      cfg.Identity.ClientID,
		TokenURL:      cfg.Identity.TokenURL,
		AuthURL:       cfg.Identity.AuthorizeURL,
		RedirectURL:   cfg.Identity.RedirectURI,
		Audience:      cfg.Identity.Audience,
		Scopes:        cfg.Identity.Scopes,
		OnTokenChange: email.OnTokenChange,
	}, store, httpClient, logger)

	dir := directory.NewClient(cfg.Directory.BaseURL, httpClient, b, logger)
	keys := bridgecli.NewClient(newKeyRunner(cfg, logger), logger)

	s := &Session{
		Store:     store,
		Broker:    b,
		Directory: dir,
		Keys:      keys,
		Custody: custody.New(custody.Deps{
			Store:     store,
			Broker:    b,
			Directory: dir,
			Keys:      keys,
			Logger:    logger,
			Email:     email,
		}),
		logger: logger,
	}

	s.watch(ctx)

	return s, nil
}

// newKeyRunner selects the native collaborator when one is configured and
// the in-process wrapper otherwise.
func newKeyRunner(cfg *config.Resolved, logger *slog.Logger) bridgecli.Runner {
	if cfg.Bridge.CLIPath != "" {
		logger.Debug("using native collaborator", slog.String("path", cfg.Bridge.CLIPath))
		return bridgecli.ExecRunner{Path: cfg.Bridge.CLIPath, Timeout: cfg.BridgeTimeout()}
	}

	return keywrap.New()
}

// watch follows external rewrites of a file-backed store for the lifetime of
// the session, so a desktop app signing out underneath us is noticed.
func (s *Session) watch(ctx context.Context) {
	f, ok := s.Store.(*kvstore.File)
	if !ok {
		return
	}

	ctx, s.stopWatch = context.WithCancel(ctx)
	s.watchDone = make(chan struct{})

	go func() {
		defer close(s.watchDone)

		if err := f.Watch(ctx); err != nil {
			s.logger.Warn("session store watch stopped", slog.String("error", err.Error()))
		}
	}()
}

// Close stops the store watcher and releases the store.
func (s *Session) Close() error {
	if s.stopWatch != nil {
		s.stopWatch()
		<-s.watchDone
	}

	if c, ok := s.Store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("closing session store: %w", err)
		}
	}

	return nil
}

// openSession builds a Session from the command's CLIContext.
func openSession(ctx context.Context) (*Session, *CLIContext, error) {
	cc := mustCLIContext(ctx)

	s, err := NewSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return nil, nil, err
	}

	return s, cc, nil
}

// errNotSignedIn is returned by commands that need an identity provider
// session when none exists.
var errNotSignedIn = errors.New("not signed in: run 'ctb-session login' first")

// authError turns broker failures into messages a user can act on.
func authError(err error) error {
	var exErr *broker.ExchangeError

	switch {
	case errors.Is(err, broker.ErrUnauthenticated):
		return errNotSignedIn
	case errors.As(err, &exErr):
		return fmt.Errorf("session expired or revoked, sign in again: %w", err)
	default:
		return err
	}
}
