// Package custody decides where a user's salt and wrapped root key live
// (locally in the session store, or in the remote directory when cloud mode
// is on) and drives registration and secret verification against them.
package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cognitechbridge/ctb-session/internal/broker"
	"github.com/cognitechbridge/ctb-session/internal/directory"
	"github.com/cognitechbridge/ctb-session/internal/kvstore"
)

// DefaultSaltLength is the length of generated salts.
const DefaultSaltLength = 32

var (
	// ErrNoUserData means local mode is active but no user was saved.
	ErrNoUserData = errors.New("custody: no local user data")
	// ErrNoAccount means cloud mode is active but no account email could be
	// derived from the session's ID token.
	ErrNoAccount = errors.New("custody: no signed-in account")
)

// UserData is the locally persisted custody record. Salt and EncryptedKey
// are always written together.
type UserData struct {
	Email        string `json:"email"`
	Salt         string `json:"salt"`
	EncryptedKey string `json:"encrypted_key,omitempty"`
}

// TokenBroker is the part of *broker.Broker the service uses.
type TokenBroker interface {
	Token(ctx context.Context) (string, error)
	HasAnyAccessToken(ctx context.Context) bool
	Email(ctx context.Context) string
	Exchange(ctx context.Context, code, verifier string) (*broker.TokenSet, error)
	Logout(ctx context.Context) error
}

// Directory is the part of *directory.Client the service uses.
type Directory interface {
	Salt(ctx context.Context, email string) (string, error)
	EncryptedKey(ctx context.Context, email string) (string, error)
	PublicKey(ctx context.Context, email string) (string, error)
	EmailForPublicKey(ctx context.Context, pubKey string) (string, error)
	UserExists(ctx context.Context, email string) bool
	Register(ctx context.Context, reg directory.Registration) error
}

// KeyCustodian wraps and verifies root keys. *bridgecli.Client satisfies it.
type KeyCustodian interface {
	WrapSecret(ctx context.Context, secret, salt, rootKey string) (string, error)
	VerifySecret(ctx context.Context, secret, salt, encryptedRootKey string) (bool, error)
	PublicKey(ctx context.Context, privateKey string) (string, error)
}

// Deps are the collaborators of a Service. Email and SaltLength are optional.
type Deps struct {
	Store      kvstore.Store
	Broker     TokenBroker
	Directory  Directory
	Keys       KeyCustodian
	Logger     *slog.Logger
	Email      *EmailSignal
	SaltLength int
}

// Service is the credential custody service. Safe for concurrent use as
// long as its collaborators are.
type Service struct {
	store     kvstore.Store
	broker    TokenBroker
	directory Directory
	keys      KeyCustodian
	logger    *slog.Logger
	email     *EmailSignal
	saltLen   int
}

// New builds a Service from deps.
func New(deps Deps) *Service {
	s := &Service{
		store:     deps.Store,
		broker:    deps.Broker,
		directory: deps.Directory,
		keys:      deps.Keys,
		logger:    deps.Logger,
		email:     deps.Email,
		saltLen:   deps.SaltLength,
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.email == nil {
		s.email = NewEmailSignal()
	}

	if s.saltLen <= 0 {
		s.saltLen = DefaultSaltLength
	}

	return s
}

// EmailSignal returns the signal carrying the signed-in account email.
func (s *Service) EmailSignal() *EmailSignal {
	return s.email
}

// CurrentEmail is the last email published on the signal.
func (s *Service) CurrentEmail() string {
	return s.email.Get()
}

// UseCloud reports whether cloud mode is on. An unset flag means local.
func (s *Service) UseCloud(ctx context.Context) (bool, error) {
	var useCloud bool
	if _, err := s.store.Get(ctx, kvstore.KeyUseCloud, &useCloud); err != nil {
		return false, fmt.Errorf("custody: reading mode: %w", err)
	}

	return useCloud, nil
}

// SetUseCloud persists the mode flag.
func (s *Service) SetUseCloud(ctx context.Context, useCloud bool) error {
	if err := s.store.Set(ctx, kvstore.KeyUseCloud, useCloud); err != nil {
		return fmt.Errorf("custody: writing mode: %w", err)
	}

	if err := s.store.Save(ctx); err != nil {
		return fmt.Errorf("custody: saving store: %w", err)
	}

	s.logger.Info("custody mode set", slog.Bool("cloud", useCloud))

	return nil
}

// IsFirstRun reports whether the mode flag has never been set.
func (s *Service) IsFirstRun(ctx context.Context) (bool, error) {
	var useCloud bool

	found, err := s.store.Get(ctx, kvstore.KeyUseCloud, &useCloud)
	if err != nil {
		return false, fmt.Errorf("custody: reading mode: %w", err)
	}

	return !found, nil
}

// LoadUserData returns the local custody record, or nil if none is stored.
func (s *Service) LoadUserData(ctx context.Context) (*UserData, error) {
	var ud UserData

	found, err := s.store.Get(ctx, kvstore.KeyUserData, &ud)
	if err != nil {
		return nil, fmt.Errorf("custody: reading user data: %w", err)
	}

	if !found {
		return nil, nil
	}

	return &ud, nil
}

// UserEmail returns the account email: from the ID token in cloud mode, from
// the local record otherwise. "" means no user is known.
func (s *Service) UserEmail(ctx context.Context) (string, error) {
	cloud, err := s.UseCloud(ctx)
	if err != nil {
		return "", err
	}

	if cloud {
		return s.broker.Email(ctx), nil
	}

	ud, err := s.LoadUserData(ctx)
	if err != nil || ud == nil {
		return "", err
	}

	return ud.Email, nil
}

// UserSalt returns the key-derivation salt for the active mode.
func (s *Service) UserSalt(ctx context.Context) (string, error) {
	cloud, err := s.UseCloud(ctx)
	if err != nil {
		return "", err
	}

	if cloud {
		email, err := s.cloudEmail(ctx)
		if err != nil {
			return "", err
		}

		salt, err := s.directory.Salt(ctx, email)
		if err != nil {
			return "", fmt.Errorf("custody: fetching salt: %w", err)
		}

		return salt, nil
	}

	ud, err := s.requireUserData(ctx)
	if err != nil {
		return "", err
	}

	return ud.Salt, nil
}

// UserEncryptedKey returns the wrapped root key for the active mode. In local
// mode a record without a key yields "".
func (s *Service) UserEncryptedKey(ctx context.Context) (string, error) {
	cloud, err := s.UseCloud(ctx)
	if err != nil {
		return "", err
	}

	if cloud {
		email, err := s.cloudEmail(ctx)
		if err != nil {
			return "", err
		}

		key, err := s.directory.EncryptedKey(ctx, email)
		if err != nil {
			return "", fmt.Errorf("custody: fetching encrypted key: %w", err)
		}

		return key, nil
	}

	ud, err := s.requireUserData(ctx)
	if err != nil {
		return "", err
	}

	return ud.EncryptedKey, nil
}

// SaveUserData creates the local custody record: a fresh salt, rootKey
// wrapped under secret and that salt, and email, written as one value.
func (s *Service) SaveUserData(ctx context.Context, email, secret, rootKey string) error {
	salt, wrapped, err := s.wrap(ctx, secret, rootKey)
	if err != nil {
		return err
	}

	ud := UserData{Email: email, Salt: salt, EncryptedKey: wrapped}
	if err := s.store.Set(ctx, kvstore.KeyUserData, ud); err != nil {
		return fmt.Errorf("custody: writing user data: %w", err)
	}

	if err := s.store.Save(ctx); err != nil {
		return fmt.Errorf("custody: saving store: %w", err)
	}

	s.logger.Info("local user data saved", slog.Int("salt_len", len(salt)))

	return nil
}

// RegisterUserCloud wraps rootKey under secret and a fresh salt and registers
// the result, with the root key's public key, under the signed-in account.
// It returns true only when the directory accepted the registration.
func (s *Service) RegisterUserCloud(ctx context.Context, secret, rootKey string) (bool, error) {
	email, err := s.cloudEmail(ctx)
	if err != nil {
		return false, err
	}

	salt, wrapped, err := s.wrap(ctx, secret, rootKey)
	if err != nil {
		return false, err
	}

	pub, err := s.keys.PublicKey(ctx, rootKey)
	if err != nil {
		return false, fmt.Errorf("custody: deriving public key: %w", err)
	}

	err = s.directory.Register(ctx, directory.Registration{
		Email:   email,
		PubKey:  pub,
		PrivKey: wrapped,
		Salt:    salt,
	})
	if err != nil {
		return false, fmt.Errorf("custody: registering: %w", err)
	}

	return true, nil
}

// Login reports whether secret unwraps the stored root key. Lookup failures
// are returned as errors; a wrong secret is (false, nil).
func (s *Service) Login(ctx context.Context, secret string) (bool, error) {
	salt, err := s.UserSalt(ctx)
	if err != nil {
		return false, err
	}

	wrapped, err := s.UserEncryptedKey(ctx)
	if err != nil {
		return false, err
	}

	ok, err := s.keys.VerifySecret(ctx, secret, salt, wrapped)
	if err != nil {
		return false, fmt.Errorf("custody: verifying secret: %w", err)
	}

	if !ok {
		s.logger.Info("secret verification failed")
	}

	return ok, nil
}

// IsUserRegistered reports whether a user is established. Local mode: any
// known email. Cloud mode: the directory has a salt for the account; every
// failure reads as unregistered.
func (s *Service) IsUserRegistered(ctx context.Context) (bool, error) {
	email, err := s.UserEmail(ctx)
	if err != nil {
		return false, err
	}

	if email == "" {
		return false, nil
	}

	cloud, err := s.UseCloud(ctx)
	if err != nil {
		return false, err
	}

	if !cloud {
		return true, nil
	}

	return s.directory.UserExists(ctx, email), nil
}

// NeedsLoginToCloud reports whether cloud mode is on and the broker cannot
// produce an access token.
func (s *Service) NeedsLoginToCloud(ctx context.Context) (bool, error) {
	cloud, err := s.UseCloud(ctx)
	if err != nil || !cloud {
		return false, err
	}

	if !s.broker.HasAnyAccessToken(ctx) {
		return true, nil
	}

	if _, err := s.broker.Token(ctx); err != nil {
		s.logger.Debug("no usable access token", slog.String("error", err.Error()))
		return true, nil
	}

	return false, nil
}

// GetTokens completes a login by exchanging an authorization code.
func (s *Service) GetTokens(ctx context.Context, code, verifier string) (*broker.TokenSet, error) {
	return s.broker.Exchange(ctx, code, verifier)
}

// EmailFromPublicKey resolves a public key to its owner, or "" on any
// failure.
func (s *Service) EmailFromPublicKey(ctx context.Context, pubKey string) string {
	email, err := s.directory.EmailForPublicKey(ctx, pubKey)
	if err != nil {
		s.logger.Debug("email lookup failed", slog.String("error", err.Error()))
		return ""
	}

	return email
}

// PublicKeyForEmail resolves an email to its public key, or "" on any
// failure.
func (s *Service) PublicKeyForEmail(ctx context.Context, email string) string {
	pub, err := s.directory.PublicKey(ctx, email)
	if err != nil {
		s.logger.Debug("public key lookup failed", slog.String("error", err.Error()))
		return ""
	}

	return pub
}

// Logout clears the email signal, signs out of the broker in cloud mode, and
// removes the local custody record. Directory entries are left alone.
func (s *Service) Logout(ctx context.Context) error {
	s.email.Set("")

	cloud, err := s.UseCloud(ctx)
	if err != nil {
		return err
	}

	if cloud {
		if err := s.broker.Logout(ctx); err != nil {
			return fmt.Errorf("custody: broker logout: %w", err)
		}
	}

	if err := s.store.Delete(ctx, kvstore.KeyUserData); err != nil {
		return fmt.Errorf("custody: removing user data: %w", err)
	}

	if err := s.store.Save(ctx); err != nil {
		return fmt.Errorf("custody: saving store: %w", err)
	}

	s.logger.Info("logged out", slog.Bool("cloud", cloud))

	return nil
}

// wrap generates a salt and wraps rootKey under secret and it.
func (s *Service) wrap(ctx context.Context, secret, rootKey string) (salt, wrapped string, err error) {
	salt, err = RandomString(s.saltLen)
	if err != nil {
		return "", "", fmt.Errorf("custody: generating salt: %w", err)
	}

	wrapped, err = s.keys.WrapSecret(ctx, secret, salt, rootKey)
	if err != nil {
		return "", "", fmt.Errorf("custody: wrapping root key: %w", err)
	}

	return salt, wrapped, nil
}

func (s *Service) cloudEmail(ctx context.Context) (string, error) {
	email := s.broker.Email(ctx)
	if email == "" {
		return "", ErrNoAccount
	}

	return email, nil
}

func (s *Service) requireUserData(ctx context.Context) (*UserData, error) {
	ud, err := s.LoadUserData(ctx)
	if err != nil {
		return nil, err
	}

	if ud == nil {
		return nil, ErrNoUserData
	}

	return ud, nil
}
