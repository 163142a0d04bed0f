package broker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackPath is the HTTP path the OAuth2 redirect hits on the loopback server.
const callbackPath = "/callback"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// GenerateVerifier returns a fresh PKCE code verifier.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// AuthCodeURL builds the provider's authorization URL for the configured
// redirect URI, carrying state and the S256 challenge for verifier. Embedding
// applications that receive the redirect themselves pass the returned code
// and the same verifier to Exchange.
func (b *Broker) AuthCodeURL(state, verifier string) string {
	return b.authCodeURL(b.oauth, state, verifier)
}

func (b *Broker) authCodeURL(cfg *oauth2.Config, state, verifier string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	}

	if b.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", b.audience))
	}

	return cfg.AuthCodeURL(state, opts...)
}

// LoginWithBrowser performs the authorization code + PKCE flow:
//  1. Binds a loopback HTTP server on a random port
//  2. Opens the browser to the provider's authorization endpoint
//  3. Receives the callback with the authorization code
//  4. Exchanges the code (with the verifier) via Exchange
//
// openURL is called with the authorization URL. If it fails, the URL is
// printed to stderr so the user can open it manually.
func (b *Broker) LoginWithBrowser(ctx context.Context, openURL func(string) error) (*TokenSet, error) {
	b.logger.Info("starting browser auth flow (authorization code + PKCE)")

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, b.logger)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, b.logger)

	// Copy so the loopback redirect never leaks into Exchange's config.
	cfg := *b.oauth
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d%s", port, callbackPath)

	verifier := GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("broker: generating state token: %w", err)
	}

	registerCallbackHandler(mux, state, resultCh)

	launchBrowser(b.authCodeURL(&cfg, state, verifier), openURL, b.logger)

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	b.logger.Info("received authorization code")

	return b.exchange(ctx, &cfg, code, verifier)
}

// startCallbackServer binds to 127.0.0.1:0 and serves mux. Returns the
// server and the bound port.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("broker: binding loopback listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("broker: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Debug("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("broker: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, port, nil
}

func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

// handleOAuthCallback validates state, extracts the code and reports the
// outcome. Only the first result is delivered.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	q := r.URL.Query()

	var result callbackResult

	switch {
	case q.Get("state") != state:
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		result.err = fmt.Errorf("broker: OAuth2 state mismatch (possible CSRF)")
	case q.Get("error") != "":
		http.Error(w, "Authorization failed: "+q.Get("error"), http.StatusBadRequest)
		result.err = fmt.Errorf("broker: authorization failed: %s: %s", q.Get("error"), q.Get("error_description"))
	case q.Get("code") == "":
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		result.err = fmt.Errorf("broker: callback missing authorization code")
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>Signed in</h1>"+
			"<p>You can close this window and return to the application.</p></body></html>")
		result.code = q.Get("code")
	}

	select {
	case resultCh <- result:
	default:
	}
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL, falling back to printing it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// waitForCallback blocks until the callback fires or ctx is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("broker: browser auth canceled: %w", ctx.Err())
	}
}

// generateState produces a random hex string for the OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
